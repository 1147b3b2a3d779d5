package daemon

import (
	"sync"
	"time"

	"github.com/charlie0129/psmon/pkg/panel"
)

// bounceWindow is how close two presses of the same front panel button must
// be for the second one to be treated as contact bounce.
const bounceWindow = 250 * time.Millisecond

var panelPresses = newDebouncer(bounceWindow)

// debouncer remembers the last accepted press of each button.
type debouncer struct {
	window time.Duration

	mu   sync.Mutex
	last map[panel.Event]time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window: window,
		last:   map[panel.Event]time.Time{},
	}
}

// Accept records a press of ev at t. It returns false, and records nothing,
// if t is within the window of the previous accepted press of ev.
func (d *debouncer) Accept(ev panel.Event, t time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Strip monotonic clock reading.
	t = t.Round(0)

	if last, ok := d.last[ev]; ok && t.Sub(last) < d.window {
		return false
	}
	d.last[ev] = t
	return true
}
