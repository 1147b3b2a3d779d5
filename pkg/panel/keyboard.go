package panel

import (
	"context"

	"github.com/eiannone/keyboard"
	pkgerrors "github.com/pkg/errors"
)

// Keyboard reads operator input from the controlling terminal.
type Keyboard struct{}

// Run delivers key presses to h until Quit is pressed or ctx is done. Quit is
// delivered to h as well.
func (Keyboard) Run(ctx context.Context, h Handler) error {
	keys, err := keyboard.GetKeys(16)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to open keyboard")
	}
	defer func() {
		_ = keyboard.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case k, ok := <-keys:
			if !ok {
				return nil
			}
			if k.Err != nil {
				return pkgerrors.Wrap(k.Err, "failed to read key")
			}
			ev, ok := keyEvent(k.Rune, k.Key)
			if !ok {
				continue
			}
			h(ev)
			if ev == Quit {
				return nil
			}
		}
	}
}

func keyEvent(char rune, key keyboard.Key) (Event, bool) {
	switch key {
	case keyboard.KeyEnter, keyboard.KeySpace:
		return Confirm, true
	case keyboard.KeyEsc, keyboard.KeyCtrlC:
		return Quit, true
	}
	switch char {
	case 'b', 'B':
		return Confirm, true
	case 'r', 'R':
		return Reset, true
	case 'q', 'Q':
		return Quit, true
	}
	return 0, false
}
