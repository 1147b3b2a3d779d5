// Package panel connects the operator to the calibration controller: a
// serial front panel with a button and a 16x2 character display, or the
// local terminal and keyboard.
package panel

// Event is one debounced operator input.
type Event int

const (
	Confirm Event = iota + 1
	Reset
	Quit
)

func (e Event) String() string {
	switch e {
	case Confirm:
		return "confirm"
	case Reset:
		return "reset"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Handler receives input events in order, one at a time.
type Handler func(Event)

// Columns is the width of one display row.
const Columns = 16

// Rows is the number of display rows.
const Rows = 2
