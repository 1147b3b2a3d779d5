package panel

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/charlie0129/psmon/pkg/calibration"
)

var (
	displayStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("10")).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var _ calibration.DisplaySink = &Terminal{}

// Terminal draws the display as a bordered 16x2 box. The box is redrawn
// each time the bottom row is written.
type Terminal struct {
	w io.Writer

	mu    sync.Mutex
	lines [Rows]string
	row   int
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) WriteLine(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lines[t.row] = text
	t.row = (t.row + 1) % Rows
	if t.row != 0 {
		return nil
	}

	// Raw keyboard mode does not translate \n.
	out := strings.ReplaceAll(t.view(), "\n", "\r\n")
	_, err := fmt.Fprintf(t.w, "\033[H\033[2J%s\r\n", out)
	return err
}

// View returns the box as currently drawn.
func (t *Terminal) View() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view()
}

func (t *Terminal) view() string {
	rows := make([]string, Rows)
	for i, l := range t.lines {
		r := []rune(l)
		if len(r) > Columns {
			r = r[:Columns]
		}
		rows[i] = string(r) + strings.Repeat(" ", Columns-len(r))
	}
	box := displayStyle.Render(strings.Join(rows, "\n"))
	help := helpStyle.Render("enter: confirm  r: reset  q: quit")
	return lipgloss.JoinVertical(lipgloss.Left, box, help)
}
