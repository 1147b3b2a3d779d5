package panel

import (
	"bytes"
	"strings"
	"testing"

	"github.com/eiannone/keyboard"
)

func TestTerminalRedrawsOnBottomRow(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	if err := term.WriteLine("  Calibration"); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Fatalf("box must not be drawn before the bottom row arrives")
	}
	if err := term.WriteLine("  Push Button"); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"  Calibration", "  Push Button", "enter: confirm"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(strings.ReplaceAll(out, "\r\n", ""), "\n") {
		t.Fatalf("every newline should be preceded by a carriage return")
	}
}

func TestTerminalViewPadsRows(t *testing.T) {
	term := NewTerminal(&bytes.Buffer{})
	_ = term.WriteLine("Volts:  ± 1.500")
	_ = term.WriteLine("x")

	lines := strings.Split(term.View(), "\n")
	// border, two rows, border, help
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), term.View())
	}
	if !strings.Contains(lines[2], "x"+strings.Repeat(" ", Columns-1)) {
		t.Fatalf("bottom row not padded: %q", lines[2])
	}
}

func TestKeyEvent(t *testing.T) {
	tests := []struct {
		char rune
		key  keyboard.Key
		want Event
		ok   bool
	}{
		{0, keyboard.KeyEnter, Confirm, true},
		{0, keyboard.KeySpace, Confirm, true},
		{'r', 0, Reset, true},
		{'R', 0, Reset, true},
		{'q', 0, Quit, true},
		{0, keyboard.KeyEsc, Quit, true},
		{0, keyboard.KeyCtrlC, Quit, true},
		{'x', 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := keyEvent(tt.char, tt.key)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("keyEvent(%q, %v) = %v, %v; want %v, %v", tt.char, tt.key, got, ok, tt.want, tt.ok)
		}
	}
}
