package calibration

import (
	"fmt"
	"strings"
)

const (
	promptIntro      = "  Calibration"
	promptStart      = " Push to Start"
	promptPushButton = "  Push Button"
	promptDone       = "Calibration done"
	promptSaved      = "  Saved"
	promptRestart    = " Restart to redo"
)

// Prompt is the text shown on the 16x2 character display.
type Prompt struct {
	Top    string
	Bottom string
}

// Lines returns the display rows top to bottom.
func (p Prompt) Lines() []string {
	return []string{p.Top, p.Bottom}
}

func (p Prompt) String() string {
	return strings.Join(p.Lines(), "\n")
}

// PromptFor maps a controller state to the text telling the operator what to
// do before the next confirm. failed lists quantities whose derivation failed
// and only matters once finished.
func PromptFor(s State, finished bool, failed []Quantity, refs References) Prompt {
	if finished {
		if len(failed) == 0 {
			return Prompt{Top: promptDone, Bottom: promptSaved}
		}
		symbols := make([]string, 0, len(failed))
		for _, q := range failed {
			symbols = append(symbols, q.Symbol())
		}
		return Prompt{Top: "Cal error: " + strings.Join(symbols, "+"), Bottom: promptRestart}
	}

	switch s {
	case StateInitialize:
		return Prompt{Top: promptIntro, Bottom: promptStart}
	case StatePromptLowV:
		return Prompt{Top: promptIntro, Bottom: promptPushButton}
	case StateReadLowVPromptHighV:
		return Prompt{Top: voltageLine(refs.LowVoltage), Bottom: promptPushButton}
	case StateReadHighVPromptLowI:
		return Prompt{Top: voltageLine(refs.HighVoltage), Bottom: promptPushButton}
	case StateReadLowIPromptHighI:
		return Prompt{Top: currentLine(refs.LowCurrent), Bottom: promptPushButton}
	case StateReadHighIFinish:
		return Prompt{Top: currentLine(refs.HighCurrent), Bottom: promptPushButton}
	}
	return Prompt{Top: promptIntro, Bottom: promptPushButton}
}

// voltageLine renders volts to the millivolt, e.g. "Volts:  ±13.500".
func voltageLine(v float64) string {
	return fmt.Sprintf("Volts:  ±%6.3f", v)
}

// currentLine renders milliamps to a tenth, e.g. "mAmps:    900.0".
func currentLine(ma float64) string {
	return fmt.Sprintf("mAmps:  %7.1f", ma)
}
