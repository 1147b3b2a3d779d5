package calibration

import (
	"fmt"
	"math"
	"time"
)

// State defines the steps of the calibration state machine. A State names the
// action that runs when the next confirm event arrives.
type State string

const (
	StateInitialize          State = "Initialize"
	StatePromptLowV          State = "PromptLowV"
	StateReadLowVPromptHighV State = "ReadLowVPromptHighV"
	StateReadHighVPromptLowI State = "ReadHighVPromptLowI"
	StateReadLowIPromptHighI State = "ReadLowIPromptHighI"
	StateReadHighIFinish     State = "ReadHighIFinish"
)

// next returns the state that follows s. The terminal state has no successor
// and returns itself.
func (s State) next() State {
	switch s {
	case StateInitialize:
		return StatePromptLowV
	case StatePromptLowV:
		return StateReadLowVPromptHighV
	case StateReadLowVPromptHighV:
		return StateReadHighVPromptLowI
	case StateReadHighVPromptLowI:
		return StateReadLowIPromptHighI
	case StateReadLowIPromptHighI:
		return StateReadHighIFinish
	}
	return StateReadHighIFinish
}

// Quantity is a calibrated physical quantity.
type Quantity string

const (
	Voltage Quantity = "voltage"
	Current Quantity = "current"
)

// Quantities lists every calibrated quantity in capture order.
var Quantities = []Quantity{Voltage, Current}

// ParseQuantity accepts the long and the short ("v", "i") spelling.
func ParseQuantity(s string) (Quantity, error) {
	switch s {
	case "voltage", "v", "V":
		return Voltage, nil
	case "current", "i", "I":
		return Current, nil
	}
	return "", fmt.Errorf("unknown quantity %q", s)
}

// Symbol is the one-letter name used on the display.
func (q Quantity) Symbol() string {
	if q == Current {
		return "I"
	}
	return "V"
}

// Level selects the low or the high anchor of a two-point calibration.
type Level string

const (
	Low  Level = "low"
	High Level = "high"
)

// ReferencePoint pairs the raw sensor reading taken while the operator applied
// a known reference with that reference value.
type ReferencePoint struct {
	Raw    float64 `json:"raw"`
	Actual float64 `json:"actual"`
	Set    bool    `json:"set"`
}

// Points holds the four reference points of one run.
type Points struct {
	VoltageLow  ReferencePoint `json:"voltageLow"`
	VoltageHigh ReferencePoint `json:"voltageHigh"`
	CurrentLow  ReferencePoint `json:"currentLow"`
	CurrentHigh ReferencePoint `json:"currentHigh"`
}

func (p *Points) at(q Quantity, l Level) *ReferencePoint {
	switch {
	case q == Voltage && l == Low:
		return &p.VoltageLow
	case q == Voltage && l == High:
		return &p.VoltageHigh
	case q == Current && l == Low:
		return &p.CurrentLow
	default:
		return &p.CurrentHigh
	}
}

// Pair returns the low and high point captured for q.
func (p Points) Pair(q Quantity) (low, high ReferencePoint) {
	return *p.at(q, Low), *p.at(q, High)
}

// Result is the affine correction derived for one quantity.
type Result struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

// Identity is the correction used when no calibration is available.
var Identity = Result{Scale: 1, Offset: 0}

// Correct maps a raw sensor reading to a calibrated physical value.
func (r Result) Correct(raw float64) float64 {
	return r.Scale*raw + r.Offset
}

// Valid reports whether both coefficients are finite and the scale non-zero.
func (r Result) Valid() bool {
	return !math.IsNaN(r.Scale) && !math.IsInf(r.Scale, 0) && r.Scale != 0 &&
		!math.IsNaN(r.Offset) && !math.IsInf(r.Offset, 0)
}

// Results holds the derived corrections of one run. A nil entry is unset.
type Results struct {
	Voltage *Result `json:"voltage,omitempty"`
	Current *Result `json:"current,omitempty"`
}

// Get returns the result for q, if it was derived.
func (r Results) Get(q Quantity) (Result, bool) {
	var res *Result
	if q == Voltage {
		res = r.Voltage
	} else {
		res = r.Current
	}
	if res == nil {
		return Result{}, false
	}
	return *res, true
}

func (r *Results) set(q Quantity, res Result) {
	if q == Voltage {
		r.Voltage = &res
	} else {
		r.Current = &res
	}
}

// References are the four known values the operator applies during a run.
// Voltages are in volts, currents in milliamps.
type References struct {
	LowVoltage  float64 `json:"lowVoltage"`
	HighVoltage float64 `json:"highVoltage"`
	LowCurrent  float64 `json:"lowCurrent"`
	HighCurrent float64 `json:"highCurrent"`
}

// DefaultReferences places the anchors at 10% and 90% of full scale.
func DefaultReferences(maxVoltage, maxCurrent float64) References {
	return References{
		LowVoltage:  maxVoltage / 10,
		HighVoltage: maxVoltage / 10 * 9,
		LowCurrent:  maxCurrent / 10,
		HighCurrent: maxCurrent / 10 * 9,
	}
}

// Reference returns the configured reference for q at level l.
func (r References) Reference(q Quantity, l Level) float64 {
	switch {
	case q == Voltage && l == Low:
		return r.LowVoltage
	case q == Voltage && l == High:
		return r.HighVoltage
	case q == Current && l == Low:
		return r.LowCurrent
	default:
		return r.HighCurrent
	}
}

// Validate checks that every anchor is finite, positive and that low < high.
func (r References) Validate() error {
	for _, q := range Quantities {
		low, high := r.Reference(q, Low), r.Reference(q, High)
		for _, v := range []float64{low, high} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return fmt.Errorf("%s reference must be a positive number, got %v", q, v)
			}
		}
		if low >= high {
			return fmt.Errorf("low %s reference (%v) must be below high reference (%v)", q, low, high)
		}
	}
	return nil
}

// Transition describes one advance of the state machine.
type Transition struct {
	From     State               `json:"from"`
	To       State               `json:"to"`
	Finished bool                `json:"finished"`
	Captured *CapturedPoint      `json:"captured,omitempty"`
	Results  Results             `json:"results"`
	Errors   map[Quantity]string `json:"errors,omitempty"`
}

// CapturedPoint is a reference point together with its slot.
type CapturedPoint struct {
	Quantity Quantity       `json:"quantity"`
	Level    Level          `json:"level"`
	Point    ReferencePoint `json:"point"`
}

// Status is a synthesized view model exposed via HTTP and the CLI.
type Status struct {
	State      State               `json:"state"`
	Finished   bool                `json:"finished"`
	Prompt     []string            `json:"prompt"`
	References References          `json:"references"`
	Points     Points              `json:"points"`
	Results    Results             `json:"results"`
	Errors     map[Quantity]string `json:"errors,omitempty"`
	StartedAt  time.Time           `json:"startedAt"`
	FinishedAt time.Time           `json:"finishedAt"`
	LastError  string              `json:"lastError,omitempty"`
}
