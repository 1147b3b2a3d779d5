package sensor

import (
	"sync"

	"github.com/charlie0129/psmon/pkg/calibration"
)

var _ calibration.SensorReader = &Simulated{}

// Simulated is a front end whose raw readings are an affine function of the
// value currently applied to it: raw = (applied - Offset) / Gain. A
// calibration run against it should therefore recover Gain and Offset.
type Simulated struct {
	mu sync.Mutex

	VoltageGain   float64
	VoltageOffset float64
	CurrentGain   float64
	CurrentOffset float64

	voltage float64
	current float64
}

// NewSimulated returns a front end with a few percent of gain error and a
// small offset on both channels.
func NewSimulated() *Simulated {
	return &Simulated{
		VoltageGain:   1.02,
		VoltageOffset: -0.05,
		CurrentGain:   0.97,
		CurrentOffset: 3,
	}
}

// Apply sets the true value present at the input.
func (s *Simulated) Apply(q calibration.Quantity, actual float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q == calibration.Voltage {
		s.voltage = actual
	} else {
		s.current = actual
	}
}

func (s *Simulated) ReadBusVoltage() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.voltage - s.VoltageOffset) / s.VoltageGain, nil
}

func (s *Simulated) ReadCurrent() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.current - s.CurrentOffset) / s.CurrentGain, nil
}

// ReadPower returns the product of the raw readings in milliwatts.
func (s *Simulated) ReadPower() (float64, error) {
	v, _ := s.ReadBusVoltage()
	i, _ := s.ReadCurrent()
	return v * i, nil
}

// Follow returns an observer that plays the operator: whenever the
// controller starts prompting for a reference, that reference is applied.
func (s *Simulated) Follow(refs calibration.References) func(calibration.Transition) {
	return func(t calibration.Transition) {
		switch t.To {
		case calibration.StateReadLowVPromptHighV:
			s.Apply(calibration.Voltage, refs.LowVoltage)
		case calibration.StateReadHighVPromptLowI:
			s.Apply(calibration.Voltage, refs.HighVoltage)
		case calibration.StateReadLowIPromptHighI:
			s.Apply(calibration.Current, refs.LowCurrent)
		case calibration.StateReadHighIFinish:
			if !t.Finished {
				s.Apply(calibration.Current, refs.HighCurrent)
			}
		}
	}
}
