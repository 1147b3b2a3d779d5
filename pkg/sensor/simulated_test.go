package sensor

import (
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/charlie0129/psmon/pkg/calibration"
)

func TestSimulatedCalibrationRecoversGain(t *testing.T) {
	sim := NewSimulated()
	refs := calibration.DefaultReferences(15, 1000)

	c, err := calibration.NewController(sim, nil, refs, calibration.WithObserver(sim.Follow(refs)))
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	for i := 0; i < 6; i++ {
		if err := c.OnConfirm(); err != nil {
			t.Fatalf("confirm #%d failed: %v", i+1, err)
		}
	}

	st := c.Status()
	v, ok := st.Results.Get(calibration.Voltage)
	if !ok {
		t.Fatalf("voltage result missing: %v", st.Errors)
	}
	if !scalar.EqualWithinAbs(v.Scale, sim.VoltageGain, 1e-9) || !scalar.EqualWithinAbs(v.Offset, sim.VoltageOffset, 1e-9) {
		t.Fatalf("unexpected voltage result %+v", v)
	}
	i, ok := st.Results.Get(calibration.Current)
	if !ok {
		t.Fatalf("current result missing: %v", st.Errors)
	}
	if !scalar.EqualWithinAbs(i.Scale, sim.CurrentGain, 1e-9) || !scalar.EqualWithinAbs(i.Offset, sim.CurrentOffset, 1e-6) {
		t.Fatalf("unexpected current result %+v", i)
	}
}
