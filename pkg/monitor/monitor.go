// Package monitor takes corrected readings from the power monitor and checks
// them against the full scale of the supply.
package monitor

import (
	"math"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/charlie0129/psmon/pkg/calibration"
)

// Reader is a sensor that also reports power.
type Reader interface {
	calibration.SensorReader
	// ReadPower returns the uncorrected load power in milliwatts.
	ReadPower() (float64, error)
}

// Corrector applies the stored calibration.
type Corrector interface {
	Correct(q calibration.Quantity, raw float64) float64
	CalibratedFor(q calibration.Quantity) bool
}

// Limits is the full scale of the supply. Readings above it are over range.
type Limits struct {
	MaxVoltage float64 // V
	MaxCurrent float64 // mA
}

// Reading is one averaged measurement.
type Reading struct {
	// Voltage and Current are corrected, in V and mA.
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	// Power is Voltage * Current in mW.
	Power float64 `json:"power"`

	RawVoltage float64 `json:"rawVoltage"`
	RawCurrent float64 `json:"rawCurrent"`
	// RawPower is the power reported by the sensor, in mW.
	RawPower float64 `json:"rawPower"`

	// Calibrated is false when either quantity has no stored calibration
	// and is passed through as read.
	Calibrated bool `json:"calibrated"`

	VoltageOverRange bool `json:"voltageOverRange"`
	CurrentOverRange bool `json:"currentOverRange"`

	Samples int       `json:"samples"`
	Time    time.Time `json:"time"`
}

// OverRange reports whether either quantity exceeds its limit.
func (r Reading) OverRange() bool {
	return r.VoltageOverRange || r.CurrentOverRange
}

// Sample averages n raw readings of each quantity, then corrects the means
// with c. Current is compared against the limit by magnitude.
func Sample(r Reader, c Corrector, lim Limits, n int) (Reading, error) {
	if n < 1 {
		n = 1
	}

	volts := make([]float64, n)
	amps := make([]float64, n)
	watts := make([]float64, n)
	for i := 0; i < n; i++ {
		var err error
		if volts[i], err = r.ReadBusVoltage(); err != nil {
			return Reading{}, pkgerrors.Wrap(err, "failed to read voltage")
		}
		if amps[i], err = r.ReadCurrent(); err != nil {
			return Reading{}, pkgerrors.Wrap(err, "failed to read current")
		}
		if watts[i], err = r.ReadPower(); err != nil {
			return Reading{}, pkgerrors.Wrap(err, "failed to read power")
		}
	}

	rd := Reading{
		RawVoltage: stat.Mean(volts, nil),
		RawCurrent: stat.Mean(amps, nil),
		RawPower:   stat.Mean(watts, nil),
		Samples:    n,
		Time:       time.Now(),
	}
	rd.Voltage = c.Correct(calibration.Voltage, rd.RawVoltage)
	rd.Current = c.Correct(calibration.Current, rd.RawCurrent)
	rd.Power = rd.Voltage * rd.Current
	rd.Calibrated = c.CalibratedFor(calibration.Voltage) && c.CalibratedFor(calibration.Current)

	rd.VoltageOverRange = rd.Voltage > lim.MaxVoltage
	rd.CurrentOverRange = math.Abs(rd.Current) > lim.MaxCurrent
	return rd, nil
}
