package calibration

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a CalibrationError.
type ErrorKind string

const (
	// ErrKindDegenerateReference means the two captures of a quantity were
	// numerically indistinguishable, so no scale can be derived.
	ErrKindDegenerateReference ErrorKind = "DegenerateReference"
)

// CalibrationError is reported per quantity and never aborts a run.
type CalibrationError struct {
	Kind     ErrorKind
	Quantity Quantity
	RawLow   float64
	RawHigh  float64
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("%s calibration failed (%s): raw low %v and raw high %v give no span",
		e.Quantity, e.Kind, e.RawLow, e.RawHigh)
}

// ErrSensorRead is wrapped around any failure returned by the SensorReader.
var ErrSensorRead = errors.New("sensor read failed")

// IsDegenerate reports whether err is a degenerate-reference error.
func IsDegenerate(err error) bool {
	var ce *CalibrationError
	return errors.As(err, &ce) && ce.Kind == ErrKindDegenerateReference
}
