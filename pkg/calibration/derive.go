package calibration

import "math"

// Derive computes corrected = scale*raw + offset through the low and high
// points of q. A zero span between the raw readings yields a
// *CalibrationError of kind ErrKindDegenerateReference.
func Derive(q Quantity, low, high ReferencePoint) (Result, error) {
	if !finite(low.Raw) || !finite(high.Raw) || high.Raw == low.Raw {
		return Result{}, degenerate(q, low, high)
	}

	scale := (high.Actual - low.Actual) / (high.Raw - low.Raw)
	offset := low.Actual - scale*low.Raw

	// Raws that differ only in the last bits can still overflow.
	if !finite(scale) || !finite(offset) || scale == 0 {
		return Result{}, degenerate(q, low, high)
	}
	return Result{Scale: scale, Offset: offset}, nil
}

func degenerate(q Quantity, low, high ReferencePoint) *CalibrationError {
	return &CalibrationError{
		Kind:     ErrKindDegenerateReference,
		Quantity: q,
		RawLow:   low.Raw,
		RawHigh:  high.Raw,
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
