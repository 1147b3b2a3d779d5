package events

import "encoding/json"

// Event name constants
const (
	// CalibrationTransition is published after every confirm or reset.
	CalibrationTransition = "calibration.transition"
	// CalibrationFinished is published once per run, when the terminal step
	// has derived and saved the results.
	CalibrationFinished = "calibration.finished"
	// CalibrationError is published when a quantity could not be derived or
	// a sensor or store operation failed.
	CalibrationError = "calibration.error"
	// CalibrationDue is published by the recalibration reminder.
	CalibrationDue = "calibration.due"
	// MonitorReading is published by the monitor loop for every corrected
	// reading taken while no calibration is running.
	MonitorReading = "monitor.reading"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          `json:"name"` // SSE event name
	Data json.RawMessage `json:"data"` // Raw JSON payload
}

// CalibrationTransitionEvent is the typed payload for calibration.transition.
type CalibrationTransitionEvent struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Finished bool     `json:"finished"`
	Prompt   []string `json:"prompt"`
	// Captured is set when the step read the sensor.
	Captured *CapturedPoint `json:"captured,omitempty"`
	Ts       int64          `json:"ts"`
}

type CapturedPoint struct {
	Quantity string  `json:"quantity"`
	Level    string  `json:"level"`
	Raw      float64 `json:"raw"`
	Actual   float64 `json:"actual"`
}

// CalibrationFinishedEvent is the typed payload for calibration.finished.
type CalibrationFinishedEvent struct {
	Results map[string]Coefficients `json:"results"`
	// Failed lists quantities that were not derived and not saved.
	Failed []string `json:"failed,omitempty"`
	// Duration is the time from the first confirm to the last, e.g. "3m05s".
	Duration string `json:"duration"`
	Ts       int64  `json:"ts"`
}

type Coefficients struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

// CalibrationErrorEvent is the typed payload for calibration.error.
type CalibrationErrorEvent struct {
	Quantity string `json:"quantity,omitempty"`
	Message  string `json:"message"`
	Ts       int64  `json:"ts"`
}

// CalibrationDueEvent is the typed payload for calibration.due.
type CalibrationDueEvent struct {
	// Calibrated is false when no valid record is stored at all.
	Calibrated bool   `json:"calibrated"`
	Message    string `json:"message"`
	Ts         int64  `json:"ts"`
}

// MonitorReadingEvent is the typed payload for monitor.reading. Voltage is
// in V, current in mA and power in mW.
type MonitorReadingEvent struct {
	Voltage    float64 `json:"voltage"`
	Current    float64 `json:"current"`
	Power      float64 `json:"power"`
	Calibrated bool    `json:"calibrated"`
	// OverRange is set when either quantity exceeds the full scale.
	OverRange bool  `json:"overRange"`
	Ts        int64 `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.CalibrationTransitionEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.From, payload.To)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
