package daemon

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/charlie0129/psmon/pkg/calibration"
	"github.com/charlie0129/psmon/pkg/events"
	"github.com/charlie0129/psmon/pkg/monitor"
)

// voltageOnly is a sensor without a power register.
type voltageOnly struct{}

func (voltageOnly) ReadBusVoltage() (float64, error) { return 5, nil }
func (voltageOnly) ReadCurrent() (float64, error)    { return 10, nil }

func runToFinish(t *testing.T) {
	t.Helper()
	for i := 0; i < 6; i++ {
		if _, err := confirmCalibration(); err != nil {
			t.Fatalf("confirm #%d failed: %v", i+1, err)
		}
	}
}

func TestTakeReadingCorrects(t *testing.T) {
	sim := setupTestDaemon(t)
	sim.Apply(calibration.Voltage, 12)
	sim.Apply(calibration.Current, 500)

	rd, err := takeReading(1)
	if err != nil {
		t.Fatalf("takeReading failed: %v", err)
	}
	if rd.Calibrated || rd.Voltage != rd.RawVoltage || rd.Current != rd.RawCurrent {
		t.Fatalf("nothing is calibrated, readings must pass through: %+v", rd)
	}
	if scalar.EqualWithinAbs(rd.Voltage, 12, 1e-3) {
		t.Fatalf("simulated gain error should show in uncorrected reading %v", rd.Voltage)
	}

	runToFinish(t)
	sim.Apply(calibration.Voltage, 12)
	sim.Apply(calibration.Current, 500)

	rd, err = takeReading(4)
	if err != nil {
		t.Fatalf("takeReading failed: %v", err)
	}
	if !rd.Calibrated || rd.Samples != 4 {
		t.Fatalf("unexpected reading %+v", rd)
	}
	if !scalar.EqualWithinAbs(rd.Voltage, 12, 1e-9) || !scalar.EqualWithinAbs(rd.Current, 500, 1e-9) {
		t.Fatalf("expected corrected 12V 500mA, got %vV %vmA", rd.Voltage, rd.Current)
	}
	if !scalar.EqualWithinAbs(rd.Power, 6000, 1e-6) {
		t.Fatalf("expected 6000mW, got %v", rd.Power)
	}
	if rd.OverRange() {
		t.Fatalf("12V 500mA is within full scale")
	}

	sim.Apply(calibration.Voltage, 20)
	rd, err = takeReading(1)
	if err != nil {
		t.Fatalf("takeReading failed: %v", err)
	}
	if !rd.VoltageOverRange || rd.CurrentOverRange {
		t.Fatalf("expected voltage over range only, got %+v", rd)
	}
}

func TestTakeReadingDuringCalibration(t *testing.T) {
	setupTestDaemon(t)
	if _, err := confirmCalibration(); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	if _, err := takeReading(1); !errors.Is(err, ErrCalibrationInProgress) {
		t.Fatalf("expected ErrCalibrationInProgress, got %v", err)
	}

	resetCalibration()
	if _, err := takeReading(1); err != nil {
		t.Fatalf("reading after reset failed: %v", err)
	}
}

func TestTakeReadingErrors(t *testing.T) {
	sim := setupTestDaemon(t)
	sim.fail = errors.New("bus stuck")
	if _, err := takeReading(1); !errors.Is(err, sim.fail) {
		t.Fatalf("expected sensor error, got %v", err)
	}

	if err := initCalibration(voltageOnly{}, nil); err != nil {
		t.Fatalf("initCalibration failed: %v", err)
	}
	if _, err := takeReading(1); !errors.Is(err, ErrMonitorUnsupported) {
		t.Fatalf("expected ErrMonitorUnsupported, got %v", err)
	}
}

func TestHandlersReadings(t *testing.T) {
	sim := setupTestDaemon(t)
	router := setupRoutes()
	sim.Apply(calibration.Voltage, 5)

	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	w := do(t, router, http.MethodGet, "/readings?samples=8", "")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body)
	}
	if rd := decode[monitor.Reading](t, w); rd.Samples != 8 || rd.Calibrated {
		t.Fatalf("unexpected reading %+v", rd)
	}
	if evs := drain(ch); len(evs) != 1 || evs[0].Name != events.MonitorReading {
		t.Fatalf("expected one monitor.reading event, got %v", evs)
	}

	for _, q := range []string{"abc", "0", "65"} {
		if w := do(t, router, http.MethodGet, "/readings?samples="+q, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("samples=%s: expected 400, got %d", q, w.Code)
		}
	}

	do(t, router, http.MethodPost, "/calibration/confirm", "")
	if w := do(t, router, http.MethodGet, "/readings", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 during calibration, got %d", w.Code)
	}

	resetCalibration()
	sim.fail = errors.New("bus stuck")
	if w := do(t, router, http.MethodGet, "/readings", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on sensor error, got %d", w.Code)
	}
}

func TestRunMonitorPublishes(t *testing.T) {
	sim := setupTestDaemon(t)
	sim.Apply(calibration.Voltage, 20)

	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runMonitor(ctx, 10*time.Millisecond)
		close(done)
	}()

	select {
	case ev := <-ch:
		if ev.Name != events.MonitorReading {
			t.Fatalf("unexpected event %q", ev.Name)
		}
		payload, err := events.DecodeAs[events.MonitorReadingEvent](ev)
		if err != nil {
			t.Fatalf("DecodeAs failed: %v", err)
		}
		if !payload.OverRange || payload.Calibrated {
			t.Fatalf("unexpected payload %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("no monitor.reading event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("monitor did not stop")
	}
}
