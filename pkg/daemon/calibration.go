package daemon

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/psmon/pkg/calibration"
	"github.com/charlie0129/psmon/pkg/events"
	"github.com/charlie0129/psmon/pkg/panel"
)

// The controller is not safe for concurrent use. Every access from HTTP
// handlers, the front panel and websocket clients goes through
// calibrationMu.
var (
	calibrationMu = &sync.Mutex{}
	controller    *calibration.Controller

	sensorReader calibration.SensorReader
	display      calibration.DisplaySink
	// followPrompts, if set, observes transitions after they are published.
	followPrompts func(calibration.Transition)
)

// ErrCalibrationInProgress is returned when an operation needs the
// controller to be idle.
var ErrCalibrationInProgress = errors.New("calibration in progress")

func newController(refs calibration.References) (*calibration.Controller, error) {
	opts := []calibration.Option{
		calibration.WithLogger(logrus.WithField("operation", "calibration")),
		calibration.WithObserver(publishTransition),
	}
	if display != nil {
		opts = append(opts, calibration.WithDisplay(display))
	}

	// A nil *store.File would not compare equal to a nil interface.
	var st calibration.Store
	if recordStore != nil {
		st = recordStore
	}

	return calibration.NewController(sensorReader, st, refs, opts...)
}

// initCalibration creates the controller and shows its first prompt.
func initCalibration(sensor calibration.SensorReader, sink calibration.DisplaySink) error {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()

	sensorReader = sensor
	display = sink

	c, err := newController(conf.References())
	if err != nil {
		return err
	}
	controller = c

	if display != nil {
		if err := controller.Render(display); err != nil {
			logrus.WithError(err).Warn("failed to show initial prompt")
		}
	}
	return nil
}

func confirmCalibration() (calibration.Status, error) {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()

	if err := controller.OnConfirm(); err != nil {
		sseHub.Publish(events.CalibrationError, events.CalibrationErrorEvent{
			Message: err.Error(),
			Ts:      time.Now().Unix(),
		})
		return controller.Status(), err
	}
	return controller.Status(), nil
}

// resetCalibration restarts the run. References changed by a config reload
// take effect here.
func resetCalibration() calibration.Status {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()

	if refs := conf.References(); refs != controller.References() {
		c, err := newController(refs)
		if err != nil {
			logrus.WithError(err).Error("failed to apply new references, keeping the old ones")
		} else {
			logrus.WithField("references", refs).Info("calibration references updated")
			from := controller.State()
			controller = c
			publishTransition(calibration.Transition{From: from, To: controller.State()})
			if display != nil {
				_ = controller.Render(display)
			}
			return controller.Status()
		}
	}

	controller.Reset()
	return controller.Status()
}

func getCalibrationStatus() calibration.Status {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()
	return controller.Status()
}

func getCalibrationPrompt() string {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()
	return controller.CurrentPromptText()
}

// calibrationIdle is the reminder precheck. It fails while a run is in
// progress.
func calibrationIdle() error {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()
	return checkIdleLocked()
}

func checkIdleLocked() error {
	if st := controller.State(); st != calibration.StateInitialize && !controller.IsFinished() {
		return fmt.Errorf("%w: at step %s", ErrCalibrationInProgress, st)
	}
	return nil
}

// handleInput funnels front panel and websocket input into the controller.
func handleInput(ev panel.Event) {
	log := logrus.WithField("event", ev)
	switch ev {
	case panel.Confirm:
		if _, err := confirmCalibration(); err != nil {
			log.WithError(err).Warn("confirm failed")
		}
	case panel.Reset:
		resetCalibration()
	default:
		log.Debug("ignoring input")
	}
}

// handlePanelInput is handleInput for the serial front panel, whose
// buttons bounce.
func handlePanelInput(ev panel.Event) {
	if !panelPresses.Accept(ev, time.Now()) {
		logrus.WithField("event", ev).Debug("ignoring bounced press")
		return
	}
	handleInput(ev)
}

// publishTransition is the controller observer. It runs with calibrationMu
// held.
func publishTransition(t calibration.Transition) {
	now := time.Now().Unix()

	ev := events.CalibrationTransitionEvent{
		From:     string(t.From),
		To:       string(t.To),
		Finished: t.Finished,
		Ts:       now,
	}
	if controller != nil {
		ev.Prompt = controller.Prompt().Lines()
	}
	if p := t.Captured; p != nil {
		ev.Captured = &events.CapturedPoint{
			Quantity: string(p.Quantity),
			Level:    string(p.Level),
			Raw:      p.Point.Raw,
			Actual:   p.Point.Actual,
		}
	}
	sseHub.Publish(events.CalibrationTransition, ev)
	if followPrompts != nil {
		followPrompts(t)
	}

	if !t.Finished {
		return
	}

	finished := events.CalibrationFinishedEvent{
		Results: map[string]events.Coefficients{},
		Ts:      now,
	}
	if controller != nil {
		st := controller.Status()
		finished.Duration = formatDuration(st.FinishedAt.Sub(st.StartedAt))
	}
	for _, q := range calibration.Quantities {
		if r, ok := t.Results.Get(q); ok {
			finished.Results[string(q)] = events.Coefficients{Scale: r.Scale, Offset: r.Offset}
		}
		if msg, ok := t.Errors[q]; ok {
			finished.Failed = append(finished.Failed, string(q))
			sseHub.Publish(events.CalibrationError, events.CalibrationErrorEvent{
				Quantity: string(q),
				Message:  msg,
				Ts:       now,
			})
		}
	}
	sseHub.Publish(events.CalibrationFinished, finished)

	logrus.WithFields(logrus.Fields{
		"duration": finished.Duration,
		"failed":   finished.Failed,
	}).Info("calibration finished")
}

// remindCalibration is the scheduled task of the recalibration reminder.
func remindCalibration() error {
	calibrated := recordStore != nil && recordStore.Calibrated()
	msg := "Calibration is due"
	if !calibrated {
		msg = "No complete calibration is stored, some readings are uncorrected"
	}
	logrus.WithField("calibrated", calibrated).Info(msg)

	sseHub.Publish(events.CalibrationDue, events.CalibrationDueEvent{
		Calibrated: calibrated,
		Message:    msg,
		Ts:         time.Now().Unix(),
	})
	return nil
}

// remindUpcoming announces a recalibration that is due at dueAt.
func remindUpcoming(dueAt time.Time) {
	msg := fmt.Sprintf("Calibration is due at %s", dueAt.Local().Format(time.DateTime))
	logrus.WithField("dueAt", dueAt).Info("recalibration due soon")

	sseHub.Publish(events.CalibrationDue, events.CalibrationDueEvent{
		Calibrated: recordStore != nil && recordStore.Calibrated(),
		Message:    msg,
		Ts:         time.Now().Unix(),
	})
}

// applySchedule points the reminder at cronExpr and returns its next runs.
func applySchedule(cronExpr string) ([]time.Time, error) {
	if err := scheduler.Schedule(cronExpr); err != nil {
		return nil, err
	}
	if cronExpr == "" {
		logrus.Info("recalibration reminder disabled")
		return nil, nil
	}
	scheduler.Start()

	next := scheduler.Upcoming(3)
	logrus.WithFields(logrus.Fields{
		"cron": cronExpr,
		"next": next,
	}).Info("recalibration reminder scheduled")
	return next, nil
}
