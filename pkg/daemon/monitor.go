package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/psmon/pkg/events"
	"github.com/charlie0129/psmon/pkg/monitor"
)

// maxSamples bounds the samples a single GET /readings may average.
const maxSamples = 64

// ErrMonitorUnsupported is returned when the sensor cannot report power.
var ErrMonitorUnsupported = errors.New("sensor does not support monitoring")

var (
	monitorMu   = &sync.Mutex{}
	lastReading *monitor.Reading
)

// takeReading reads the sensor between calibration runs. The sensor belongs
// to the controller while a run is in progress.
func takeReading(samples int) (monitor.Reading, error) {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()

	if err := checkIdleLocked(); err != nil {
		return monitor.Reading{}, err
	}
	r, ok := sensorReader.(monitor.Reader)
	if !ok {
		return monitor.Reading{}, ErrMonitorUnsupported
	}
	return monitor.Sample(r, recordStore, monitor.Limits{
		MaxVoltage: conf.MaxVoltage(),
		MaxCurrent: conf.MaxCurrent(),
	}, samples)
}

// publishReading remembers rd, publishes it and logs when the supply goes
// over or back into range.
func publishReading(rd monitor.Reading) {
	monitorMu.Lock()
	wasOver := lastReading != nil && lastReading.OverRange()
	lastReading = &rd
	monitorMu.Unlock()

	fields := logrus.Fields{
		"voltage": rd.Voltage,
		"current": rd.Current,
	}
	switch {
	case rd.OverRange() && !wasOver:
		logrus.WithFields(fields).Warn("supply over range")
	case !rd.OverRange() && wasOver:
		logrus.WithFields(fields).Info("supply back in range")
	}

	sseHub.Publish(events.MonitorReading, events.MonitorReadingEvent{
		Voltage:    rd.Voltage,
		Current:    rd.Current,
		Power:      rd.Power,
		Calibrated: rd.Calibrated,
		OverRange:  rd.OverRange(),
		Ts:         rd.Time.Unix(),
	})
}

// runMonitor takes a reading every interval until ctx is done. Ticks during
// a calibration run are skipped.
func runMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var failing bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rd, err := takeReading(1)
		switch {
		case errors.Is(err, ErrCalibrationInProgress):
			continue
		case errors.Is(err, ErrMonitorUnsupported):
			logrus.Warn("sensor does not support monitoring, monitor stopped")
			return
		case err != nil:
			if !failing {
				logrus.WithError(err).Warn("monitor reading failed")
			}
			failing = true
			continue
		}
		if failing {
			logrus.Info("monitor readings recovered")
			failing = false
		}
		publishReading(rd)
	}
}
