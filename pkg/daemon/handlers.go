package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/psmon/pkg/calibration"
	"github.com/charlie0129/psmon/pkg/config"
	"github.com/charlie0129/psmon/pkg/store"
	"github.com/charlie0129/psmon/pkg/version"
)

// RecordResponse is the body of GET /calibration/record.
type RecordResponse struct {
	Calibrated bool         `json:"calibrated"`
	Record     store.Record `json:"record"`
}

// CorrectResponse is the body of GET /calibration/correct.
type CorrectResponse struct {
	Quantity   calibration.Quantity `json:"quantity"`
	Raw        float64              `json:"raw"`
	Corrected  float64              `json:"corrected"`
	Calibrated bool                 `json:"calibrated"`
}

// ScheduleResponse is the body returned by the schedule endpoints.
type ScheduleResponse struct {
	Cron     string      `json:"cron"`
	NextRuns []time.Time `json:"nextRuns"`
}

func abort(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getCalibration(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, getCalibrationStatus())
}

func getPrompt(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, getCalibrationPrompt())
}

func postConfirm(c *gin.Context) {
	st, err := confirmCalibration()
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, calibration.ErrSensorRead) {
			code = http.StatusServiceUnavailable
		}
		abort(c, code, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, st)
}

func postReset(c *gin.Context) {
	c.IndentedJSON(http.StatusCreated, resetCalibration())
}

func getRecord(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, RecordResponse{
		Calibrated: recordStore.Calibrated(),
		Record:     recordStore.Record(),
	})
}

func getCorrect(c *gin.Context) {
	q, err := calibration.ParseQuantity(c.Query("quantity"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	raw, err := strconv.ParseFloat(c.Query("raw"), 64)
	if err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("invalid raw value %q", c.Query("raw")))
		return
	}

	c.IndentedJSON(http.StatusOK, CorrectResponse{
		Quantity:   q,
		Raw:        raw,
		Corrected:  recordStore.Correct(q, raw),
		Calibrated: recordStore.CalibratedFor(q),
	})
}

func setReferences(c *gin.Context) {
	var refs calibration.References
	if err := c.BindJSON(&refs); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := refs.Validate(); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if refs.HighVoltage > conf.MaxVoltage() || refs.HighCurrent > conf.MaxCurrent() {
		abort(c, http.StatusBadRequest, fmt.Errorf("references exceed full scale of %vV / %vmA", conf.MaxVoltage(), conf.MaxCurrent()))
		return
	}

	conf.SetReferences(refs)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithField("references", refs).Info("set calibration references")

	c.IndentedJSON(http.StatusCreated, "references saved, they take effect on the next reset")
}

func setSchedule(c *gin.Context) {
	var expr string
	if err := c.BindJSON(&expr); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	next, err := applySchedule(expr)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	conf.SetRecalibrationCron(expr)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, ScheduleResponse{Cron: expr, NextRuns: next})
}

func getSchedule(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, ScheduleResponse{
		Cron:     conf.RecalibrationCron(),
		NextRuns: scheduler.Upcoming(3),
	})
}

func postSkipSchedule(c *gin.Context) {
	if err := scheduler.Skip(); err != nil {
		abort(c, http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, ScheduleResponse{
		Cron:     conf.RecalibrationCron(),
		NextRuns: scheduler.Upcoming(3),
	})
}

func postPostponeSchedule(c *gin.Context) {
	d, err := time.ParseDuration(c.Query("duration"))
	if err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("invalid duration %q", c.Query("duration")))
		return
	}
	if err := scheduler.Postpone(d); err != nil {
		abort(c, http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, ScheduleResponse{
		Cron:     conf.RecalibrationCron(),
		NextRuns: scheduler.Upcoming(3),
	})
}

func getReadings(c *gin.Context) {
	samples := 1
	if q := c.Query("samples"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > maxSamples {
			abort(c, http.StatusBadRequest, fmt.Errorf("samples must be between 1 and %d, got %q", maxSamples, q))
			return
		}
		samples = n
	}

	rd, err := takeReading(samples)
	if err != nil {
		code := http.StatusServiceUnavailable
		switch {
		case errors.Is(err, ErrCalibrationInProgress):
			code = http.StatusConflict
		case errors.Is(err, ErrMonitorUnsupported):
			code = http.StatusNotImplemented
		}
		abort(c, code, err)
		return
	}
	publishReading(rd)

	c.IndentedJSON(http.StatusOK, rd)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
