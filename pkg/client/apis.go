package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/psmon/pkg/calibration"
	"github.com/charlie0129/psmon/pkg/config"
	"github.com/charlie0129/psmon/pkg/monitor"
	"github.com/charlie0129/psmon/pkg/store"
)

// Record is the stored calibration as reported by the daemon.
type Record struct {
	Calibrated bool         `json:"calibrated"`
	Record     store.Record `json:"record"`
}

// Correction is a raw reading and its corrected value.
type Correction struct {
	Quantity   calibration.Quantity `json:"quantity"`
	Raw        float64              `json:"raw"`
	Corrected  float64              `json:"corrected"`
	Calibrated bool                 `json:"calibrated"`
}

// Schedule is the recalibration reminder schedule.
type Schedule struct {
	Cron     string      `json:"cron"`
	NextRuns []time.Time `json:"nextRuns"`
}

func decode[T any](ret string, what string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return &v, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	return decode[config.RawFileConfig](ret, "config")
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

func (c *Client) GetCalibrationStatus() (*calibration.Status, error) {
	ret, err := c.Get("/calibration")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get calibration status")
	}
	return decode[calibration.Status](ret, "calibration status")
}

func (c *Client) GetPrompt() (string, error) {
	ret, err := c.Get("/calibration/prompt")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get prompt")
	}
	var p string
	if err := json.Unmarshal([]byte(ret), &p); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal prompt")
	}
	return p, nil
}

// Confirm presses the confirm button once.
func (c *Client) Confirm() (*calibration.Status, error) {
	ret, err := c.Post("/calibration/confirm", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to confirm")
	}
	return decode[calibration.Status](ret, "calibration status")
}

// Reset restarts the calibration run.
func (c *Client) Reset() (*calibration.Status, error) {
	ret, err := c.Post("/calibration/reset", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to reset calibration")
	}
	return decode[calibration.Status](ret, "calibration status")
}

func (c *Client) GetRecord() (*Record, error) {
	ret, err := c.Get("/calibration/record")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get calibration record")
	}
	return decode[Record](ret, "calibration record")
}

// Correct asks the daemon to apply the stored correction of q to raw.
func (c *Client) Correct(q calibration.Quantity, raw float64) (*Correction, error) {
	v := url.Values{}
	v.Set("quantity", string(q))
	v.Set("raw", strconv.FormatFloat(raw, 'g', -1, 64))

	ret, err := c.Get("/calibration/correct?" + v.Encode())
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to correct %s reading", q)
	}
	return decode[Correction](ret, "correction")
}

func (c *Client) SetReferences(refs calibration.References) (string, error) {
	payload, err := json.Marshal(refs)
	if err != nil {
		return "", err
	}
	return c.Put("/calibration/references", string(payload))
}

func (c *Client) GetSchedule() (*Schedule, error) {
	ret, err := c.Get("/calibration/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedule")
	}
	return decode[Schedule](ret, "schedule")
}

// SetSchedule sets the reminder cron expression. An empty expression
// disables the reminder.
func (c *Client) SetSchedule(cronExpr string) (*Schedule, error) {
	payload, err := json.Marshal(cronExpr)
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/calibration/schedule", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set schedule")
	}
	return decode[Schedule](ret, "schedule")
}

func (c *Client) SkipSchedule() (*Schedule, error) {
	ret, err := c.Post("/calibration/schedule/skip", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to skip reminder")
	}
	return decode[Schedule](ret, "schedule")
}

func (c *Client) PostponeSchedule(d time.Duration) (*Schedule, error) {
	ret, err := c.Post(fmt.Sprintf("/calibration/schedule/postpone?duration=%s", url.QueryEscape(d.String())), "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to postpone reminder")
	}
	return decode[Schedule](ret, "schedule")
}

// GetReading takes a corrected reading averaged over samples. It fails while
// a calibration run is in progress.
func (c *Client) GetReading(samples int) (*monitor.Reading, error) {
	ret, err := c.Get(fmt.Sprintf("/readings?samples=%d", samples))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get reading")
	}
	return decode[monitor.Reading](ret, "reading")
}
