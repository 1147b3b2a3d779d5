package calibration

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// SensorReader returns raw, uncalibrated readings from the front end. Bus
// voltage is in volts, current in milliamps.
type SensorReader interface {
	ReadBusVoltage() (float64, error)
	ReadCurrent() (float64, error)
}

// DisplaySink shows one line of text. Lines arrive top row first.
type DisplaySink interface {
	WriteLine(text string) error
}

// Store persists a derived result. It is called once per valid quantity when
// a run finishes.
type Store interface {
	Save(q Quantity, r Result) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger replaces the default logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = l }
}

// WithObserver registers a callback invoked after every transition.
func WithObserver(f func(Transition)) Option {
	return func(c *Controller) { c.observer = f }
}

// WithDisplay renders the current prompt to d after every transition and
// reset.
func WithDisplay(d DisplaySink) Option {
	return func(c *Controller) { c.display = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller walks the operator through one calibration run. It is advanced
// only by OnConfirm and restarted only by Reset.
type Controller struct {
	sensor SensorReader
	store  Store
	refs   References

	log      logrus.FieldLogger
	observer func(Transition)
	display  DisplaySink
	now      func() time.Time

	state      State
	finished   bool
	points     Points
	results    Results
	errs       map[Quantity]*CalibrationError
	startedAt  time.Time
	finishedAt time.Time
	lastError  string
}

// NewController creates a controller in StateInitialize. store may be nil, in
// which case results are only reported, never persisted.
func NewController(sensor SensorReader, store Store, refs References, opts ...Option) (*Controller, error) {
	if sensor == nil {
		return nil, errors.New("sensor reader is nil")
	}
	if err := refs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid references: %w", err)
	}

	c := &Controller{
		sensor: sensor,
		store:  store,
		refs:   refs,
		log:    logrus.WithField("operation", "calibration"),
		now:    time.Now,
		state:  StateInitialize,
		errs:   map[Quantity]*CalibrationError{},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// IsFinished is true once the terminal step has run.
func (c *Controller) IsFinished() bool {
	return c.finished
}

// References returns the anchors this controller prompts for.
func (c *Controller) References() References {
	return c.refs
}

// Prompt returns the text for the current state.
func (c *Controller) Prompt() Prompt {
	return PromptFor(c.state, c.finished, c.failed(), c.refs)
}

// CurrentPromptText returns the prompt as newline separated rows.
func (c *Controller) CurrentPromptText() string {
	return c.Prompt().String()
}

// Render writes the current prompt to d.
func (c *Controller) Render(d DisplaySink) error {
	for _, line := range c.Prompt().Lines() {
		if err := d.WriteLine(line); err != nil {
			return fmt.Errorf("failed to write display line: %w", err)
		}
	}
	return nil
}

// OnConfirm runs the action of the current state and advances to the next
// one. Once finished it does nothing. A sensor failure leaves the state
// unchanged and returns an error wrapping ErrSensorRead.
func (c *Controller) OnConfirm() error {
	if c.finished {
		c.log.Debug("confirm ignored, calibration already finished")
		return nil
	}

	from := c.state
	var captured *CapturedPoint

	switch c.state {
	case StateInitialize:
		c.clear()
		c.startedAt = c.now()
		c.log.Info("calibration started")
	case StatePromptLowV:
		// Only the prompt changes.
	case StateReadLowVPromptHighV:
		p, err := c.capture(Voltage, Low)
		if err != nil {
			return err
		}
		captured = p
	case StateReadHighVPromptLowI:
		p, err := c.capture(Voltage, High)
		if err != nil {
			return err
		}
		captured = p
	case StateReadLowIPromptHighI:
		p, err := c.capture(Current, Low)
		if err != nil {
			return err
		}
		captured = p
	case StateReadHighIFinish:
		p, err := c.capture(Current, High)
		if err != nil {
			return err
		}
		captured = p
		c.finish()
	}

	c.state = from.next()

	c.log.WithFields(logrus.Fields{
		"from":     from,
		"to":       c.state,
		"finished": c.finished,
	}).Debug("calibration step")

	c.notify(Transition{
		From:     from,
		To:       c.state,
		Finished: c.finished,
		Captured: captured,
		Results:  c.results,
		Errors:   c.errorStrings(),
	})

	return nil
}

// Reset is the external restart. It returns to StateInitialize and discards
// every captured point, result and error.
func (c *Controller) Reset() {
	from := c.state
	c.clear()
	c.state = StateInitialize
	c.startedAt = time.Time{}
	c.log.WithField("from", from).Info("calibration reset")

	c.notify(Transition{From: from, To: c.state})
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	return Status{
		State:      c.state,
		Finished:   c.finished,
		Prompt:     c.Prompt().Lines(),
		References: c.refs,
		Points:     c.points,
		Results:    c.results,
		Errors:     c.errorStrings(),
		StartedAt:  c.startedAt,
		FinishedAt: c.finishedAt,
		LastError:  c.lastError,
	}
}

func (c *Controller) capture(q Quantity, l Level) (*CapturedPoint, error) {
	var (
		raw float64
		err error
	)
	if q == Voltage {
		raw, err = c.sensor.ReadBusVoltage()
	} else {
		raw, err = c.sensor.ReadCurrent()
	}
	if err != nil {
		c.lastError = err.Error()
		c.log.WithError(err).WithFields(logrus.Fields{
			"quantity": q,
			"level":    l,
		}).Error("failed to read sensor")
		return nil, fmt.Errorf("%w: %s %s: %w", ErrSensorRead, l, q, err)
	}

	p := c.points.at(q, l)
	*p = ReferencePoint{Raw: raw, Actual: c.refs.Reference(q, l), Set: true}

	c.log.WithFields(logrus.Fields{
		"quantity": q,
		"level":    l,
		"raw":      p.Raw,
		"actual":   p.Actual,
	}).Info("captured reference point")

	return &CapturedPoint{Quantity: q, Level: l, Point: *p}, nil
}

func (c *Controller) finish() {
	for _, q := range Quantities {
		low, high := c.points.Pair(q)
		log := c.log.WithField("quantity", q)

		res, err := Derive(q, low, high)
		if err != nil {
			var ce *CalibrationError
			if errors.As(err, &ce) {
				c.errs[q] = ce
			}
			log.WithError(err).Warn("calibration result not derived")
			continue
		}
		c.results.set(q, res)
		log.WithFields(logrus.Fields{
			"scale":  res.Scale,
			"offset": res.Offset,
		}).Info("calibration result derived")

		if c.store == nil {
			continue
		}
		if err := c.store.Save(q, res); err != nil {
			c.lastError = err.Error()
			log.WithError(err).Error("failed to save calibration result")
		}
	}

	c.finished = true
	c.finishedAt = c.now()
}

func (c *Controller) clear() {
	c.finished = false
	c.points = Points{}
	c.results = Results{}
	c.errs = map[Quantity]*CalibrationError{}
	c.finishedAt = time.Time{}
	c.lastError = ""
}

func (c *Controller) failed() []Quantity {
	var out []Quantity
	for _, q := range Quantities {
		if _, ok := c.errs[q]; ok {
			out = append(out, q)
		}
	}
	return out
}

func (c *Controller) errorStrings() map[Quantity]string {
	if len(c.errs) == 0 {
		return nil
	}
	out := make(map[Quantity]string, len(c.errs))
	for q, err := range c.errs {
		out[q] = err.Error()
	}
	return out
}

func (c *Controller) notify(t Transition) {
	if c.display != nil {
		if err := c.Render(c.display); err != nil {
			c.log.WithError(err).Warn("failed to render prompt")
		}
	}
	if c.observer != nil {
		c.observer(t)
	}
}
