package config

import (
	"encoding/json"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/psmon/pkg/calibration"
	"github.com/charlie0129/psmon/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		// Full scale of the front end: 15 V bus, 1 A shunt.
		MaxVoltage:     ptr.To(15.0),
		MaxCurrent:     ptr.To(1000.0),
		I2CBus:         ptr.To(1),
		SensorAddress:  ptr.To(uint16(0x40)),
		AveragingCount: ptr.To(16),
		PanelPort:      ptr.To(""),
		PanelBaudRate:  ptr.To(9600),
		RecordPath:     ptr.To("/var/lib/psmon/calibration.json"),
		// Empty disables the recalibration reminder.
		RecalibrationCron:  ptr.To(""),
		AllowNonRootAccess: ptr.To(false),
	}

	// AveragingCounts are the sample counts the sensor can average over.
	AveragingCounts = []int{1, 4, 16, 64, 128, 256, 512, 1024}

	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	MaxVoltage         *float64 `json:"maxVoltage,omitempty"`
	MaxCurrent         *float64 `json:"maxCurrent,omitempty"`
	LowVoltage         *float64 `json:"lowVoltage,omitempty"`
	HighVoltage        *float64 `json:"highVoltage,omitempty"`
	LowCurrent         *float64 `json:"lowCurrent,omitempty"`
	HighCurrent        *float64 `json:"highCurrent,omitempty"`
	I2CBus             *int     `json:"i2cBus,omitempty"`
	SensorAddress      *uint16  `json:"sensorAddress,omitempty"`
	AveragingCount     *int     `json:"averagingCount,omitempty"`
	PanelPort          *string  `json:"panelPort,omitempty"`
	PanelBaudRate      *int     `json:"panelBaudRate,omitempty"`
	RecordPath         *string  `json:"recordPath,omitempty"`
	RecalibrationCron  *string  `json:"recalibrationCron,omitempty"`
	AllowNonRootAccess *bool    `json:"allowNonRootAccess,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	refs := c.References()
	rawConfig := &RawFileConfig{
		MaxVoltage:         ptr.To(c.MaxVoltage()),
		MaxCurrent:         ptr.To(c.MaxCurrent()),
		LowVoltage:         ptr.To(refs.LowVoltage),
		HighVoltage:        ptr.To(refs.HighVoltage),
		LowCurrent:         ptr.To(refs.LowCurrent),
		HighCurrent:        ptr.To(refs.HighCurrent),
		I2CBus:             ptr.To(c.I2CBus()),
		SensorAddress:      ptr.To(c.SensorAddress()),
		AveragingCount:     ptr.To(c.AveragingCount()),
		PanelPort:          ptr.To(c.PanelPort()),
		PanelBaudRate:      ptr.To(c.PanelBaudRate()),
		RecordPath:         ptr.To(c.RecordPath()),
		RecalibrationCron:  ptr.To(c.RecalibrationCron()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

// value reads a field under the read lock, falling back to its default.
func value[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

func (f *File) MaxVoltage() float64 {
	return value(f, func(c *RawFileConfig) *float64 { return c.MaxVoltage })
}

func (f *File) MaxCurrent() float64 {
	return value(f, func(c *RawFileConfig) *float64 { return c.MaxCurrent })
}

func (f *File) References() calibration.References {
	refs := calibration.DefaultReferences(f.MaxVoltage(), f.MaxCurrent())

	f.mu.RLock()
	defer f.mu.RUnlock()

	refs.LowVoltage = ptr.Deref(f.c.LowVoltage, refs.LowVoltage)
	refs.HighVoltage = ptr.Deref(f.c.HighVoltage, refs.HighVoltage)
	refs.LowCurrent = ptr.Deref(f.c.LowCurrent, refs.LowCurrent)
	refs.HighCurrent = ptr.Deref(f.c.HighCurrent, refs.HighCurrent)

	return refs
}

func (f *File) I2CBus() int {
	return value(f, func(c *RawFileConfig) *int { return c.I2CBus })
}

func (f *File) SensorAddress() uint16 {
	return value(f, func(c *RawFileConfig) *uint16 { return c.SensorAddress })
}

func (f *File) AveragingCount() int {
	return value(f, func(c *RawFileConfig) *int { return c.AveragingCount })
}

func (f *File) PanelPort() string {
	return value(f, func(c *RawFileConfig) *string { return c.PanelPort })
}

func (f *File) PanelBaudRate() int {
	return value(f, func(c *RawFileConfig) *int { return c.PanelBaudRate })
}

func (f *File) RecordPath() string {
	return value(f, func(c *RawFileConfig) *string { return c.RecordPath })
}

func (f *File) RecalibrationCron() string {
	return value(f, func(c *RawFileConfig) *string { return c.RecalibrationCron })
}

func (f *File) AllowNonRootAccess() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) SetReferences(r calibration.References) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.LowVoltage = &r.LowVoltage
	f.c.HighVoltage = &r.HighVoltage
	f.c.LowCurrent = &r.LowCurrent
	f.c.HighCurrent = &r.HighCurrent
}

func (f *File) SetRecalibrationCron(expr string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.RecalibrationCron = &expr
}

func (f *File) SetAllowNonRootAccess(allow bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = &allow
}

func (f *File) Validate() error {
	maxV, maxI := f.MaxVoltage(), f.MaxCurrent()
	if maxV <= 0 || maxI <= 0 {
		return pkgerrors.Errorf("full scale must be positive, got %vV and %vmA", maxV, maxI)
	}

	refs := f.References()
	if err := refs.Validate(); err != nil {
		return pkgerrors.Wrap(err, "invalid calibration references")
	}
	if refs.HighVoltage > maxV {
		return pkgerrors.Errorf("high voltage reference %vV exceeds full scale %vV", refs.HighVoltage, maxV)
	}
	if refs.HighCurrent > maxI {
		return pkgerrors.Errorf("high current reference %vmA exceeds full scale %vmA", refs.HighCurrent, maxI)
	}

	if addr := f.SensorAddress(); addr < 0x40 || addr > 0x4f {
		return pkgerrors.Errorf("sensor address 0x%02x is outside 0x40-0x4f", addr)
	}
	if n := f.AveragingCount(); !slices.Contains(AveragingCounts, n) {
		return pkgerrors.Errorf("averaging count must be one of %v, got %d", AveragingCounts, n)
	}
	if f.PanelBaudRate() <= 0 {
		return pkgerrors.Errorf("panel baud rate must be positive, got %d", f.PanelBaudRate())
	}
	if f.RecordPath() == "" {
		return pkgerrors.New("record path is empty")
	}
	if expr := f.RecalibrationCron(); expr != "" {
		if _, err := cronParser.Parse(expr); err != nil {
			return pkgerrors.Wrapf(err, "invalid recalibration cron %q", expr)
		}
	}

	return nil
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	refs := f.References()
	return logrus.Fields{
		"maxVoltage":         f.MaxVoltage(),
		"maxCurrent":         f.MaxCurrent(),
		"lowVoltage":         refs.LowVoltage,
		"highVoltage":        refs.HighVoltage,
		"lowCurrent":         refs.LowCurrent,
		"highCurrent":        refs.HighCurrent,
		"i2cBus":             f.I2CBus(),
		"sensorAddress":      f.SensorAddress(),
		"averagingCount":     f.AveragingCount(),
		"panelPort":          f.PanelPort(),
		"panelBaudRate":      f.PanelBaudRate(),
		"recordPath":         f.RecordPath(),
		"recalibrationCron":  f.RecalibrationCron(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
	}
}
