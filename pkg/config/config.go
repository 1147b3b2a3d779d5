package config

import (
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/psmon/pkg/calibration"
)

type Config interface {
	MaxVoltage() float64
	MaxCurrent() float64
	// References returns the four calibration anchors. Unset anchors are
	// derived from the full scale values.
	References() calibration.References
	I2CBus() int
	SensorAddress() uint16
	AveragingCount() int
	PanelPort() string
	PanelBaudRate() int
	RecordPath() string
	RecalibrationCron() string
	AllowNonRootAccess() bool

	SetReferences(calibration.References)
	SetRecalibrationCron(string)
	SetAllowNonRootAccess(bool)

	// Validate reports the first inconsistency found in the configuration.
	Validate() error
	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
