package sensor

import (
	"encoding/binary"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"tinygo.org/x/drivers"

	"github.com/charlie0129/psmon/pkg/calibration"
)

// DefaultAddress is the INA260 address with A0 and A1 tied to ground.
const DefaultAddress = 0x40

// INA260 registers.
const (
	RegConfig         = 0x00
	RegCurrent        = 0x01
	RegBusVoltage     = 0x02
	RegPower          = 0x03
	RegManufacturerID = 0xFE
)

const (
	manufacturerID = 0x5449 // "TI"

	// Register LSBs.
	currentLSB = 1.25 // mA
	voltageLSB = 1.25 // mV
	powerLSB   = 10.0 // mW

	configReset      = 0x8000
	configFixed      = 0x6000
	modeContinuous   = 0x7
	conversion1100us = 0x4
)

// averagingBits maps a sample count to the AVG field of the config register.
var averagingBits = map[int]uint16{
	1: 0, 4: 1, 16: 2, 64: 3, 128: 4, 256: 5, 512: 6, 1024: 7,
}

var _ calibration.SensorReader = &INA260{}

// INA260 is a register level driver for the INA260 power monitor.
type INA260 struct {
	bus     drivers.I2C
	Address uint16
}

// NewINA260 creates a driver for the device at addr. Call Configure before
// the first reading.
func NewINA260(bus drivers.I2C, addr uint16) *INA260 {
	if addr == 0 {
		addr = DefaultAddress
	}
	return &INA260{bus: bus, Address: addr}
}

// Config holds the device settings that can be changed.
type Config struct {
	// AveragingCount is the number of samples averaged per reading.
	AveragingCount int
}

// Configure puts the device in continuous bus voltage and current mode with
// 1.1 ms conversions and the requested averaging.
func (d *INA260) Configure(cfg Config) error {
	if cfg.AveragingCount == 0 {
		cfg.AveragingCount = 1
	}
	avg, ok := averagingBits[cfg.AveragingCount]
	if !ok {
		return fmt.Errorf("unsupported averaging count %d", cfg.AveragingCount)
	}

	val := configFixed | avg<<9 | conversion1100us<<6 | conversion1100us<<3 | modeContinuous
	if err := d.writeRegister(RegConfig, uint16(val)); err != nil {
		return pkgerrors.Wrap(err, "failed to configure INA260")
	}
	return nil
}

// Reset restores the power-on defaults of every register.
func (d *INA260) Reset() error {
	if err := d.writeRegister(RegConfig, configReset); err != nil {
		return pkgerrors.Wrap(err, "failed to reset INA260")
	}
	return nil
}

// Connected reports whether an INA260 answers at the configured address.
func (d *INA260) Connected() bool {
	id, err := d.readRegister(RegManufacturerID)
	return err == nil && id == manufacturerID
}

// ReadBusVoltage returns the bus voltage in volts.
func (d *INA260) ReadBusVoltage() (float64, error) {
	v, err := d.readRegister(RegBusVoltage)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to read bus voltage")
	}
	return float64(v) * voltageLSB / 1000, nil
}

// ReadCurrent returns the shunt current in milliamps. Negative values mean
// current flowing from IN- to IN+.
func (d *INA260) ReadCurrent() (float64, error) {
	v, err := d.readRegister(RegCurrent)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to read current")
	}
	return float64(int16(v)) * currentLSB, nil
}

// ReadPower returns the load power in milliwatts, as computed by the device
// from the uncorrected bus voltage and current.
func (d *INA260) ReadPower() (float64, error) {
	v, err := d.readRegister(RegPower)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to read power")
	}
	return float64(v) * powerLSB, nil
}

func (d *INA260) readRegister(reg uint8) (uint16, error) {
	buf := make([]byte, 2)
	if err := d.bus.Tx(d.Address, []byte{reg}, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func (d *INA260) writeRegister(reg uint8, val uint16) error {
	buf := []byte{reg, 0, 0}
	binary.BigEndian.PutUint16(buf[1:], val)
	return d.bus.Tx(d.Address, buf, nil)
}
