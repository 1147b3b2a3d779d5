package sensor

import (
	"errors"
	"fmt"

	"tinygo.org/x/drivers"
)

// ErrUnsupported is returned by OpenBus on platforms without i2c-dev.
var ErrUnsupported = errors.New("i2c bus access is not supported on this platform")

// Bus is an I2C adapter that must be closed after use.
type Bus interface {
	drivers.I2C
	Close() error
}

// Open opens i2c bus n and configures the INA260 at addr. The returned Bus
// must be closed when the device is no longer used.
func Open(n int, addr uint16, cfg Config) (*INA260, Bus, error) {
	bus, err := OpenBus(n)
	if err != nil {
		return nil, nil, err
	}

	dev, err := setup(bus, addr, cfg)
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("i2c bus %d: %w", n, err)
	}
	return dev, bus, nil
}

// setup resets the INA260 at addr and applies cfg.
func setup(bus drivers.I2C, addr uint16, cfg Config) (*INA260, error) {
	dev := NewINA260(bus, addr)
	if !dev.Connected() {
		return nil, fmt.Errorf("no INA260 found at 0x%02x", dev.Address)
	}
	if err := dev.Reset(); err != nil {
		return nil, err
	}
	if err := dev.Configure(cfg); err != nil {
		return nil, err
	}
	return dev, nil
}
