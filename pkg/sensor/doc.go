// Package sensor provides raw voltage and current readers for the
// calibration controller.
//
//   - INA260 talks to the TI INA260 power monitor over any I2C bus that
//     satisfies tinygo.org/x/drivers.I2C.
//   - OpenBus opens a Linux /dev/i2c-N adapter as such a bus.
//   - Simulated is an affine fake front end for demos and tests.
//
// Readings are raw: voltages in volts, currents in milliamps.
package sensor
