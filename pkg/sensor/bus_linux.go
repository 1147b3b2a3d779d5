//go:build linux

package sensor

import (
	"fmt"
	"os"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// i2cSlave is the i2c-dev ioctl selecting the target address.
const i2cSlave = 0x0703

// LinuxBus is an I2C adapter exposed by the i2c-dev kernel module.
type LinuxBus struct {
	mu   sync.Mutex
	f    *os.File
	addr uint16
	path string
}

// OpenBus opens /dev/i2c-<n>.
func OpenBus(n int) (Bus, error) {
	path := fmt.Sprintf("/dev/i2c-%d", n)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open i2c bus %s", path)
	}
	logrus.WithField("path", path).Debug("i2c bus opened")
	return &LinuxBus{f: f, path: path}, nil
}

// Tx writes w to the device at addr, then reads len(r) bytes into r.
func (b *LinuxBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.selectAddress(addr); err != nil {
		return err
	}
	if len(w) > 0 {
		if _, err := b.f.Write(w); err != nil {
			return pkgerrors.Wrapf(err, "failed to write to 0x%02x on %s", addr, b.path)
		}
	}
	if len(r) > 0 {
		if _, err := b.f.Read(r); err != nil {
			return pkgerrors.Wrapf(err, "failed to read from 0x%02x on %s", addr, b.path)
		}
	}
	return nil
}

// ReadRegister reads len(buf) bytes starting at register reg.
func (b *LinuxBus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

// WriteRegister writes buf starting at register reg.
func (b *LinuxBus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

func (b *LinuxBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.f.Close()
}

func (b *LinuxBus) selectAddress(addr uint16) error {
	if b.addr == addr && addr != 0 {
		return nil
	}
	if err := unix.IoctlSetInt(int(b.f.Fd()), i2cSlave, int(addr)); err != nil {
		return pkgerrors.Wrapf(err, "failed to select i2c address 0x%02x on %s", addr, b.path)
	}
	b.addr = addr
	return nil
}
