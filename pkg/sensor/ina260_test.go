package sensor

import (
	"errors"
	"testing"
)

// fakeBus emulates the INA260 register file.
type fakeBus struct {
	addr    uint16
	regs    map[uint8]uint16
	pointer uint8
	fail    error
	writes  []uint16
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		addr: DefaultAddress,
		regs: map[uint8]uint16{
			RegConfig:         0x6127,
			RegManufacturerID: 0x5449,
		},
	}
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if b.fail != nil {
		return b.fail
	}
	if addr != b.addr {
		return errors.New("nack")
	}
	if len(w) > 0 {
		b.pointer = w[0]
	}
	if len(w) == 3 {
		v := uint16(w[1])<<8 | uint16(w[2])
		b.regs[b.pointer] = v
		b.writes = append(b.writes, v)
	}
	if len(r) == 2 {
		v := b.regs[b.pointer]
		r[0], r[1] = byte(v>>8), byte(v)
	}
	return nil
}

func (b *fakeBus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

func (b *fakeBus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

func TestINA260Readings(t *testing.T) {
	bus := newFakeBus()
	d := NewINA260(bus, 0)

	tests := []struct {
		name string
		reg  uint8
		raw  uint16
		read func() (float64, error)
		want float64
	}{
		{"bus voltage 12V", RegBusVoltage, 9600, d.ReadBusVoltage, 12},
		{"bus voltage zero", RegBusVoltage, 0, d.ReadBusVoltage, 0},
		{"current 100mA", RegCurrent, 80, d.ReadCurrent, 100},
		{"negative current", RegCurrent, 0xFFB0, d.ReadCurrent, -100},
		{"power", RegPower, 120, d.ReadPower, 1200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus.regs[tt.reg] = tt.raw
			got, err := tt.read()
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestINA260Configure(t *testing.T) {
	bus := newFakeBus()
	d := NewINA260(bus, DefaultAddress)

	if err := d.Configure(Config{AveragingCount: 16}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	// AVG=010, VBUSCT=ISHCT=100, MODE=111
	if got := bus.regs[RegConfig]; got != 0x6527 {
		t.Fatalf("expected config 0x6527, got 0x%04x", got)
	}

	if err := d.Configure(Config{}); err != nil {
		t.Fatalf("Configure with defaults failed: %v", err)
	}
	if got := bus.regs[RegConfig]; got != 0x6127 {
		t.Fatalf("expected power-on config 0x6127, got 0x%04x", got)
	}

	if err := d.Configure(Config{AveragingCount: 3}); err == nil {
		t.Fatalf("expected error for unsupported averaging count")
	}
}

func TestINA260Connected(t *testing.T) {
	bus := newFakeBus()
	if !NewINA260(bus, DefaultAddress).Connected() {
		t.Fatalf("expected device to be detected")
	}
	if NewINA260(bus, 0x41).Connected() {
		t.Fatalf("no device should answer at 0x41")
	}
	bus.regs[RegManufacturerID] = 0x1234
	if NewINA260(bus, DefaultAddress).Connected() {
		t.Fatalf("wrong manufacturer id must not be accepted")
	}
}

func TestINA260BusError(t *testing.T) {
	bus := newFakeBus()
	bus.fail = errors.New("bus stuck")
	d := NewINA260(bus, DefaultAddress)

	if _, err := d.ReadBusVoltage(); err == nil {
		t.Fatalf("expected error from failing bus")
	}
	if _, err := d.ReadCurrent(); !errors.Is(err, bus.fail) {
		t.Fatalf("expected wrapped bus error, got %v", err)
	}
}

func TestSetupResetsBeforeConfigure(t *testing.T) {
	bus := newFakeBus()

	d, err := setup(bus, DefaultAddress, Config{AveragingCount: 4})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if d.Address != DefaultAddress {
		t.Fatalf("unexpected address 0x%02x", d.Address)
	}
	if len(bus.writes) != 2 || bus.writes[0] != configReset || bus.writes[1] != 0x6327 {
		t.Fatalf("expected reset then config 0x6327, got %#04x", bus.writes)
	}

	if _, err := setup(bus, 0x41, Config{}); err == nil {
		t.Fatalf("expected error for missing device")
	}
	if _, err := setup(bus, DefaultAddress, Config{AveragingCount: 3}); err == nil {
		t.Fatalf("expected error for unsupported averaging count")
	}
}
