//go:build !linux

package sensor

// OpenBus is only implemented on Linux.
func OpenBus(int) (Bus, error) {
	return nil, ErrUnsupported
}
