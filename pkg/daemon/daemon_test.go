package daemon

import (
	"errors"
	"testing"
)

type countingCloser struct {
	closed int
	err    error
}

func (c *countingCloser) Close() error {
	c.closed++
	return c.err
}

func TestCloseBus(t *testing.T) {
	for _, err := range []error{nil, errors.New("device busy")} {
		c := &countingCloser{err: err}
		closeBus(c)
		if c.closed != 1 {
			t.Fatalf("expected one Close call, got %d", c.closed)
		}
	}
}
