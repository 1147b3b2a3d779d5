package panel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/charlie0129/psmon/pkg/calibration"
)

var _ calibration.DisplaySink = &Serial{}

// Serial is a front panel attached over a serial line.
//
// The panel sends one command per line: "B" when the button is pressed and
// "R" when the reset button is pressed. The host sends display rows as
// "<row>:<text>" lines, row 0 being the top row.
type Serial struct {
	rw  io.ReadWriteCloser
	log logrus.FieldLogger

	mu  sync.Mutex
	row int
}

// OpenSerial opens port at the given baud rate.
func OpenSerial(port string, baudRate int) (*Serial, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open serial port %s", port)
	}
	s := NewSerial(p)
	s.log = s.log.WithField("port", port)
	return s, nil
}

// NewSerial speaks the panel protocol over rw.
func NewSerial(rw io.ReadWriteCloser) *Serial {
	return &Serial{
		rw:  rw,
		log: logrus.WithField("component", "panel"),
	}
}

// WriteLine sends text to the next display row. Rows wrap after the bottom
// one, so a two line prompt always starts at the top. A failed write does
// not move to the next row.
func (s *Serial) WriteLine(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r := []rune(text); len(r) > Columns {
		text = string(r[:Columns])
	}
	if _, err := fmt.Fprintf(s.rw, "%d:%s\n", s.row, text); err != nil {
		return pkgerrors.Wrapf(err, "failed to write display row %d", s.row)
	}
	s.row = (s.row + 1) % Rows
	return nil
}

// Run reads commands and passes them to h until the line is closed or ctx
// is done. It returns io.EOF when the panel side hangs up and nil when ctx
// ends the session.
func (s *Serial) Run(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.rw.Close()
	})
	defer stop()

	scanner := bufio.NewScanner(s.rw)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		ev, ok := parseCommand(line)
		if !ok {
			s.log.WithField("line", line).Warn("ignoring unknown panel command")
			continue
		}
		s.log.WithField("event", ev).Debug("panel input")
		h(ev)
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return pkgerrors.Wrap(err, "failed to read from panel")
	}
	return io.EOF
}

func (s *Serial) Close() error {
	return s.rw.Close()
}

func parseCommand(line string) (Event, bool) {
	switch strings.ToUpper(line) {
	case "B":
		return Confirm, true
	case "R":
		return Reset, true
	default:
		return 0, false
	}
}
