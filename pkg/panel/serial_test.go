package panel

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestSerialInput(t *testing.T) {
	host, device := net.Pipe()
	s := NewSerial(host)

	got := make(chan Event, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), func(e Event) { got <- e })
	}()

	if _, err := io.WriteString(device, "B\r\n\nbogus\nR\nb\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_ = device.Close()

	want := []Event{Confirm, Reset, Confirm}
	for i, w := range want {
		select {
		case e := <-got:
			if e != w {
				t.Fatalf("event %d: expected %s, got %s", i, w, e)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF after hang up, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after hang up")
	}
}

func TestSerialDisplay(t *testing.T) {
	host, device := net.Pipe()
	s := NewSerial(host)
	defer s.Close()

	lines := make(chan string, 4)
	go func() {
		sc := bufio.NewScanner(device)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for _, l := range []string{"  Calibration", " Push to Start", "a line far longer than sixteen"} {
		if err := s.WriteLine(l); err != nil {
			t.Fatalf("WriteLine failed: %v", err)
		}
	}

	want := []string{"0:  Calibration", "1: Push to Start", "0:a line far longe"}
	for i, w := range want {
		select {
		case l := <-lines:
			if l != w {
				t.Fatalf("line %d: expected %q, got %q", i, w, l)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for line %d", i)
		}
	}
}

// flakyPort fails the first fail writes.
type flakyPort struct {
	bytes.Buffer
	fail int
}

func (p *flakyPort) Write(b []byte) (int, error) {
	if p.fail > 0 {
		p.fail--
		return 0, errors.New("write timeout")
	}
	return p.Buffer.Write(b)
}

func (p *flakyPort) Close() error { return nil }

func TestSerialDisplayFailedWriteKeepsRow(t *testing.T) {
	port := &flakyPort{fail: 1}
	s := NewSerial(port)

	if err := s.WriteLine("  Calibration"); err == nil {
		t.Fatalf("expected the first write to fail")
	}
	for _, l := range []string{"  Calibration", "  Push Button"} {
		if err := s.WriteLine(l); err != nil {
			t.Fatalf("WriteLine failed: %v", err)
		}
	}

	want := "0:  Calibration\n1:  Push Button\n"
	if got := port.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSerialRunStopsOnCancel(t *testing.T) {
	host, device := net.Pipe()
	defer device.Close()
	s := NewSerial(host)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(Event) {})
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
