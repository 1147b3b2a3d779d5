package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/psmon/pkg/calibration"
	"github.com/charlie0129/psmon/pkg/events"
)

func TestCommandTree(t *testing.T) {
	cmd := NewCommand()
	for _, name := range []string{"daemon", "run", "status", "confirm", "reset", "record", "correct", "references", "schedule", "watch", "monitor", "version", "install", "uninstall"} {
		c, _, err := cmd.Find([]string{name})
		if err != nil || c.Name() != name {
			t.Fatalf("command %q not registered: %v", name, err)
		}
	}
}

func TestHelp(t *testing.T) {
	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for _, group := range commandGroups {
		if !strings.Contains(buf.String(), group) {
			t.Fatalf("help does not list group %q:\n%s", group, buf.String())
		}
	}
	if !strings.Contains(buf.String(), "install") {
		t.Fatalf("help does not list install:\n%s", buf.String())
	}
}

func TestNoneOrAll(t *testing.T) {
	check := noneOrAll(4)
	if err := check(nil, nil); err != nil {
		t.Fatalf("no arguments should be accepted: %v", err)
	}
	if err := check(nil, []string{"1", "2", "3", "4"}); err != nil {
		t.Fatalf("four arguments should be accepted: %v", err)
	}
	if err := check(nil, []string{"1", "2"}); err == nil {
		t.Fatalf("two arguments should be rejected")
	}
}

func TestPrintCalibrationStatus(t *testing.T) {
	res := calibration.Result{Scale: 1.02, Offset: -0.05}
	st := &calibration.Status{
		State:      calibration.StateReadHighIFinish,
		Finished:   true,
		Prompt:     []string{"Calibration done", "  Saved"},
		References: calibration.References{LowVoltage: 1.5, HighVoltage: 13.5, LowCurrent: 100, HighCurrent: 900},
		Points: calibration.Points{
			VoltageLow: calibration.ReferencePoint{Raw: 1.52, Actual: 1.5, Set: true},
		},
		Results: calibration.Results{Voltage: &res},
		Errors:  map[calibration.Quantity]string{calibration.Current: "current: degenerate reference points"},
	}

	var buf bytes.Buffer
	printCalibrationStatus(&buf, st)
	out := buf.String()
	for _, want := range []string{"Calibration done", "raw", "1.020000", "failed:", "degenerate"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintEvent(t *testing.T) {
	data, _ := json.Marshal(events.CalibrationErrorEvent{Quantity: "voltage", Message: "i2c nack"})
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	if err := printEvent(cmd, events.Event{Name: events.CalibrationError, Data: data}); err != nil {
		t.Fatalf("printEvent failed: %v", err)
	}
	if !strings.Contains(buf.String(), "i2c nack") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestFormatReading(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)

	line := formatReading(ts, 12.0004, 250.5, 3006, true, false)
	for _, want := range []string{"12:00:00", "12.000 V", "250.50 mA", "3006.0 mW"} {
		if !strings.Contains(line, want) {
			t.Fatalf("reading line missing %q: %q", want, line)
		}
	}
	if strings.Contains(line, "OVER RANGE") || strings.Contains(line, "uncalibrated") {
		t.Fatalf("unexpected flags in %q", line)
	}

	line = formatReading(ts, 16, 0, 0, false, true)
	if !strings.Contains(line, "OVER RANGE") || !strings.Contains(line, "uncalibrated") {
		t.Fatalf("expected flags in %q", line)
	}
}
