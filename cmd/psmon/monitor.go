package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/psmon/pkg/events"
)

func NewMonitorCommand() *cobra.Command {
	var (
		once    bool
		samples int
	)

	cmd := &cobra.Command{
		Use:     "monitor",
		GroupID: gCalibration,
		Short:   "Show corrected supply readings",
		Long: `Show corrected supply readings.

By default readings published by the daemon are followed until interrupted.
With --once a single reading is taken, averaged over --samples samples.
Readings are not available while a calibration run is in progress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if once {
				rd, err := apiClient.GetReading(samples)
				if err != nil {
					return err
				}
				cmd.Println(formatReading(rd.Time, rd.Voltage, rd.Current, rd.Power, rd.Calibrated, rd.OverRange()))
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := apiClient.Events(ctx)
			if err != nil {
				return err
			}
			for ev := range ch {
				if ev.Name != events.MonitorReading {
					continue
				}
				e, err := events.DecodeAs[events.MonitorReadingEvent](ev)
				if err != nil {
					return err
				}
				cmd.Println(formatReading(time.Unix(e.Ts, 0), e.Voltage, e.Current, e.Power, e.Calibrated, e.OverRange))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&once, "once", false, "Take one reading and exit")
	f.IntVarP(&samples, "samples", "n", 1, "Number of samples averaged with --once (1-64)")

	return cmd
}

func formatReading(ts time.Time, voltage, current, power float64, calibrated, overRange bool) string {
	line := fmt.Sprintf("%s %8.3f V %9.2f mA %9.1f mW",
		color.New(color.Faint).Sprint(ts.Format(time.TimeOnly)), voltage, current, power)
	if !calibrated {
		line += " " + color.YellowString("uncalibrated")
	}
	if overRange {
		line += " " + color.RedString("OVER RANGE")
	}
	return line
}
