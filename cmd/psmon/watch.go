package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/psmon/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		GroupID: gCalibration,
		Short:   "Follow calibration events from the daemon",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := apiClient.Events(ctx)
			if err != nil {
				return err
			}
			for ev := range ch {
				if err := printEvent(cmd, ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func printEvent(cmd *cobra.Command, ev events.Event) error {
	ts := color.New(color.Faint).Sprint(time.Now().Format(time.TimeOnly))

	switch ev.Name {
	case events.CalibrationTransition:
		e, err := events.DecodeAs[events.CalibrationTransitionEvent](ev)
		if err != nil {
			return err
		}
		cmd.Printf("%s %s -> %s  %s\n", ts, e.From, bold("%s", e.To), strings.Join(e.Prompt, " | "))
		if e.Captured != nil {
			cmd.Printf("%s   captured %s %s: raw %.4f at %g\n", ts, e.Captured.Level, e.Captured.Quantity, e.Captured.Raw, e.Captured.Actual)
		}
	case events.CalibrationFinished:
		e, err := events.DecodeAs[events.CalibrationFinishedEvent](ev)
		if err != nil {
			return err
		}
		cmd.Printf("%s %s in %s\n", ts, color.GreenString("calibration finished"), e.Duration)
		for q, r := range e.Results {
			cmd.Printf("%s   %-8s scale %.6f offset %+.6f\n", ts, q, r.Scale, r.Offset)
		}
		if len(e.Failed) > 0 {
			cmd.Printf("%s   %s %s\n", ts, color.RedString("failed:"), strings.Join(e.Failed, ", "))
		}
	case events.CalibrationError:
		e, err := events.DecodeAs[events.CalibrationErrorEvent](ev)
		if err != nil {
			return err
		}
		cmd.Printf("%s %s %s\n", ts, color.RedString("error:"), e.Message)
	case events.CalibrationDue:
		e, err := events.DecodeAs[events.CalibrationDueEvent](ev)
		if err != nil {
			return err
		}
		cmd.Printf("%s %s %s\n", ts, color.YellowString("reminder:"), e.Message)
	case events.MonitorReading:
		// Followed by the monitor command.
	default:
		cmd.Printf("%s %s %s\n", ts, ev.Name, string(ev.Data))
	}
	return nil
}
