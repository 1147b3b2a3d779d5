package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/psmon/pkg/calibration"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gCalibration,
		Short:   "Show the calibration run in progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetCalibrationStatus()
			if err != nil {
				return fmt.Errorf("failed to fetch calibration status: %w", err)
			}
			printCalibrationStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func NewConfirmCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "confirm",
		Aliases: []string{"ok", "next"},
		GroupID: gCalibration,
		Short:   "Press the confirm button",
		Long: `Press the confirm button once.

Each press performs the step the display is asking for (reading the sensor
once the requested reference is applied) and moves on to the next prompt.
Presses after the run has finished have no effect until the run is reset.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.Confirm()
			if err != nil {
				return fmt.Errorf("failed to confirm: %w", err)
			}
			printPrompt(cmd.OutOrStdout(), st.Prompt)
			return nil
		},
	}
}

func NewResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "reset",
		GroupID: gCalibration,
		Short:   "Restart the calibration run",
		Long: `Restart the calibration run.

Every reference point captured so far is discarded. Results already stored
are kept until the next run replaces them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.Reset()
			if err != nil {
				return fmt.Errorf("failed to reset: %w", err)
			}
			printPrompt(cmd.OutOrStdout(), st.Prompt)
			return nil
		},
	}
}

func NewRecordCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "record",
		GroupID: gCalibration,
		Short:   "Show the stored calibration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := apiClient.GetRecord()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Calibrated: %s\n", bool2Text(rec.Calibrated))
			for _, q := range calibration.Quantities {
				e := rec.Record.Get(q)
				fmt.Fprintf(out, "  %-8s scale %s  offset %s", q, bold("%.6f", e.Scale), bold("%+.6f", e.Offset))
				if !e.CalibratedAt.IsZero() {
					fmt.Fprintf(out, "  (%s)", e.CalibratedAt.Local().Format(time.RFC3339))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func NewCorrectCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "correct <voltage|current> <raw>",
		GroupID: gCalibration,
		Short:   "Apply the stored correction to a raw reading",
		Example: `  psmon correct voltage 11.94
  psmon correct i 497.5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := calibration.ParseQuantity(args[0])
			if err != nil {
				return err
			}
			raw, err := parseFloatArg(args[1], "raw reading")
			if err != nil {
				return err
			}
			corr, err := apiClient.Correct(q, raw)
			if err != nil {
				return err
			}
			if !corr.Calibrated {
				logrus.Warn("no valid calibration stored, identity correction applied")
			}
			cmd.Println(bold("%g", corr.Corrected))
			return nil
		},
	}
}

func NewReferencesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "references <low-voltage> <high-voltage> <low-current> <high-current>",
		Aliases: []string{"refs"},
		GroupID: gCalibration,
		Short:   "Show or set the reference values applied during a run",
		Long: `Show or set the reference values applied during a run.

Voltages are in volts, currents in milliamps. Without arguments the
configured references are printed. New references take effect on the next
reset.`,
		Example: `  psmon references 1.5 13.5 100 900`,
		Args:    noneOrAll(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				st, err := apiClient.GetCalibrationStatus()
				if err != nil {
					return err
				}
				printReferences(cmd.OutOrStdout(), st.References)
				return nil
			}

			var vals [4]float64
			names := []string{"low voltage", "high voltage", "low current", "high current"}
			for i := range vals {
				v, err := parseFloatArg(args[i], names[i])
				if err != nil {
					return err
				}
				vals[i] = v
			}
			refs := calibration.References{
				LowVoltage:  vals[0],
				HighVoltage: vals[1],
				LowCurrent:  vals[2],
				HighCurrent: vals[3],
			}
			if err := refs.Validate(); err != nil {
				return err
			}

			ret, err := apiClient.SetReferences(refs)
			if err != nil {
				return fmt.Errorf("failed to set references: %w", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			return nil
		},
	}
}

func noneOrAll(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != n {
			return fmt.Errorf("expected 0 or %d arguments, got %d", n, len(args))
		}
		return nil
	}
}

func printPrompt(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintf(w, "  %s\n", color.New(color.Bold, color.FgCyan).Sprint(l))
	}
}

func printReferences(w io.Writer, r calibration.References) {
	fmt.Fprintf(w, "  Voltage: %s and %s\n", bold("%.3f V", r.LowVoltage), bold("%.3f V", r.HighVoltage))
	fmt.Fprintf(w, "  Current: %s and %s\n", bold("%.1f mA", r.LowCurrent), bold("%.1f mA", r.HighCurrent))
}

func printPoint(w io.Writer, name string, p calibration.ReferencePoint, unit string) {
	if !p.Set {
		fmt.Fprintf(w, "  %-13s -\n", name+":")
		return
	}
	fmt.Fprintf(w, "  %-13s raw %s at %s\n", name+":", bold("%.4f", p.Raw), bold("%g %s", p.Actual, unit))
}

func printCalibrationStatus(w io.Writer, st *calibration.Status) {
	state := string(st.State)
	if st.Finished {
		state = color.GreenString("finished")
	}
	fmt.Fprintf(w, "State: %s\n", bold("%s", state))
	fmt.Fprintln(w, "Display:")
	printPrompt(w, st.Prompt)

	fmt.Fprintln(w, "References:")
	printReferences(w, st.References)

	fmt.Fprintln(w, "Captured:")
	printPoint(w, "Low voltage", st.Points.VoltageLow, "V")
	printPoint(w, "High voltage", st.Points.VoltageHigh, "V")
	printPoint(w, "Low current", st.Points.CurrentLow, "mA")
	printPoint(w, "High current", st.Points.CurrentHigh, "mA")

	if st.Finished {
		fmt.Fprintln(w, "Results:")
		for _, q := range calibration.Quantities {
			if r, ok := st.Results.Get(q); ok {
				fmt.Fprintf(w, "  %-8s scale %s  offset %s\n", q, bold("%.6f", r.Scale), bold("%+.6f", r.Offset))
				continue
			}
			fmt.Fprintf(w, "  %-8s %s %s\n", q, color.RedString("failed:"), st.Errors[q])
		}
	}
	if !st.StartedAt.IsZero() {
		end := time.Now()
		if st.Finished {
			end = st.FinishedAt
		}
		fmt.Fprintf(w, "Started: %s (%s)\n", st.StartedAt.Local().Format(time.RFC3339), end.Sub(st.StartedAt).Round(time.Second))
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", color.RedString(strings.TrimSpace(st.LastError)))
	}
}
