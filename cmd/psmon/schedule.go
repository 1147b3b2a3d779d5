package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/psmon/pkg/client"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sched"},
		Short:   "Manage the recalibration reminder",
		Long: `Manage the recalibration reminder.

When a schedule is set, the daemon publishes a calibration.due event a day
before each scheduled time and again when it is reached, unless a run is in
progress.

  psmon schedule 'minute hour day month weekday' Set schedule with cron expression
  psmon schedule disable                         Disable the reminder
  psmon schedule postpone [duration]             Postpone the next reminder
  psmon schedule skip                            Skip the next reminder
  psmon schedule show                            Show current schedule`,
		Example: `  psmon schedule '0 9 1 * *' (At 09:00 on the first day of every month)
  psmon schedule '0 9 1 */3 *' (At 09:00 on the first day of every three months)`,
		GroupID: gCalibration,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			return runScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		newScheduleDisableCommand(),
		newSchedulePostponeCommand(),
		newScheduleSkipCommand(),
		newScheduleShowCommand(),
	)

	return cmd
}

func newScheduleDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the recalibration reminder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.SetSchedule(""); err != nil {
				return err
			}
			cmd.Println("Recalibration reminder disabled.")
			return nil
		},
	}
}

func newSchedulePostponeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next recalibration reminder",
		Example: `  psmon schedule postpone      (Postpone by 1 day)
  psmon schedule postpone 72h  (Postpone by 3 days)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := 24 * time.Hour
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}
			s, err := apiClient.PostponeSchedule(d)
			if err != nil {
				return err
			}
			cmd.Printf("Next reminder postponed by %s.\n", d)
			printSchedule(cmd, s)
			return nil
		},
	}
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the next recalibration reminder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := apiClient.SkipSchedule()
			if err != nil {
				return err
			}
			cmd.Println("Next reminder skipped.")
			printSchedule(cmd, s)
			return nil
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the recalibration schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	s, err := apiClient.SetSchedule(cronExpr)
	if err != nil {
		return err
	}
	printSchedule(cmd, s)
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	s, err := apiClient.GetSchedule()
	if err != nil {
		return err
	}
	printSchedule(cmd, s)
	return nil
}

func printSchedule(cmd *cobra.Command, s *client.Schedule) {
	if s.Cron == "" || len(s.NextRuns) == 0 {
		cmd.Println("Recalibration reminder is not set.")
		return
	}
	cmd.Printf("Schedule: %s\n", bold("%s", s.Cron))
	cmd.Printf("Next %d reminder(s):\n", len(s.NextRuns))
	for _, run := range s.NextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
}
