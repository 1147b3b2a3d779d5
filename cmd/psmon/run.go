package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/psmon/pkg/calibration"
	"github.com/charlie0129/psmon/pkg/config"
	"github.com/charlie0129/psmon/pkg/panel"
	"github.com/charlie0129/psmon/pkg/sensor"
	"github.com/charlie0129/psmon/pkg/store"
)

// NewRunCommand runs a calibration in this terminal without a daemon.
func NewRunCommand() *cobra.Command {
	var (
		simulateSensor bool
		recordPath     string
	)

	cmd := &cobra.Command{
		Use:         "run",
		GroupID:     gCalibration,
		Short:       "Calibrate interactively in this terminal",
		Annotations: map[string]string{annotationLocal: "true"},
		Long: `Calibrate interactively in this terminal, without a daemon.

The display is drawn in the terminal. Press Enter, Space or 'b' to confirm,
'r' to restart the run and 'q' or Esc to quit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			if err := conf.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if recordPath == "" {
				recordPath = conf.RecordPath()
			}

			rec, err := store.NewFile(recordPath)
			if err != nil {
				return err
			}

			refs := conf.References()
			display := panel.NewTerminal(cmd.OutOrStdout())
			opts := []calibration.Option{calibration.WithDisplay(display)}

			var reader calibration.SensorReader
			if simulateSensor {
				sim := sensor.NewSimulated()
				opts = append(opts, calibration.WithObserver(sim.Follow(refs)))
				reader = sim
			} else {
				dev, bus, err := sensor.Open(conf.I2CBus(), conf.SensorAddress(), sensor.Config{AveragingCount: conf.AveragingCount()})
				if err != nil {
					return err
				}
				defer func() {
					_ = bus.Close()
				}()
				reader = dev
			}

			ctrl, err := calibration.NewController(reader, rec, refs, opts...)
			if err != nil {
				return err
			}
			if err := ctrl.Render(display); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var sensorErr error
			err = panel.Keyboard{}.Run(ctx, func(ev panel.Event) {
				switch ev {
				case panel.Confirm:
					sensorErr = ctrl.OnConfirm()
				case panel.Reset:
					sensorErr = nil
					ctrl.Reset()
				}
				if sensorErr != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\r\n", sensorErr)
				}
			})
			if err != nil {
				return err
			}

			st := ctrl.Status()
			fmt.Fprintln(cmd.OutOrStdout())
			printCalibrationStatus(cmd.OutOrStdout(), &st)
			if !st.Finished {
				logrus.Warn("calibration not finished, nothing was saved")
				return nil
			}
			if len(st.Errors) > 0 {
				return errors.New("calibration finished with errors")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&simulateSensor, "simulate", false, "Use a simulated sensor that follows the prompts.")
	f.StringVar(&recordPath, "record", "", "Calibration record path. Defaults to the one in the config file.")

	return cmd
}
