package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/psmon/pkg/client"
	"github.com/charlie0129/psmon/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/psmon.sock"
	configPath     = "/etc/psmon.json"
)

var apiClient = client.NewClient(unixSocketPath)

var (
	gCalibration  = "Calibration:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gCalibration,
		gAdvanced,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: psmon daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'psmon daemon', or use 'psmon run' for a local session.")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or start the daemon with the '--always-allow-non-root-access' flag to grant permissions to your user")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "psmon",
		Short: "psmon calibrates the voltage and current readings of a bench power supply",
		Long: `psmon calibrates the voltage and current readings of a bench power supply.

It walks the operator through a two-point calibration of the bus voltage and
the load current measured by an INA260, and stores the derived corrections.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			// Local commands never talk to a daemon.
			if cmd.Annotations[annotationLocal] != "" {
				return nil
			}

			daemonVersion, err := apiClient.GetVersion()
			if err == nil {
				if daemonVersion != version.Version {
					logrus.WithFields(logrus.Fields{
						"clientVersion": version.Version,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. psmon may not work as expected.")
				}
			} else if errors.Is(err, client.ErrNotFound) {
				logrus.Error("psmon daemon is too old to report its version.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "psmon daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewRunCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewConfirmCommand(),
		NewResetCommand(),
		NewRecordCommand(),
		NewCorrectCommand(),
		NewReferencesCommand(),
		NewScheduleCommand(),
		NewWatchCommand(),
		NewMonitorCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
