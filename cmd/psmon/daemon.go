package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/psmon/pkg/daemon"
	"github.com/charlie0129/psmon/pkg/version"
)

var (
	// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the psmon daemon.
	alwaysAllowNonRootAccess = false
	simulate                 = false
	monitorInterval          = time.Second
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "daemon",
		Short:       "Run psmon daemon in the foreground",
		GroupID:     gAdvanced,
		Annotations: map[string]string{annotationLocal: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("psmon daemon starting")
			return daemon.Run(daemon.Options{
				ConfigPath:      configPath,
				UnixSocketPath:  unixSocketPath,
				AllowNonRoot:    alwaysAllowNonRootAccess,
				Simulate:        simulate,
				MonitorInterval: monitorInterval,
			})
		},
	}

	f := cmd.Flags()

	f.BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")
	f.BoolVar(&simulate, "simulate", false,
		"Use a simulated sensor that follows the prompts instead of the INA260.")
	f.DurationVar(&monitorInterval, "monitor-interval", monitorInterval,
		"Interval between published monitor readings. 0 disables the monitor.")

	return cmd
}
