// Package daemon installs psmon as a systemd service.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const unitName = "psmon.service"

var (
	unitDir = "/etc/systemd/system"
	// systemctl runs systemctl with args.
	systemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

const unitTemplate = `[Unit]
Description=psmon power supply calibration daemon
After=network.target

[Service]
Type=simple
ExecStart=/path/to/psmon daemon --config /path/to/config --daemon-socket /path/to/socket
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure

[Install]
WantedBy=multi-user.target
`

// Unit returns the unit file that starts exePath as the daemon.
func Unit(exePath, configPath, socketPath string) string {
	return strings.NewReplacer(
		"/path/to/psmon", exePath,
		"/path/to/config", configPath,
		"/path/to/socket", socketPath,
	).Replace(unitTemplate)
}

func unitPath() string {
	return filepath.Join(unitDir, unitName)
}

// Install writes the unit file for the current executable and starts the
// service.
func Install(configPath, socketPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	return install(Unit(exePath, configPath, socketPath))
}

func install(unit string) error {
	logrus.Infof("writing systemd unit to %s", unitDir)

	err := os.MkdirAll(unitDir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", unitDir, err)
	}

	// warn if the file already exists
	if _, err := os.Stat(unitPath()); err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath())
	}

	err = os.WriteFile(unitPath(), []byte(unit), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath(), err)
	}

	logrus.Infof("starting psmon")

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	if err := systemctl("enable", "--now", unitName); err != nil {
		return fmt.Errorf("failed to start %s: %w", unitName, err)
	}

	return nil
}
