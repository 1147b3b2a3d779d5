package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/psmon/pkg/calibration"
	"github.com/charlie0129/psmon/pkg/config"
	"github.com/charlie0129/psmon/pkg/events"
	"github.com/charlie0129/psmon/pkg/panel"
	"github.com/charlie0129/psmon/pkg/sensor"
	"github.com/charlie0129/psmon/pkg/store"
)

// reminderLead is how long before a due recalibration the first reminder
// goes out.
const reminderLead = 24 * time.Hour

var (
	conf        config.Config
	recordStore *store.File
	sseHub      = events.NewEventHub()
	scheduler   = newReminder()
)

// Options configures Run.
type Options struct {
	ConfigPath     string
	UnixSocketPath string
	AllowNonRoot   bool
	// Simulate replaces the sensor with a simulated front end.
	Simulate bool
	// MonitorInterval is the period of monitor.reading events. Zero
	// disables the monitor loop.
	MonitorInterval time.Duration
}

func newReminder() *Scheduler {
	s := NewScheduler(remindCalibration, calibrationIdle,
		func(data any) {
			if dueAt, ok := data.(time.Time); ok {
				remindUpcoming(dueAt)
			}
		},
		func(data any) {
			logrus.WithField("reason", data).Debug("recalibration reminder deferred")
		})
	s.Lead = reminderLead
	return s
}

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/version", getVersion)
	router.GET("/events", getEvents)
	router.GET("/ws", getWebsocket)
	router.GET("/readings", getReadings)

	cal := router.Group("/calibration")
	cal.GET("", getCalibration)
	cal.GET("/prompt", getPrompt)
	cal.POST("/confirm", postConfirm)
	cal.POST("/reset", postReset)
	cal.GET("/record", getRecord)
	cal.GET("/correct", getCorrect)
	cal.PUT("/references", setReferences)
	cal.GET("/schedule", getSchedule)
	cal.PUT("/schedule", setSchedule)
	cal.POST("/schedule/skip", postSkipSchedule)
	cal.POST("/schedule/postpone", postPostponeSchedule)

	return router
}

// openSensor returns the configured INA260, or a simulated front end. The
// returned closer releases the bus.
func openSensor(simulate bool) (calibration.SensorReader, io.Closer, error) {
	if simulate {
		logrus.Warn("using simulated sensor, results are meaningless for real hardware")
		return sensor.NewSimulated(), nil, nil
	}

	dev, bus, err := sensor.Open(conf.I2CBus(), conf.SensorAddress(), sensor.Config{AveragingCount: conf.AveragingCount()})
	if err != nil {
		return nil, nil, err
	}

	logrus.WithFields(logrus.Fields{
		"bus":       conf.I2CBus(),
		"address":   conf.SensorAddress(),
		"averaging": conf.AveragingCount(),
	}).Info("sensor ready")
	return dev, bus, nil
}

func closeBus(bus io.Closer) {
	logrus.Info("closing i2c bus")
	if err := bus.Close(); err != nil {
		logrus.Errorf("failed to close i2c bus: %v", err)
	}
}

func reloadConfig() {
	if err := conf.Load(); err != nil {
		logrus.Errorf("failed to reload config: %v", err)
		return
	}
	if err := conf.Validate(); err != nil {
		logrus.Errorf("reloaded config is invalid, some settings may not apply: %v", err)
		return
	}
	if _, err := applySchedule(conf.RecalibrationCron()); err != nil {
		logrus.Errorf("failed to apply recalibration schedule: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
}

func Run(opts Options) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(opts.ConfigPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	if err := conf.Validate(); err != nil {
		return pkgerrors.Wrap(err, "invalid config")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	recordStore, err = store.NewFile(conf.RecordPath())
	if err != nil {
		return err
	}
	logrus.WithField("calibrated", recordStore.Calibrated()).Info("calibration record loaded")

	reader, bus, err := openSensor(opts.Simulate)
	if err != nil {
		return err
	}
	if bus != nil {
		defer closeBus(bus)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fp *panel.Serial
	var sink calibration.DisplaySink
	if port := conf.PanelPort(); port != "" {
		fp, err = panel.OpenSerial(port, conf.PanelBaudRate())
		if err != nil {
			return err
		}
		sink = fp
	}

	if sim, ok := reader.(*sensor.Simulated); ok {
		// The simulator applies each reference as soon as it is prompted for.
		followPrompts = func(t calibration.Transition) {
			sim.Follow(controller.References())(t)
		}
	}
	if err := initCalibration(reader, sink); err != nil {
		return err
	}

	if fp != nil {
		go func() {
			err := fp.Run(ctx, handlePanelInput)
			if err != nil {
				logrus.WithError(err).Error("front panel disconnected")
			}
		}()
	}

	if _, err := applySchedule(conf.RecalibrationCron()); err != nil {
		logrus.Errorf("failed to apply recalibration schedule: %v", err)
	}

	if opts.MonitorInterval > 0 {
		go runMonitor(ctx, opts.MonitorInterval)
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			reloadConfig()
		}
	}()

	srv := &http.Server{
		Handler: router,
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", opts.UnixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", opts.UnixSocketPath)
		err = os.Chmod(opts.UnixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	scheduler.Stop()
	cancel()

	if fp != nil {
		logrus.Info("closing front panel")
		_ = fp.Close()
	}

	logrus.Info("exiting")
	return nil
}
