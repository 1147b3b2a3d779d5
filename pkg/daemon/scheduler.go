package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	preCheckMaxTimes = 30
	preCheckInterval = time.Minute
	// idleWait is how long the loop sleeps when nothing is scheduled.
	idleWait = time.Hour * 10000
)

type NotifyFunc func(data any)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs Task at the times given by a cron expression. Before each
// run PreCheck is consulted; while it fails the run is retried every
// preCheckInterval, up to preCheckMaxTimes, then skipped.
type Scheduler struct {
	// Lead is how long before a run OnUpcoming is called. Zero disables it.
	Lead       time.Duration
	OnUpcoming NotifyFunc // called Lead before running the task
	OnError    NotifyFunc // called on task or precheck error
	Task       TaskFunc
	PreCheck   TaskFunc

	parser cron.Parser

	schedule cron.Schedule
	nextRun  time.Time

	mu      sync.Mutex
	running bool

	controlCh chan controlMsg
	stopCh    chan struct{}
}

// internal control kinds (not user visible events)
type controlKind int

const (
	ctrlRecalculate controlKind = iota // timer needs recalculation due to schedule change
	ctrlPostpone                       // next run postponed
	ctrlSkip                           // next run skipped
	ctrlClear                          // schedule removed
)

type controlMsg struct {
	kind controlKind
	data any
}

func NewScheduler(task, preCheck TaskFunc, onUpcoming, onError NotifyFunc) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		OnUpcoming: onUpcoming,
		OnError:    onError,
		Task:       task,
		PreCheck:   preCheck,
		parser:     cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		controlCh:  make(chan controlMsg, 4),
		stopCh:     make(chan struct{}),
	}
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh: // already closed
	default:
		close(s.stopCh)
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.runScheduled()
}

// Schedule replaces the cron expression. An empty expression clears the
// schedule, leaving the loop idle.
func (s *Scheduler) Schedule(cronExpr string) error {
	if cronExpr == "" {
		s.mu.Lock()
		s.schedule = nil
		s.nextRun = time.Time{}
		running := s.running
		s.mu.Unlock()
		if running {
			s.trySendControl(ctrlClear, nil)
		}
		return nil
	}

	sh, err := s.parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.mu.Lock()
	s.schedule = sh
	s.nextRun = sh.Next(time.Now())
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlRecalculate, sh)
	}
	return nil
}

// Upcoming returns the next n run times, starting with the pending one.
func (s *Scheduler) Upcoming(n int) []time.Time {
	schedule, next := s.snapshot()
	if schedule == nil || next.IsZero() {
		return nil
	}

	runs := make([]time.Time, 0, n)
	for range n {
		runs = append(runs, next)
		next = schedule.Next(next)
	}
	return runs
}

// Postpone postpones the next scheduled run by the given duration. The run
// cannot be pushed past the one after it.
func (s *Scheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("postpone duration must be positive")
	}

	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() || !s.running {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to postpone")
	}
	orig := s.nextRun
	following := s.schedule.Next(orig).Truncate(time.Second)
	s.mu.Unlock()

	pp := orig.Add(d).Truncate(time.Second)
	if pp.Compare(following) >= 0 {
		return fmt.Errorf("postpone duration too long, next run after that is at %s", following.Format(time.DateTime))
	}

	s.mu.Lock()
	s.nextRun = pp
	s.mu.Unlock()

	s.trySendControl(ctrlPostpone, pp)
	return nil
}

// Skip skips the next scheduled run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlSkip, nil)
	}
	return nil
}

func (s *Scheduler) Status() (nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextRun = s.nextRun
	running = s.running
	return
}

func (s *Scheduler) runScheduled() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		leading := s.Lead > 0 && s.OnUpcoming != nil

		attempts := 0
		var precheckErr error

		schedule, nextRun := s.snapshot()
		var timer *time.Timer
		if schedule == nil || nextRun.IsZero() {
			timer = time.NewTimer(idleWait)
		} else {
			wait := time.Until(nextRun)
			if leading {
				wait -= s.Lead
			}
			timer = time.NewTimer(max(wait, 0))
		}

		for {
			select {
			case <-timer.C:
				if schedule == nil || nextRun.IsZero() {
					break
				}

				log := logrus.WithField("scheduledAt", nextRun.Format(time.DateTime))

				if leading {
					log.Debug("upcoming scheduled task")
					leading = false
					timer.Reset(max(time.Until(nextRun), 0))
					s.sendNotify(nextRun)
					continue
				}

				if s.PreCheck != nil {
					if err := s.PreCheck(); err != nil {
						if precheckErr == nil || err.Error() != precheckErr.Error() {
							precheckErr = err
							s.sendError(fmt.Errorf("precheck failed: %w", err))
						}

						attempts++
						if attempts <= preCheckMaxTimes {
							log.WithError(err).Debugf("precheck failed (%d/%d), retrying in %s", attempts, preCheckMaxTimes, preCheckInterval)
							timer.Reset(preCheckInterval)
							continue
						}

						log.Warn("precheck kept failing, skipping scheduled task")
						timer.Stop()
						s.advanceNextRun()
						break
					}
				}

				log.Debug("running scheduled task")
				timer.Stop()

				go func() {
					if err := s.Task(); err != nil {
						s.sendError(fmt.Errorf("task failed: %w", err))
					}
				}()
				s.advanceNextRun()
			case <-s.stopCh:
				timer.Stop()
				return
			case msg := <-s.controlCh: // internal control messages
				logrus.WithFields(logrus.Fields{
					"kind": msg.kind,
					"data": msg.data,
				}).Debug("received control msg")

				switch msg.kind {
				case ctrlRecalculate, ctrlSkip, ctrlClear:
					timer.Stop()
				case ctrlPostpone: // only postpone current run
					pp := msg.data.(time.Time)
					nextRun = pp
					timer.Reset(max(time.Until(pp), 0))
					continue
				}
			}

			break
		}
	}
}

func (s *Scheduler) snapshot() (cron.Schedule, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.nextRun
}

func (s *Scheduler) advanceNextRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	s.nextRun = s.schedule.Next(s.nextRun)
}

func (s *Scheduler) sendNotify(runAt time.Time) {
	if s.OnUpcoming == nil {
		return
	}

	go s.OnUpcoming(runAt)
}

func (s *Scheduler) sendError(err error) {
	if s.OnError == nil {
		return
	}

	go s.OnError(err)
}

func (s *Scheduler) trySendControl(kind controlKind, data any) {
	select {
	case s.controlCh <- controlMsg{kind: kind, data: data}:
	default:
	}
}
