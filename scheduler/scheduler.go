// Package scheduler implements cron-driven publication of prototype
// messages onto a broker (spec §4.6, "[SCHEDULER]").
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/tclesius/ltq/internal/base"
	"github.com/tclesius/ltq/internal/errors"
	"github.com/tclesius/ltq/internal/log"
)

// DefaultPollInterval is how often the scheduler checks whether any job is
// due, the Go equivalent of original_source/src/ltq/scheduler.py's
// poll_interval default of 10 seconds.
const DefaultPollInterval = 10 * time.Second

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// job is one registered cron entry: a prototype message republished with a
// fresh ID on every fire (spec §4.6, "each fire produces one Message,
// derived from the registered prototype but with a new id and
// created_at").
type job struct {
	expr     string
	schedule cron.Schedule
	prototype *base.Message
	queue    string
	nextRun  time.Time
}

func (j *job) advance(from time.Time) {
	j.nextRun = j.schedule.Next(from)
}

// Scheduler polls its job list and publishes any job whose next_run has
// passed (spec §4.6). It is grounded on
// RezaEskandarii-GoFire/internal/app/cron_job_manager.go's ticker-driven
// poll loop and robfig/cron/v3 for cron parsing, and on
// original_source/src/ltq/scheduler.py for the publish/advance/on-failure
// semantics (a publish failure leaves next_run unadvanced, so the job is
// retried on the following poll).
type Scheduler struct {
	broker       base.Broker
	pollInterval time.Duration
	logger       *log.Logger

	mu   sync.Mutex
	jobs []*job

	done    chan struct{}
	stopped chan struct{}
}

// New returns a Scheduler publishing onto broker every pollInterval. A
// non-positive pollInterval uses DefaultPollInterval.
func New(broker base.Broker, pollInterval time.Duration, logger log.Base) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Scheduler{
		broker:       broker,
		pollInterval: pollInterval,
		logger:       log.NewLogger(logger),
	}
}

// Cron registers prototype to be published to queue on every fire of expr,
// a standard five-field cron expression (spec §4.6, "cron(expr, message)").
// Same-tick ties fire in registration order (spec §4.6).
func (s *Scheduler) Cron(expr string, queue string, prototype *base.Message) error {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return errors.E(errors.InvalidArgument, fmt.Sprintf("invalid cron expression %q: %v", expr, err), err)
	}
	if err := base.ValidateQueueName(queue); err != nil {
		return err
	}

	j := &job{expr: expr, schedule: schedule, prototype: prototype, queue: queue}
	j.advance(time.Now())

	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()
	return nil
}

// Start runs the poll loop in the current goroutine until Stop is called.
// It is the blocking counterpart of StartBackground.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	jobs := append([]*job(nil), s.jobs...)
	s.mu.Unlock()

	s.logger.Infof("scheduler starting with %d job(s)", len(jobs))
	for _, j := range jobs {
		s.logger.Infof("%s [%s] next=%s", j.prototype.TaskName, j.expr, j.nextRun.Format("15:04:05"))
	}

	defer close(s.stopped)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// StartBackground starts the poll loop in a new goroutine and returns
// immediately.
func (s *Scheduler) StartBackground() {
	go s.Start()
}

// Stop signals the poll loop to exit and blocks until it has.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	done := s.done
	stopped := s.stopped
	s.mu.Unlock()
	if done == nil {
		return
	}
	close(done)
	if stopped != nil {
		<-stopped
	}
	s.logger.Infof("scheduler stopped")
}

func (s *Scheduler) tick() {
	now := time.Now()

	s.mu.Lock()
	due := make([]*job, 0)
	for _, j := range s.jobs {
		if !now.Before(j.nextRun) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		msg := *j.prototype
		msg.ID = uuid.NewString()
		msg.CreatedAt = now
		msg.Ctx = map[string]any{}

		if err := s.broker.Publish(j.queue, &msg, 0); err != nil {
			s.logger.Errorf("failed to enqueue scheduled %s: %v", msg.TaskName, err)
			continue
		}
		s.logger.Infof("enqueued %s scheduled=%s", msg.TaskName, j.nextRun.Format("15:04:05"))
		j.advance(now)
	}
}
