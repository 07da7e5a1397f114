// Package schedule runs periodic jobs on cron expressions.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "daylayout/internal/log"
)

// Job is one unit of periodic work. The context is canceled when the
// scheduler stops.
type Job func(ctx context.Context) error

// Scheduler runs jobs in a display time zone. A job whose previous run is
// still going is skipped rather than queued.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
}

// cronLogger forwards cron's own messages to the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

// New returns a stopped scheduler evaluating expressions in loc.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:  ctx,
		stop: stop,
	}
}

// Validate checks a five-field cron expression.
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("schedule: invalid expression %q: %w", spec, err)
	}
	return nil
}

// Every registers job under name on spec.
func (s *Scheduler) Every(spec, name string, job Job) error {
	if err := Validate(spec); err != nil {
		return err
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.runJob(name, job)
	})
	if err != nil {
		return fmt.Errorf("schedule: add %s: %w", name, err)
	}
	appLog.Info("schedule: job registered", "name", name, "spec", spec)
	return nil
}

func (s *Scheduler) runJob(name string, job Job) {
	started := time.Now()
	if err := job(s.ctx); err != nil {
		appLog.Error("schedule: job failed", err, "name", name, "elapsed", time.Since(started).Round(time.Millisecond))
		return
	}
	appLog.Debug("schedule: job done", "name", name, "elapsed", time.Since(started).Round(time.Millisecond))
}

// Next returns the next activation of any registered job, or the zero time
// when nothing is scheduled or the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if e.Next.IsZero() {
			continue
		}
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}

// Run starts the scheduler and blocks until ctx is canceled. Running jobs
// see their context canceled and Run waits for them to return.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	s.stop()
	done := s.cron.Stop()
	<-done.Done()
	appLog.Info("schedule: stopped")
}
