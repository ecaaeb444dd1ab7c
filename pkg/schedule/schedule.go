// Package schedule runs periodic maintenance jobs on cron schedules:
// run resets and request-log retention.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mockenv/mockenv/pkg/logging"
	"github.com/mockenv/mockenv/pkg/requestlog"
)

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	mu      sync.Mutex
	running bool
}

// New returns an idle scheduler.
func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = logging.Nop()
	}
	return &Scheduler{
		cron: cron.New(),
		log:  logging.Component(log, "schedule"),
	}
}

// Add registers job under a standard five-field cron expression or a
// descriptor such as @every 1h.
func (s *Scheduler) Add(name, spec string, job func()) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.log.Debug("running scheduled job", "job", name)
		job()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.log.Info("job scheduled", "job", name, "schedule", spec)
	return nil
}

// AddRestart schedules periodic run restarts.
func (s *Scheduler) AddRestart(spec string, restart func()) error {
	return s.Add("restart", spec, restart)
}

// AddRetention schedules pruning of request-log entries older than
// maxAge.
func (s *Scheduler) AddRetention(spec string, store requestlog.Pruner, maxAge time.Duration) error {
	return s.Add("retention", spec, func() {
		n, err := store.Prune(time.Now().Add(-maxAge))
		if err != nil {
			s.log.Error("request log pruning failed", "error", err)
			return
		}
		if n > 0 {
			s.log.Info("request log pruned", "deleted_count", n)
		}
	})
}

// Start runs the jobs until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || len(s.cron.Entries()) == 0 {
		return
	}
	s.cron.Start()
	s.running = true
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}

// NextRun returns the earliest upcoming job time.
func (s *Scheduler) NextRun() (time.Time, bool) {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if e.Next.IsZero() {
			continue
		}
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next, !next.IsZero()
}
