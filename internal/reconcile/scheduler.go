package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
)

// Job is a scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs reconciliation jobs on cron specs. A job still running
// when its next tick fires is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger *logging.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewDiscard("reconcile")
	}
	cronLogger := cron.PrintfLogger(logger.WithFields(map[string]interface{}{"component": "scheduler"}))
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Add registers job under spec ("@every 1m", "*/5 * * * *", ...).
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx := s.jobContext()
		if ctx.Err() != nil {
			return
		}
		ctx = logging.WithTraceID(ctx, logging.NewTraceID())
		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error(ctx, "scheduled job failed", err, map[string]interface{}{"job": name})
			return
		}
		s.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"job":         name,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// Start begins running jobs. ctx bounds every job run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
}

// Stop stops scheduling, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-stopped.Done()
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}
