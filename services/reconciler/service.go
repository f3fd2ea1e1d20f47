// Package reconciler schedules the drift repair and audit passes and gives
// operators a view of the reconciliation queue.
package reconciler

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/mux"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
	commonservice "github.com/NeptuneChain-Inc/NPC-Backend/services/common/service"
)

const (
	ServiceID   = "reconciler"
	ServiceName = "Reconciliation Service"
	Version     = "1.0.0"
)

// Ledger is what the repair and audit passes read.
type Ledger interface {
	reconcile.TxChecker
	reconcile.AuditLedger
}

var _ Ledger = (*ledger.Gateway)(nil)

// Config holds reconciler configuration. Empty schedules leave the
// corresponding job unscheduled; it can still be triggered over HTTP.
// Resolvers finish deferred writes by resolver name.
type Config struct {
	Queue          *reconcile.QueueReporter
	Target         projection.Store
	Ledger         Ledger
	Resolvers      map[string]reconcile.Resolver
	Reporter       reconcile.Reporter
	RepairSchedule string
	AuditSchedule  string
	MaxAttempts    int
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
	Router         *mux.Router
}

// Service runs the reconciliation jobs.
type Service struct {
	*commonservice.BaseService
	queue     *reconcile.QueueReporter
	repairer  *reconcile.Repairer
	auditor   *reconcile.Auditor
	scheduler *reconcile.Scheduler

	mu         sync.Mutex
	lastRepair reconcile.RepairResult
	lastAudit  int
	repairs    int
	audits     int
}

// New creates the reconciler service and mounts its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("reconciler: ledger is required")
	}
	base := commonservice.NewBase(commonservice.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Logger:  cfg.Logger,
		Router:  cfg.Router,
	})

	repairer, err := reconcile.NewRepairer(reconcile.RepairerConfig{
		Queue:       cfg.Queue,
		Target:      cfg.Target,
		Ledger:      cfg.Ledger,
		Resolvers:   cfg.Resolvers,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      base.Logger(),
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create repairer: %w", err)
	}

	reporter := cfg.Reporter
	if reporter == nil {
		reporter = cfg.Queue
	}

	s := &Service{
		BaseService: base,
		queue:       cfg.Queue,
		repairer:    repairer,
		auditor:     reconcile.NewAuditor(cfg.Target, cfg.Ledger, reporter, base.Logger()),
		scheduler:   reconcile.NewScheduler(base.Logger()),
	}

	if cfg.RepairSchedule != "" {
		if err := s.scheduler.Add("repair", cfg.RepairSchedule, s.repairJob); err != nil {
			return nil, err
		}
	}
	if cfg.AuditSchedule != "" {
		if err := s.scheduler.Add("audit", cfg.AuditSchedule, s.auditJob); err != nil {
			return nil, err
		}
	}

	base.WithStats(s.stats)
	s.registerRoutes()
	return s, nil
}

// Start starts the base service and the job scheduler.
func (s *Service) Start(ctx context.Context) error {
	if err := s.BaseService.Start(ctx); err != nil {
		return err
	}
	s.scheduler.Start(ctx)
	return nil
}

// Stop stops the scheduler, waiting for a running job, then the base service.
func (s *Service) Stop() error {
	s.scheduler.Stop()
	return s.BaseService.Stop()
}

// Repair runs one repair pass.
func (s *Service) Repair(ctx context.Context) (reconcile.RepairResult, error) {
	res, err := s.repairer.RunOnce(ctx)
	if err != nil {
		return res, err
	}
	s.mu.Lock()
	s.repairs++
	s.lastRepair = res
	s.mu.Unlock()
	if res.Examined > 0 {
		s.Logger().Info(ctx, "repair pass finished", map[string]interface{}{
			"examined":     res.Examined,
			"repaired":     res.Repaired,
			"discarded":    res.Discarded,
			"needs_review": res.NeedsReview,
			"failed":       res.Failed,
			"pending":      res.Pending,
		})
	}
	return res, nil
}

// Audit runs one audit pass and returns the inconsistencies it reported.
func (s *Service) Audit(ctx context.Context) ([]reconcile.Record, error) {
	found, err := s.auditor.RunOnce(ctx)
	if err != nil {
		return found, err
	}
	s.mu.Lock()
	s.audits++
	s.lastAudit = len(found)
	s.mu.Unlock()
	return found, nil
}

func (s *Service) repairJob(ctx context.Context) error {
	_, err := s.Repair(ctx)
	return err
}

func (s *Service) auditJob(ctx context.Context) error {
	_, err := s.Audit(ctx)
	return err
}

// Jobs returns the number of scheduled jobs.
func (s *Service) Jobs() int {
	return s.scheduler.Entries()
}

func (s *Service) stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"jobs":                 s.scheduler.Entries(),
		"repair_passes":        s.repairs,
		"audit_passes":         s.audits,
		"last_repair":          s.lastRepair,
		"last_inconsistencies": s.lastAudit,
	}
}
