// Package service provides the shared infrastructure every npcd service
// embeds: lifecycle, background workers, health and the standard routes.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
)

const healthCheckTimeout = 5 * time.Second

// HealthCheck checks one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// BaseConfig contains shared configuration for all services.
type BaseConfig struct {
	ID      string
	Name    string
	Version string
	Logger  *logging.Logger
	// Router is the router handlers are mounted on. A new one is created
	// when nil.
	Router *mux.Router
}

// BaseService provides:
// - Safe stop channel management (sync.Once prevents double-close panic)
// - Optional hydration hook for loading state on startup
// - Background worker management
// - Statistics provider for /info endpoint
type BaseService struct {
	id      string
	name    string
	version string
	logger  *logging.Logger
	router  *mux.Router

	// Lifecycle management
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Extensibility hooks
	hydrate func(context.Context) error
	statsFn func() map[string]any

	// Worker management
	workers []func(context.Context)

	// Health tracking
	checks          map[string]HealthCheck
	healthMu        sync.RWMutex
	checkResults    map[string]string
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService from shared config.
func NewBase(cfg BaseConfig) *BaseService {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(cfg.ID, "info", "json")
	}
	router := cfg.Router
	if router == nil {
		router = mux.NewRouter()
	}
	return &BaseService{
		id:           cfg.ID,
		name:         cfg.Name,
		version:      cfg.Version,
		logger:       logger,
		router:       router,
		stopCh:       make(chan struct{}),
		checks:       make(map[string]HealthCheck),
		checkResults: make(map[string]string),
	}
}

func (b *BaseService) ID() string              { return b.id }
func (b *BaseService) Name() string            { return b.name }
func (b *BaseService) Version() string         { return b.version }
func (b *BaseService) Logger() *logging.Logger { return b.logger }
func (b *BaseService) Router() *mux.Router     { return b.router }

// WithHydrate sets an optional hydrate hook executed during Start.
// The hydrate function is called before background workers are launched.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// WithStats sets a statistics provider function for the /info endpoint.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// WithHealthCheck registers a named dependency check used by /health.
func (b *BaseService) WithHealthCheck(name string, check HealthCheck) *BaseService {
	b.checks[name] = check
	return b
}

// AddWorker registers a background worker started after hydrate completes.
// Workers receive a context that Stop cancels and should return once it is
// done.
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

// AddTickerWorker registers a periodic background worker.
// The worker function is called at the specified interval until Stop() is called.
func (b *BaseService) AddTickerWorker(interval time.Duration, fn func(context.Context) error) *BaseService {
	worker := func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					b.logger.Error(ctx, "worker error", err, map[string]interface{}{"service": b.name})
				}
			}
		}
	}
	b.workers = append(b.workers, worker)
	return b
}

// Start runs hydrate once, then spins workers. Workers get a context that is
// cancelled by Stop as well as by ctx.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
	}

	wctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-b.stopCh:
		case <-wctx.Done():
		}
		cancel()
	}()

	for _, w := range b.workers {
		worker := w
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			worker(wctx)
		}()
	}

	b.logger.Info(ctx, "service started", map[string]interface{}{
		"service": b.name,
		"version": b.version,
		"workers": len(b.workers),
	})
	return nil
}

// Stop signals workers and waits for them to return.
// This method is idempotent - calling it multiple times is safe due to sync.Once.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.wg.Wait()
	return nil
}

// WorkerCount returns the number of registered workers.
func (b *BaseService) WorkerCount() int {
	return len(b.workers)
}

// CheckHealth refreshes the cached health state by probing every dependency.
func (b *BaseService) CheckHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	results := make(map[string]string, len(b.checks))
	for name, check := range b.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	b.healthMu.Lock()
	b.checkResults = results
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus returns the aggregated health status string.
func (b *BaseService) HealthStatus() string {
	b.CheckHealth()
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthStatusLocked()
}

// HealthDetails returns a map describing the most recent health state.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	names := make([]string, 0, len(b.checkResults))
	for name := range b.checkResults {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make(map[string]string, len(names))
	for _, name := range names {
		checks[name] = b.checkResults[name]
	}

	details := map[string]any{"checks": checks}
	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	} else {
		details["last_check"] = ""
	}

	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.String()

	return details
}

func (b *BaseService) healthStatusLocked() string {
	for _, result := range b.checkResults {
		if result != "ok" {
			return "unhealthy"
		}
	}
	return "healthy"
}

// =============================================================================
// Interface Compliance
// =============================================================================

// HealthChecker is implemented by services that report aggregated health.
type HealthChecker interface {
	HealthStatus() string
	HealthDetails() map[string]any
}

var _ HealthChecker = (*BaseService)(nil)
