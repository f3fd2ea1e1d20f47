// Package assets drives the asset lifecycle: submission, dispute, dispute
// resolution and approval.
package assets

import (
	"fmt"

	"github.com/gorilla/mux"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
	commonservice "github.com/NeptuneChain-Inc/NPC-Backend/services/common/service"
)

const (
	ServiceID   = "assets"
	ServiceName = "Asset Lifecycle Service"
	Version     = "1.0.0"
)

// Service exposes the Lifecycle over HTTP.
type Service struct {
	*commonservice.BaseService
	lifecycle *Lifecycle
}

// Config holds asset service configuration.
type Config struct {
	Ledger    Ledger
	Committer *reconcile.Committer
	Logger    *logging.Logger
	Router    *mux.Router
}

// New creates the asset service and mounts its routes.
func New(cfg Config) (*Service, error) {
	base := commonservice.NewBase(commonservice.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Logger:  cfg.Logger,
		Router:  cfg.Router,
	})

	lifecycle, err := NewLifecycle(LifecycleConfig{
		Ledger:    cfg.Ledger,
		Committer: cfg.Committer,
		Logger:    base.Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("create lifecycle: %w", err)
	}

	s := &Service{BaseService: base, lifecycle: lifecycle}
	base.WithStats(lifecycle.Stats().Export)
	s.registerRoutes()
	return s, nil
}

// Lifecycle returns the state machine behind the handlers.
func (s *Service) Lifecycle() *Lifecycle {
	return s.lifecycle
}
