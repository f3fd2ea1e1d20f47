// Package credits orchestrates credit issuance, purchase, transfer and
// donation against the credits contract, and serves its read surface.
package credits

import (
	"fmt"

	"github.com/gorilla/mux"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
	commonservice "github.com/NeptuneChain-Inc/NPC-Backend/services/common/service"
)

const (
	ServiceID   = "credits"
	ServiceName = "Credit Ledger Service"
	Version     = "1.0.0"
)

// Service exposes the Orchestrator over HTTP.
type Service struct {
	*commonservice.BaseService
	orchestrator *Orchestrator
}

// Config holds credit service configuration.
type Config struct {
	Ledger    Ledger
	Committer *reconcile.Committer
	Logger    *logging.Logger
	Router    *mux.Router
}

// New creates the credit service and mounts its routes.
func New(cfg Config) (*Service, error) {
	base := commonservice.NewBase(commonservice.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Logger:  cfg.Logger,
		Router:  cfg.Router,
	})

	orch, err := NewOrchestrator(OrchestratorConfig{
		Ledger:    cfg.Ledger,
		Committer: cfg.Committer,
		Logger:    base.Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	s := &Service{BaseService: base, orchestrator: orch}
	base.WithStats(orch.Stats().Export)
	s.registerRoutes()
	return s, nil
}

// Orchestrator returns the core behind the handlers.
func (s *Service) Orchestrator() *Orchestrator {
	return s.orchestrator
}
