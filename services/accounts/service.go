// Package accounts admits accounts onto the ledger account manager and
// keeps their registration, blacklist and verification-queue projection.
package accounts

import (
	"fmt"

	"github.com/gorilla/mux"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/identity"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
	commonservice "github.com/NeptuneChain-Inc/NPC-Backend/services/common/service"
)

const (
	ServiceID   = "accounts"
	ServiceName = "Account Gate Service"
	Version     = "1.0.0"
)

// Service exposes the Gate over HTTP.
type Service struct {
	*commonservice.BaseService
	gate *Gate
}

// Config holds account service configuration.
type Config struct {
	Ledger    Ledger
	Identity  identity.Verifier
	Committer *reconcile.Committer
	Logger    *logging.Logger
	Router    *mux.Router
}

// New creates the account service and mounts its routes.
func New(cfg Config) (*Service, error) {
	base := commonservice.NewBase(commonservice.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Logger:  cfg.Logger,
		Router:  cfg.Router,
	})

	gate, err := NewGate(GateConfig{
		Ledger:    cfg.Ledger,
		Identity:  cfg.Identity,
		Committer: cfg.Committer,
		Logger:    base.Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("create gate: %w", err)
	}

	s := &Service{BaseService: base, gate: gate}
	base.WithStats(gate.Stats().Export)
	s.registerRoutes()
	return s, nil
}

// Gate returns the core behind the handlers.
func (s *Service) Gate() *Gate {
	return s.gate
}
