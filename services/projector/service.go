// Package projector runs the single projection writer fed by the ledger
// subscriber, and serves the mirrored event log.
package projector

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/mux"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
	commonservice "github.com/NeptuneChain-Inc/NPC-Backend/services/common/service"
)

const (
	ServiceID   = "projector"
	ServiceName = "Ledger Projector"
	Version     = "1.0.0"
)

// Service owns the Writer and, when a source is configured, the background
// loop feeding it.
type Service struct {
	*commonservice.BaseService
	writer *Writer
	// from is the cursor read at Start
	from uint64
}

// Config holds projector configuration. Source may be nil, in which case no
// background loop runs and only the read routes are served.
type Config struct {
	Ledger    LedgerReader
	Source    Source
	Committer *reconcile.Committer
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
	Router    *mux.Router
}

// New creates the projector service.
func New(cfg Config) (*Service, error) {
	base := commonservice.NewBase(commonservice.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Logger:  cfg.Logger,
		Router:  cfg.Router,
	})

	writer, err := NewWriter(WriterConfig{
		Ledger:    cfg.Ledger,
		Committer: cfg.Committer,
		Logger:    base.Logger(),
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}

	s := &Service{BaseService: base, writer: writer}
	base.WithStats(writer.Stats)
	if cfg.Source != nil {
		src := cfg.Source
		// a cursor that cannot be read fails Start instead of rescanning
		base.WithHydrate(func(ctx context.Context) error {
			from, err := writer.Cursor(ctx)
			if err != nil {
				return err
			}
			s.from = from
			base.Logger().Info(ctx, "projector resuming", map[string]interface{}{"next_block": from})
			return nil
		})
		base.AddWorker(func(ctx context.Context) {
			if err := writer.RunFrom(ctx, src, s.from); err != nil && !errors.Is(err, context.Canceled) {
				base.Logger().Error(ctx, "projector stopped", err, nil)
			}
		})
	}
	s.registerRoutes()
	return s, nil
}

// Writer returns the projection writer.
func (s *Service) Writer() *Writer {
	return s.writer
}
