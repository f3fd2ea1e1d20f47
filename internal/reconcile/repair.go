package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
)

// DefaultMaxAttempts bounds drift replays before a record is marked failed.
const DefaultMaxAttempts = 10

// TxChecker re-checks submitted transactions. *ledger.Gateway implements it.
type TxChecker interface {
	CheckTransaction(ctx context.Context, txHash string) (ledger.TxStatus, *ledger.Finality, error)
}

// RepairResult counts what one pass did.
type RepairResult struct {
	Examined    int `json:"examined"`
	Repaired    int `json:"repaired"`
	Discarded   int `json:"discarded"`
	NeedsReview int `json:"needs_review"`
	Failed      int `json:"failed"`
	Pending     int `json:"pending"`
}

// Repairer works through pending records.
//
// Drift records have their remaining writes replayed against the target
// store. Deferred writes are handed to the resolver registered for them; a
// record that has none, or whose resolver cannot decide, needs review and is
// never marked repaired. Timeout records are re-checked on the ledger: a faulted transaction
// is discarded, a landed one needs review, an unknown one stays pending.
// Inconsistency records are left alone.
type Repairer struct {
	queue       *QueueReporter
	target      projection.Store
	ledger      TxChecker
	resolvers   map[string]Resolver
	maxAttempts int
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// RepairerConfig configures a Repairer.
type RepairerConfig struct {
	Queue       *QueueReporter
	Target      projection.Store
	Ledger      TxChecker
	Resolvers   map[string]Resolver
	MaxAttempts int
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
}

// NewRepairer creates a Repairer.
func NewRepairer(cfg RepairerConfig) (*Repairer, error) {
	if cfg.Queue == nil || cfg.Target == nil {
		return nil, fmt.Errorf("repairer requires a queue and a target store")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard("reconcile")
	}
	resolvers := make(map[string]Resolver, len(cfg.Resolvers))
	for name, res := range cfg.Resolvers {
		if res != nil {
			resolvers[name] = res
		}
	}
	return &Repairer{
		queue:       cfg.Queue,
		target:      cfg.Target,
		ledger:      cfg.Ledger,
		resolvers:   resolvers,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}, nil
}

// RunOnce makes one pass over the pending records.
func (r *Repairer) RunOnce(ctx context.Context) (RepairResult, error) {
	var res RepairResult

	pending, err := r.queue.Pending(ctx)
	if err != nil {
		return res, err
	}

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		switch rec.Kind {
		case KindDrift:
			rec = r.replay(ctx, rec)
		case KindTimeout:
			rec = r.recheck(ctx, rec)
		default:
			continue
		}
		res.Examined++

		switch rec.Status {
		case StatusRepaired:
			res.Repaired++
		case StatusDiscarded:
			res.Discarded++
		case StatusNeedsReview:
			res.NeedsReview++
		case StatusFailed:
			res.Failed++
		default:
			res.Pending++
		}
		r.metrics.RecordRepair(string(rec.Status))

		if err := r.queue.Update(ctx, rec); err != nil {
			r.logger.Error(ctx, "failed to update reconciliation record", err, map[string]interface{}{
				"record_id": rec.ID,
			})
		}
	}
	return res, nil
}

func (r *Repairer) replay(ctx context.Context, rec Record) Record {
	done, err := Apply(ctx, r.target, rec.Writes)
	rec.Writes = rec.Writes[done:]
	rec.Attempts++
	if err == nil && rec.Deferred != nil {
		err = r.finish(ctx, &rec)
	}
	if err == nil {
		rec.Status = StatusRepaired
		rec.Error = ""
		r.logger.Info(ctx, "projection drift repaired", map[string]interface{}{
			"record_id":   rec.ID,
			"entity_type": rec.EntityType,
			"tx_hash":     rec.TxHash,
		})
		return rec
	}

	rec.Error = err.Error()
	switch {
	case errors.Is(err, ErrNeedsReview):
		rec.Status = StatusNeedsReview
		r.logger.Warn(ctx, "projection drift needs review", map[string]interface{}{
			"record_id":   rec.ID,
			"entity_type": rec.EntityType,
			"tx_hash":     rec.TxHash,
			"error":       rec.Error,
		})
	case rec.Attempts >= r.maxAttempts:
		rec.Status = StatusFailed
		r.logger.Error(ctx, "projection drift repair exhausted", err, map[string]interface{}{
			"record_id": rec.ID,
			"attempts":  rec.Attempts,
		})
	}
	return rec
}

// finish resolves the deferred writes of rec and applies them. On success
// the record holds no deferred target; writes that fail to apply stay on it
// for the next pass.
func (r *Repairer) finish(ctx context.Context, rec *Record) error {
	res, ok := r.resolvers[rec.Deferred.Resolver]
	if !ok {
		if rec.Deferred.Resolver == "" {
			return fmt.Errorf("%w: incomplete %s writes: %s", ErrNeedsReview, rec.EntityType, rec.Deferred.Reason)
		}
		return fmt.Errorf("%w: no resolver %q registered", ErrNeedsReview, rec.Deferred.Resolver)
	}

	plan, err := res.ResolveDeferred(ctx, *rec)
	if err != nil {
		return err
	}
	if plan == nil {
		return fmt.Errorf("%w: resolver %q returned no writes", ErrNeedsReview, rec.Deferred.Resolver)
	}
	if err := plan.Err(); err != nil {
		return err
	}

	rec.Writes = plan.Writes()
	rec.Deferred = nil
	done, err := Apply(ctx, r.target, rec.Writes)
	rec.Writes = rec.Writes[done:]
	return err
}

func (r *Repairer) recheck(ctx context.Context, rec Record) Record {
	if r.ledger == nil || rec.TxHash == "" {
		rec.Status = StatusNeedsReview
		return rec
	}

	status, fin, err := r.ledger.CheckTransaction(ctx, rec.TxHash)
	rec.Attempts++
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	switch status {
	case ledger.TxFaulted:
		rec.Status = StatusDiscarded
		if fin != nil {
			rec.Error = fmt.Sprintf("transaction faulted: %s", fin.Exception)
		}
	case ledger.TxLanded:
		// the ledger applied it but nothing was projected for it
		rec.Status = StatusNeedsReview
		rec.Error = ""
	}
	return rec
}
