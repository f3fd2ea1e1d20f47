package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
)

// Plan is the set of projection writes paired with one confirmed ledger
// transaction, applied in order.
type Plan struct {
	EntityType string
	EntityID   string
	TxHash     string
	Method     string

	writes   []Write
	deferred *Deferred
	err      error
}

// NewPlan starts a plan for the transaction in receipt.
func NewPlan(entityType, entityID string, receipt *ledger.Receipt) *Plan {
	p := &Plan{EntityType: entityType, EntityID: entityID}
	if receipt != nil {
		p.TxHash = receipt.TxHash
		p.Method = receipt.Method
	}
	return p
}

// Set plans an overwrite of path.
func (p *Plan) Set(path string, value interface{}) *Plan {
	raw, ok := p.marshal(path, value)
	if ok {
		p.writes = append(p.writes, Write{Op: OpSet, Path: path, Value: raw})
	}
	return p
}

// Push plans an append under path and returns the child key it will use.
func (p *Plan) Push(path string, value interface{}) string {
	raw, ok := p.marshal(path, value)
	if !ok {
		return ""
	}
	key := projection.NewPushKey()
	p.writes = append(p.writes, Write{Op: OpPush, Path: path, Key: key, Value: raw})
	return key
}

// Delete plans removal of path and its subtree.
func (p *Plan) Delete(path string) *Plan {
	p.writes = append(p.writes, Write{Op: OpDelete, Path: path})
	return p
}

// Fail marks the plan as unable to produce its writes. Committing it
// reports drift for whatever was planned.
func (p *Plan) Fail(err error) *Plan {
	if p.err == nil && err != nil {
		p.err = err
	}
	return p
}

// Defer marks the plan incomplete. Committing it reports drift whose record
// carries target, which the resolver registered under name turns into the
// missing writes on a later repair pass. Writes planned before Defer are
// kept; later ones are dropped.
func (p *Plan) Defer(resolver string, target interface{}, err error) *Plan {
	if p.err != nil {
		return p
	}
	if err == nil {
		err = fmt.Errorf("%s writes deferred", resolver)
	}
	d := &Deferred{Resolver: resolver, Reason: err.Error()}
	if target != nil {
		raw, mErr := json.Marshal(target)
		if mErr != nil {
			return p.Fail(fmt.Errorf("encode deferred target: %w", mErr))
		}
		d.Target = raw
	}
	p.deferred = d
	return p.Fail(err)
}

// Err returns the error that stopped planning, if any.
func (p *Plan) Err() error {
	return p.err
}

// Writes returns the planned writes.
func (p *Plan) Writes() []Write {
	return append([]Write(nil), p.writes...)
}

func (p *Plan) marshal(path string, value interface{}) (json.RawMessage, bool) {
	if p.err != nil {
		return nil, false
	}
	raw, err := json.Marshal(value)
	if err != nil {
		p.err = fmt.Errorf("encode %s: %w", path, err)
		return nil, false
	}
	return raw, true
}

// Apply runs writes in order and returns how many completed.
func Apply(ctx context.Context, store projection.Store, writes []Write) (int, error) {
	for i, w := range writes {
		var err error
		switch w.Op {
		case OpSet, OpPush:
			err = store.Set(ctx, w.Target(), w.Value)
		case OpDelete:
			err = store.Delete(ctx, w.Path)
		default:
			err = fmt.Errorf("unknown write op %q", w.Op)
		}
		if err != nil {
			return i, fmt.Errorf("%s %s: %w", w.Op, w.Target(), err)
		}
	}
	return len(writes), nil
}

// Committer applies plans and turns failures into drift.
type Committer struct {
	store    projection.Store
	reporter Reporter
	logger   *logging.Logger
}

// NewCommitter creates a Committer. reporter may be nil.
func NewCommitter(store projection.Store, reporter Reporter, logger *logging.Logger) *Committer {
	if logger == nil {
		logger = logging.NewDiscard("reconcile")
	}
	return &Committer{store: store, reporter: reporter, logger: logger}
}

// Store returns the projection store plans are applied to.
func (c *Committer) Store() projection.Store {
	return c.store
}

// Commit applies plan. Writes run on a context detached from ctx: the
// ledger phase already happened and cannot be undone by the caller leaving.
// On failure the writes that did not land are reported and a
// ProjectionDrift error is returned. A plan that failed while planning is
// reported as incomplete so it is never replayed to repaired.
func (c *Committer) Commit(ctx context.Context, plan *Plan) error {
	wctx := context.WithoutCancel(ctx)

	var (
		done int
		err  = plan.err
	)
	if err == nil {
		done, err = Apply(wctx, c.store, plan.writes)
		if err == nil {
			return nil
		}
	}

	rec := NewRecord(KindDrift, plan.EntityType, plan.EntityID)
	rec.TxHash = plan.TxHash
	rec.Method = plan.Method
	rec.Writes = append([]Write(nil), plan.writes[done:]...)
	if plan.err != nil {
		rec.Deferred = plan.deferred
		if rec.Deferred == nil {
			rec.Deferred = &Deferred{Reason: plan.err.Error()}
		}
	}
	rec.Error = err.Error()
	c.report(wctx, rec)

	return apperrors.ProjectionDrift(plan.EntityType, plan.TxHash, err).
		WithDetails("entity_id", plan.EntityID).
		WithDetails("record_id", rec.ID).
		WithDetails("pending_writes", len(rec.Writes))
}

// TrackTimeout records a LedgerTimeout for a later re-check. Other errors
// are ignored.
func (c *Committer) TrackTimeout(ctx context.Context, entityType, entityID string, err error) {
	if !apperrors.IsLedgerTimeout(err) {
		return
	}
	se := apperrors.GetServiceError(err)
	rec := NewRecord(KindTimeout, entityType, entityID)
	if hash, ok := se.Details["tx_hash"].(string); ok {
		rec.TxHash = hash
	}
	if method, ok := se.Details["method"].(string); ok {
		rec.Method = method
	}
	rec.Error = err.Error()
	c.report(context.WithoutCancel(ctx), rec)
}

func (c *Committer) report(ctx context.Context, rec Record) {
	if c.reporter == nil {
		return
	}
	if err := c.reporter.Report(ctx, rec); err != nil {
		c.logger.Error(ctx, "reconciliation report failed", err, map[string]interface{}{
			"record_id":   rec.ID,
			"kind":        rec.Kind,
			"entity_type": rec.EntityType,
			"tx_hash":     rec.TxHash,
		})
	}
}
