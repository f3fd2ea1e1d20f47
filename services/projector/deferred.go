package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
)

// ResolverBatch is the reconcile resolver name for batch reads the writer
// could not complete.
const ResolverBatch = "projector.batch"

type pendingCertificate struct {
	ID     string `json:"id"`
	TxHash string `json:"tx_hash"`
}

type pendingSupply struct {
	Key    ledger.SupplyKey `json:"key"`
	TxHash string           `json:"tx_hash"`
}

// pendingBatch lists the reads of one block that failed.
type pendingBatch struct {
	Block        uint64               `json:"block"`
	Certificates []pendingCertificate `json:"certificates,omitempty"`
	Supply       []pendingSupply      `json:"supply,omitempty"`
}

// ResolveDeferred retries the failed reads of a batch. A read that fails
// again leaves the record pending.
func (w *Writer) ResolveDeferred(ctx context.Context, rec reconcile.Record) (*reconcile.Plan, error) {
	if rec.Deferred == nil || len(rec.Deferred.Target) == 0 {
		return nil, fmt.Errorf("%w: record %s has no batch target", reconcile.ErrNeedsReview, rec.ID)
	}
	var pending pendingBatch
	if err := json.Unmarshal(rec.Deferred.Target, &pending); err != nil {
		return nil, fmt.Errorf("%w: decode batch target: %v", reconcile.ErrNeedsReview, err)
	}

	now := w.now().UTC()
	plan := reconcile.NewPlan(rec.EntityType, rec.EntityID, nil)
	plan.TxHash = rec.TxHash
	for _, c := range pending.Certificates {
		id, ok := new(big.Int).SetString(c.ID, 10)
		if !ok {
			return nil, fmt.Errorf("%w: certificate id %q", reconcile.ErrNeedsReview, c.ID)
		}
		cert, err := w.readCertificate(ctx, id, c.TxHash, now)
		if err != nil {
			return nil, err
		}
		plan.Set(projection.Certificate(cert.ID), cert)
	}
	for _, s := range pending.Supply {
		if err := w.planSupply(ctx, plan, s.Key, s.TxHash, pending.Block, now); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

var _ reconcile.Resolver = (*Writer)(nil)
