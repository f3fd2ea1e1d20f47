package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
)

// ResolverDispute is the reconcile resolver name for dispute writes whose
// ledger id was missing from the receipt.
const ResolverDispute = "assets.dispute"

// pendingDispute is a raised dispute waiting for its ledger id.
type pendingDispute struct {
	AccountID string    `json:"account_id"`
	Reason    string    `json:"reason"`
	Asset     Asset     `json:"asset"`
	RaisedAt  time.Time `json:"raised_at"`
}

func (p *pendingDispute) records(disputeID, txHash string) (*Asset, *Dispute) {
	updated := p.Asset
	updated.State = StateDisputed
	updated.Resolution = ResolutionPending
	updated.DisputeID = disputeID
	updated.DisputeTx = txHash
	updated.UpdatedAt = p.RaisedAt

	return &updated, &Dispute{
		ID:        disputeID,
		AssetID:   p.Asset.ID,
		AccountID: p.AccountID,
		Reason:    p.Reason,
		Status:    ResolutionPending,
		RaiseTx:   txHash,
		CreatedAt: p.RaisedAt,
	}
}

func (p *pendingDispute) plan(plan *reconcile.Plan, disputeID, txHash string) {
	updated, dispute := p.records(disputeID, txHash)
	plan.EntityID = disputeID
	plan.Push(projection.Disputes(p.AccountID), DisputeRecord{
		DisputeID: disputeID,
		AssetID:   p.Asset.ID,
		Reason:    p.Reason,
		TxHash:    txHash,
		CreatedAt: p.RaisedAt,
	})
	plan.Set(projection.Dispute(disputeID), dispute)
	plan.Set(projection.Asset(p.Asset.ID), updated)
}

// ResolveDeferred keys a deferred dispute from the transaction as the
// ledger reports it now. A landed transaction that still carries no id
// needs review.
func (l *Lifecycle) ResolveDeferred(ctx context.Context, rec reconcile.Record) (*reconcile.Plan, error) {
	if rec.Deferred == nil || len(rec.Deferred.Target) == 0 {
		return nil, fmt.Errorf("%w: record %s has no dispute target", reconcile.ErrNeedsReview, rec.ID)
	}
	var raised pendingDispute
	if err := json.Unmarshal(rec.Deferred.Target, &raised); err != nil {
		return nil, fmt.Errorf("%w: decode dispute target: %v", reconcile.ErrNeedsReview, err)
	}

	status, fin, err := l.ledger.CheckTransaction(ctx, rec.TxHash)
	if err != nil {
		return nil, err
	}
	if status != ledger.TxLanded {
		return nil, fmt.Errorf("%w: transaction %s is %s", reconcile.ErrNeedsReview, rec.TxHash, status)
	}
	receipt := fin.Receipt(ledger.MethodRaiseDispute, l.now().UTC())
	disputeID, err := disputeIDFrom(receipt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", reconcile.ErrNeedsReview, err)
	}

	plan := reconcile.NewPlan(entityDispute, disputeID, receipt)
	raised.plan(plan, disputeID, receipt.TxHash)
	l.logger.Info(ctx, "deferred dispute resolved", map[string]interface{}{
		"record_id":  rec.ID,
		"dispute_id": disputeID,
		"asset_id":   raised.Asset.ID,
	})
	return plan, nil
}

var _ reconcile.Resolver = (*Lifecycle)(nil)
