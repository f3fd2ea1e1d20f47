package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/amount"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
)

// ResolverCertificate is the reconcile resolver name for certificate writes
// deferred by IssueCredits and BuyCredits.
const ResolverCertificate = "credits.certificate"

// pendingCertificate is what a deferred certificate write needs: the match
// the sequencer failed to resolve and the credit record to re-key once it
// does.
type pendingCertificate struct {
	Recipient  string        `json:"recipient"`
	Key        Key           `json:"key"`
	Balance    amount.Value  `json:"balance"`
	Floor      amount.Value  `json:"floor"`
	RecordPath string        `json:"record_path,omitempty"`
	Record     *CreditRecord `json:"record,omitempty"`
}

func newPendingCertificate(want CertificateMatch, recordPath string, rec *CreditRecord) *pendingCertificate {
	return &pendingCertificate{
		Recipient:  want.Recipient,
		Key:        want.Key,
		Balance:    amount.Value{Int: want.Balance},
		Floor:      amount.Value{Int: want.Floor},
		RecordPath: recordPath,
		Record:     rec,
	}
}

func (p *pendingCertificate) match() CertificateMatch {
	return CertificateMatch{Recipient: p.Recipient, Key: p.Key, Balance: p.Balance.Int, Floor: p.Floor.Int}
}

// ResolveDeferred finishes a deferred certificate write. The transaction is
// re-read from the ledger and the certificate resolved again; an ambiguous
// match or a transaction that did not land needs review.
func (o *Orchestrator) ResolveDeferred(ctx context.Context, rec reconcile.Record) (*reconcile.Plan, error) {
	if rec.Deferred == nil || len(rec.Deferred.Target) == 0 {
		return nil, fmt.Errorf("%w: record %s has no certificate target", reconcile.ErrNeedsReview, rec.ID)
	}
	var pending pendingCertificate
	if err := json.Unmarshal(rec.Deferred.Target, &pending); err != nil {
		return nil, fmt.Errorf("%w: decode certificate target: %v", reconcile.ErrNeedsReview, err)
	}

	status, fin, err := o.ledger.CheckTransaction(ctx, rec.TxHash)
	if err != nil {
		return nil, err
	}
	if status != ledger.TxLanded {
		return nil, fmt.Errorf("%w: transaction %s is %s", reconcile.ErrNeedsReview, rec.TxHash, status)
	}
	receipt := fin.Receipt(rec.Method, o.now().UTC())

	cert, _, err := o.resolveCertificate(ctx, receipt, pending.match())
	if errors.Is(err, ErrAmbiguous) {
		return nil, fmt.Errorf("%w: %v", reconcile.ErrNeedsReview, err)
	}
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	record := certificateRecord(cert, receipt.TxHash, now)
	if pending.Record != nil {
		if record.Price == "" && pending.Record.Price.Int != nil {
			record.Price = pending.Record.Price.Int.String()
		}
	}

	plan := reconcile.NewPlan(rec.EntityType, record.ID, receipt)
	plan.Set(projection.Certificate(record.ID), record)
	if pending.Record != nil && pending.RecordPath != "" {
		keyed := *pending.Record
		keyed.CertificateID = record.ID
		plan.Set(pending.RecordPath, &keyed)
	}
	o.logger.Info(ctx, "deferred certificate resolved", map[string]interface{}{
		"record_id":      rec.ID,
		"certificate_id": record.ID,
		"tx_hash":        rec.TxHash,
	})
	return plan, nil
}

var _ reconcile.Resolver = (*Orchestrator)(nil)

// projectionClaims reads certificate claims from the projection.
type projectionClaims struct {
	store projection.Store
}

func (c projectionClaims) ClaimedBy(ctx context.Context, id string) (string, error) {
	var rec projection.CertificateRecord
	err := projection.GetInto(ctx, c.store, projection.Certificate(id), &rec)
	if errors.Is(err, projection.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.TxHash, nil
}
