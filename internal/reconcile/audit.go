package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
)

// AuditLedger is the ledger read surface the auditor compares against.
type AuditLedger interface {
	GetTotalCertificates(ctx context.Context) (*big.Int, error)
	GetSupply(ctx context.Context, producer, verifier, creditType string) (*ledger.Supply, error)
}

// Auditor compares projected aggregates with ledger reads. Mismatches are
// reported as inconsistency records and returned; nothing is corrected.
type Auditor struct {
	store    projection.Store
	ledger   AuditLedger
	reporter Reporter
	logger   *logging.Logger
}

// NewAuditor creates an Auditor. reporter may be nil.
func NewAuditor(store projection.Store, l AuditLedger, reporter Reporter, logger *logging.Logger) *Auditor {
	if logger == nil {
		logger = logging.NewDiscard("reconcile")
	}
	return &Auditor{store: store, ledger: l, reporter: reporter, logger: logger}
}

// RunOnce audits the certificate count and every indexed supply record.
func (a *Auditor) RunOnce(ctx context.Context) ([]Record, error) {
	var found []Record

	rec, err := a.auditCertificates(ctx)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		found = append(found, *rec)
	}

	keys, err := a.store.List(ctx, projection.SupplyKeys())
	if err != nil {
		return found, fmt.Errorf("list supply keys: %w", err)
	}
	for _, entry := range keys {
		var key ledger.SupplyKey
		if err := entry.Decode(&key); err != nil {
			return found, fmt.Errorf("decode supply key %s: %w", entry.Key, err)
		}
		rec, err := a.auditSupply(ctx, key)
		if err != nil {
			return found, err
		}
		if rec != nil {
			found = append(found, *rec)
		}
	}

	for _, r := range found {
		if a.reporter == nil {
			break
		}
		if err := a.reporter.Report(ctx, r); err != nil {
			a.logger.Error(ctx, "failed to report inconsistency", err, map[string]interface{}{"record_id": r.ID})
		}
	}
	return found, nil
}

func (a *Auditor) auditCertificates(ctx context.Context) (*Record, error) {
	total, err := a.ledger.GetTotalCertificates(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := a.store.List(ctx, projection.Certificates())
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	projected := strconv.Itoa(len(entries))
	if total.String() == projected {
		return nil, nil
	}
	rec := inconsistency("certificates", "count", total.String(), projected)
	return &rec, nil
}

func (a *Auditor) auditSupply(ctx context.Context, key ledger.SupplyKey) (*Record, error) {
	supply, err := a.ledger.GetSupply(ctx, key.Producer, key.Verifier, key.CreditType)
	if err != nil {
		return nil, err
	}

	var projected projection.SupplyRecord
	err = projection.GetInto(ctx, a.store, projection.Supply(key.Producer, key.Verifier, key.CreditType), &projected)
	if err != nil && !errors.Is(err, projection.ErrNotFound) {
		return nil, err
	}

	want := supplyTuple(supply.Issued.String(), supply.Available.String(), supply.Donated.String())
	got := supplyTuple(projected.Issued, projected.Available, projected.Donated)
	if want == got {
		return nil, nil
	}
	id := key.Producer + "/" + key.Verifier + "/" + key.CreditType
	rec := inconsistency("supply", id, want, got)
	return &rec, nil
}

func supplyTuple(issued, available, donated string) string {
	return fmt.Sprintf("issued=%s available=%s donated=%s", orZero(issued), orZero(available), orZero(donated))
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func inconsistency(entityType, entityID, ledgerValue, projectionValue string) Record {
	rec := NewRecord(KindInconsistent, entityType, entityID)
	rec.Ledger = ledgerValue
	rec.Projection = projectionValue
	rec.Error = apperrors.ProjectionInconsistent(entityType, entityID, ledgerValue, projectionValue).Error()
	return rec
}
