package credits

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/amount"
	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
)

// Ledger reads. None of them touch the projection.

// GetSupply reads the supply line of key.
func (o *Orchestrator) GetSupply(ctx context.Context, key Key) (*SupplyView, error) {
	sup, err := o.ledger.GetSupply(ctx, key.Producer, key.Verifier, key.CreditType)
	if err != nil {
		return nil, err
	}
	return newSupplyView(key, sup), nil
}

// GetAccountBalance reads accountID's balance on key.
func (o *Orchestrator) GetAccountBalance(ctx context.Context, accountID string, key Key) (*big.Int, error) {
	return o.ledger.GetAccountCreditBalance(ctx, accountID, key.Producer, key.Verifier, key.CreditType)
}

// GetCertificateByID reads one certificate.
func (o *Orchestrator) GetCertificateByID(ctx context.Context, id *big.Int) (*CertificateView, error) {
	if id == nil || id.Sign() <= 0 {
		return nil, apperrors.BadRequest("certificate id must be positive")
	}
	cert, err := o.ledger.GetCertificateByID(ctx, id)
	if apperrors.IsLedgerRejected(err) {
		return nil, apperrors.NotFound("certificate", id.String())
	}
	if err != nil {
		return nil, err
	}
	return newCertificateView(cert), nil
}

// GetAccountCertificates lists the certificate ids held by accountID.
func (o *Orchestrator) GetAccountCertificates(ctx context.Context, accountID string) ([]amount.Value, error) {
	ids, err := o.ledger.GetAccountCertificates(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return values(ids), nil
}

func (o *Orchestrator) IsProducerRegistered(ctx context.Context, producer string) (bool, error) {
	return o.ledger.IsProducerRegistered(ctx, producer)
}

func (o *Orchestrator) IsVerifierRegistered(ctx context.Context, producer, verifier string) (bool, error) {
	return o.ledger.IsVerifierRegistered(ctx, producer, verifier)
}

func (o *Orchestrator) GetProducers(ctx context.Context) ([]string, error) {
	return o.ledger.GetProducers(ctx)
}

func (o *Orchestrator) GetProducerVerifiers(ctx context.Context, producer string) ([]string, error) {
	return o.ledger.GetProducerVerifiers(ctx, producer)
}

func (o *Orchestrator) GetCreditTypes(ctx context.Context, assetTokenID string) ([]string, error) {
	return o.ledger.GetCreditTypes(ctx, assetTokenID)
}

func (o *Orchestrator) GetCreditSupplyLimit(ctx context.Context, assetTokenID, creditType string) (*big.Int, error) {
	return o.ledger.GetCreditSupplyLimit(ctx, assetTokenID, creditType)
}

func (o *Orchestrator) GetTotalCertificates(ctx context.Context) (*big.Int, error) {
	return o.ledger.GetTotalCertificates(ctx)
}

func (o *Orchestrator) GetTotalSold(ctx context.Context) (*big.Int, error) {
	return o.ledger.GetTotalSold(ctx)
}

// OwnerOf reads the owner of an asset token.
func (o *Orchestrator) OwnerOf(ctx context.Context, assetTokenID string) (string, error) {
	owner, err := o.ledger.OwnerOf(ctx, assetTokenID)
	if apperrors.IsLedgerRejected(err) {
		return "", apperrors.NotFound("token", assetTokenID)
	}
	return owner, err
}

func (o *Orchestrator) GetRecoveryDuration(ctx context.Context) (*big.Int, error) {
	return o.ledger.GetRecoveryDuration(ctx)
}

// Projection reads.

// historyKinds maps record kinds to their projection bucket names.
var historyKinds = []string{
	projection.CreditsIssued,
	projection.CreditsPurchased,
	projection.CreditsTransferred,
	projection.CreditsReceived,
	projection.CreditsDonated,
}

// History lists the credit records projected under accountID, by bucket.
// kind narrows the result to one bucket when non-empty.
func (o *Orchestrator) History(ctx context.Context, accountID, kind string) (map[string][]CreditRecord, error) {
	kinds := historyKinds
	if kind = strings.TrimSpace(kind); kind != "" {
		if !knownBucket(kind) {
			return nil, apperrors.BadRequest(fmt.Sprintf("unknown credit history kind %q", kind)).
				WithDetails("allowed", historyKinds)
		}
		kinds = []string{kind}
	}

	store := o.committer.Store()
	out := make(map[string][]CreditRecord, len(kinds))
	for _, k := range kinds {
		path := projection.Credits(accountID, k)
		entries, err := store.List(ctx, path)
		if err != nil {
			return nil, apperrors.Upstream("projection", err)
		}
		records := make([]CreditRecord, 0, len(entries))
		for _, e := range entries {
			var rec CreditRecord
			if err := e.Decode(&rec); err != nil {
				return nil, apperrors.Upstream("projection", fmt.Errorf("decode %s/%s: %w", path, e.Key, err))
			}
			records = append(records, rec)
		}
		out[k] = records
	}
	return out, nil
}

func knownBucket(kind string) bool {
	for _, k := range historyKinds {
		if k == kind {
			return true
		}
	}
	return false
}
