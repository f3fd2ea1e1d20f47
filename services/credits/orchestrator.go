package credits

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/amount"
	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
	commonservice "github.com/NeptuneChain-Inc/NPC-Backend/services/common/service"
)

const (
	entityCredits     = "credits"
	entityCertificate = "certificate"
)

// Ledger is the credits contract surface the orchestrator drives.
type Ledger interface {
	SequencerLedger

	IssueCredits(ctx context.Context, senderID, assetTokenID, producer, verifier, creditType string, amount *big.Int) (*ledger.Receipt, error)
	BuyCredits(ctx context.Context, accountID, producer, verifier, creditType string, amount, price *big.Int) (*ledger.Receipt, error)
	TransferCredits(ctx context.Context, senderID, recipientID, producer, verifier, creditType string, amount, price *big.Int) (*ledger.Receipt, error)
	DonateCredits(ctx context.Context, senderID, producer, verifier, creditType string, amount *big.Int) (*ledger.Receipt, error)
	CheckTransaction(ctx context.Context, txHash string) (ledger.TxStatus, *ledger.Finality, error)

	OwnerOf(ctx context.Context, assetTokenID string) (string, error)
	GetCreditTypes(ctx context.Context, assetTokenID string) ([]string, error)
	GetCreditSupplyLimit(ctx context.Context, assetTokenID, creditType string) (*big.Int, error)
	GetTotalSold(ctx context.Context) (*big.Int, error)
	IsProducerRegistered(ctx context.Context, producer string) (bool, error)
	IsVerifierRegistered(ctx context.Context, producer, verifier string) (bool, error)
	GetProducerVerifiers(ctx context.Context, producer string) ([]string, error)
	GetProducers(ctx context.Context) ([]string, error)
	GetSupply(ctx context.Context, producer, verifier, creditType string) (*ledger.Supply, error)
	GetAccountCreditBalance(ctx context.Context, accountID, producer, verifier, creditType string) (*big.Int, error)
	GetRecoveryDuration(ctx context.Context) (*big.Int, error)
}

var _ Ledger = (*ledger.Gateway)(nil)

// OrchestratorConfig wires an Orchestrator.
type OrchestratorConfig struct {
	Ledger    Ledger
	Committer *reconcile.Committer
	Logger    *logging.Logger
	Stats     *commonservice.OperationStats
}

// Orchestrator runs credit issuance, purchase, transfer and donation. No
// locks are taken: concurrent calls on one supply line are ordered by the
// ledger.
type Orchestrator struct {
	ledger    Ledger
	committer *reconcile.Committer
	sequencer *Sequencer
	logger    *logging.Logger
	stats     *commonservice.OperationStats
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("credits: ledger is required")
	}
	if cfg.Committer == nil {
		return nil, fmt.Errorf("credits: committer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard("credits")
	}
	if cfg.Stats == nil {
		cfg.Stats = commonservice.NewOperationStats()
	}
	return &Orchestrator{
		ledger:    cfg.Ledger,
		committer: cfg.Committer,
		sequencer: NewSequencer(cfg.Ledger).WithClaims(projectionClaims{store: cfg.Committer.Store()}),
		logger:    cfg.Logger,
		stats:     cfg.Stats,
		now:       time.Now,
	}, nil
}

// Stats returns the operation counters.
func (o *Orchestrator) Stats() *commonservice.OperationStats {
	return o.stats
}

// Sequencer returns the certificate id sequencer.
func (o *Orchestrator) Sequencer() *Sequencer {
	return o.sequencer
}

// IssueCredits mints amount of creditType against an approved asset. Who may
// issue is the ledger's decision. The certificate the ledger creates for the
// producer is projected alongside the issued record.
func (o *Orchestrator) IssueCredits(ctx context.Context, senderID, assetTokenID string, key Key, qty *big.Int) (res *Result, err error) {
	defer o.track(ctx, "issue", assetTokenID, time.Now(), &err)

	if err := requireFields(map[string]string{"sender_id": senderID, "asset_token_id": assetTokenID}, key); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", qty); err != nil {
		return nil, err
	}
	if err := o.checkIssuable(ctx, assetTokenID, key.CreditType); err != nil {
		return nil, err
	}

	provisional, err := o.sequencer.Next(ctx)
	if err != nil {
		return nil, apperrors.PreconditionFailedCause("read certificate count", err)
	}

	receipt, err := o.ledger.IssueCredits(ctx, senderID, assetTokenID, key.Producer, key.Verifier, key.CreditType, qty)
	if err != nil {
		o.committer.TrackTimeout(ctx, entityCredits, assetTokenID, err)
		return nil, err
	}

	want := CertificateMatch{Recipient: key.Producer, Key: key, Balance: qty, Floor: provisional.CertificateID.Int}
	cert, _, certErr := o.resolveCertificate(context.WithoutCancel(ctx), receipt, want)

	now := o.now().UTC()
	rec := o.record(KindIssue, senderID, key, qty, nil, receipt, now)
	rec.AssetTokenID = assetTokenID

	res = &Result{Receipt: receipt, Confirmed: true, Record: rec, Provisional: provisional}
	if certErr == nil {
		rec.CertificateID = cert.ID.String()
		res.Certificate = certificateRecord(cert, receipt.TxHash, now)
	}

	plan := reconcile.NewPlan(entityCredits, assetTokenID, receipt)
	issuedPath := projection.Credits(senderID, projection.CreditsIssued)
	pushKey := plan.Push(issuedPath, rec)
	if certErr != nil {
		plan.Defer(ResolverCertificate, newPendingCertificate(want, issuedPath+"/"+pushKey, rec), certErr)
	} else {
		plan.Set(projection.Certificate(res.Certificate.ID), res.Certificate)
	}
	return res, o.committer.Commit(ctx, plan)
}

// BuyCredits purchases amount from the available supply of key. The
// provisional id read before submission is returned for display; the
// certificate is projected under the id the ledger assigned.
func (o *Orchestrator) BuyCredits(ctx context.Context, accountID string, key Key, qty, price *big.Int) (res *Result, err error) {
	defer o.track(ctx, "buy", accountID, time.Now(), &err)

	if err := requireFields(map[string]string{"account_id": accountID}, key); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", qty); err != nil {
		return nil, err
	}
	if err := requireNonNegative("price", price); err != nil {
		return nil, err
	}
	if err := o.checkAvailable(ctx, key, qty); err != nil {
		return nil, err
	}

	provisional, err := o.sequencer.Next(ctx)
	if err != nil {
		return nil, apperrors.PreconditionFailedCause("read certificate count", err)
	}

	receipt, err := o.ledger.BuyCredits(ctx, accountID, key.Producer, key.Verifier, key.CreditType, qty, price)
	if err != nil {
		o.committer.TrackTimeout(ctx, entityCredits, accountID, err)
		return nil, err
	}

	// Any certificate created after the count was read is at or above the
	// provisional id.
	want := CertificateMatch{Recipient: accountID, Key: key, Balance: qty, Floor: provisional.CertificateID.Int}
	cert, source, certErr := o.resolveCertificate(context.WithoutCancel(ctx), receipt, want)

	now := o.now().UTC()
	rec := o.record(KindBuy, accountID, key, qty, price, receipt, now)
	res = &Result{Receipt: receipt, Confirmed: true, Record: rec, Provisional: provisional}
	if certErr == nil {
		rec.CertificateID = cert.ID.String()
		res.Certificate = certificateRecord(cert, receipt.TxHash, now)
		if res.Certificate.Price == "" && price != nil {
			res.Certificate.Price = price.String()
		}
		o.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"certificate_id": rec.CertificateID,
			"provisional_id": provisional.CertificateID.Int.String(),
			"source":         source,
		}).Debug("certificate id resolved")
	}

	plan := reconcile.NewPlan(entityCertificate, accountID, receipt)
	purchasedPath := projection.Credits(accountID, projection.CreditsPurchased)
	pushKey := plan.Push(purchasedPath, rec)
	if certErr != nil {
		// the purchase is final but its certificate cannot be keyed yet
		plan.Defer(ResolverCertificate, newPendingCertificate(want, purchasedPath+"/"+pushKey, rec), certErr)
	} else {
		plan.EntityID = rec.CertificateID
		plan.Set(projection.Certificate(rec.CertificateID), res.Certificate)
	}
	return res, o.committer.Commit(ctx, plan)
}

// TransferCredits moves amount from senderID to recipientID. A record is
// pushed under both accounts.
func (o *Orchestrator) TransferCredits(ctx context.Context, senderID, recipientID string, key Key, qty, price *big.Int) (res *Result, err error) {
	defer o.track(ctx, "transfer", senderID, time.Now(), &err)

	if err := requireFields(map[string]string{"sender_id": senderID, "recipient_id": recipientID}, key); err != nil {
		return nil, err
	}
	if senderID == recipientID {
		return nil, apperrors.PreconditionFailed("sender and recipient must differ")
	}
	if err := requirePositive("amount", qty); err != nil {
		return nil, err
	}
	if err := requireNonNegative("price", price); err != nil {
		return nil, err
	}
	balance, err := o.ledger.GetAccountCreditBalance(ctx, senderID, key.Producer, key.Verifier, key.CreditType)
	if err != nil {
		return nil, apperrors.PreconditionFailedCause("read sender balance", err)
	}
	if balance.Cmp(qty) < 0 {
		return nil, apperrors.PreconditionFailed(fmt.Sprintf("sender balance %s is below %s", balance, qty)).
			WithDetails("balance", balance.String())
	}

	receipt, err := o.ledger.TransferCredits(ctx, senderID, recipientID, key.Producer, key.Verifier, key.CreditType, qty, price)
	if err != nil {
		o.committer.TrackTimeout(ctx, entityCredits, senderID, err)
		return nil, err
	}

	now := o.now().UTC()
	sent := o.record(KindTransfer, senderID, key, qty, price, receipt, now)
	sent.Counterparty = recipientID
	received := *sent
	received.AccountID = recipientID
	received.Counterparty = senderID

	plan := reconcile.NewPlan(entityCredits, senderID, receipt)
	plan.Push(projection.Credits(senderID, projection.CreditsTransferred), sent)
	plan.Push(projection.Credits(recipientID, projection.CreditsReceived), &received)

	res = &Result{Receipt: receipt, Confirmed: true, Record: sent}
	return res, o.committer.Commit(ctx, plan)
}

// DonateCredits retires amount from the available supply of key.
func (o *Orchestrator) DonateCredits(ctx context.Context, senderID string, key Key, qty *big.Int) (res *Result, err error) {
	defer o.track(ctx, "donate", senderID, time.Now(), &err)

	if err := requireFields(map[string]string{"sender_id": senderID}, key); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", qty); err != nil {
		return nil, err
	}
	if err := o.checkAvailable(ctx, key, qty); err != nil {
		return nil, err
	}

	receipt, err := o.ledger.DonateCredits(ctx, senderID, key.Producer, key.Verifier, key.CreditType, qty)
	if err != nil {
		o.committer.TrackTimeout(ctx, entityCredits, senderID, err)
		return nil, err
	}

	rec := o.record(KindDonate, senderID, key, qty, nil, receipt, o.now().UTC())
	plan := reconcile.NewPlan(entityCredits, senderID, receipt)
	plan.Push(projection.Credits(senderID, projection.CreditsDonated), rec)

	res = &Result{Receipt: receipt, Confirmed: true, Record: rec}
	return res, o.committer.Commit(ctx, plan)
}

// =============================================================================
// Preconditions
// =============================================================================

func (o *Orchestrator) checkIssuable(ctx context.Context, assetTokenID, creditType string) error {
	types, err := o.ledger.GetCreditTypes(ctx, assetTokenID)
	if err != nil {
		return apperrors.PreconditionFailedCause("read credit types", err)
	}
	for _, t := range types {
		if t == creditType {
			return nil
		}
	}
	return apperrors.PreconditionFailed(fmt.Sprintf("credit type %s is not approved for asset %s", creditType, assetTokenID)).
		WithDetails("credit_types", types)
}

func (o *Orchestrator) checkAvailable(ctx context.Context, key Key, qty *big.Int) error {
	sup, err := o.ledger.GetSupply(ctx, key.Producer, key.Verifier, key.CreditType)
	if err != nil {
		return apperrors.PreconditionFailedCause("read supply", err)
	}
	if sup.Available == nil || sup.Available.Cmp(qty) < 0 {
		return apperrors.PreconditionFailed(fmt.Sprintf("available supply %s is below %s", amount.String(sup.Available), qty)).
			WithDetails("available", amount.String(sup.Available))
	}
	return nil
}

func requireFields(ids map[string]string, key Key) error {
	ids["producer"] = key.Producer
	ids["verifier"] = key.Verifier
	ids["creditType"] = key.CreditType
	for name, v := range ids {
		if strings.TrimSpace(v) == "" {
			return apperrors.PreconditionFailed(name + " is required")
		}
	}
	return nil
}

func requirePositive(name string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return apperrors.PreconditionFailed(name + " must be positive")
	}
	return nil
}

func requireNonNegative(name string, v *big.Int) error {
	if v != nil && v.Sign() < 0 {
		return apperrors.PreconditionFailed(name + " must not be negative")
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func (o *Orchestrator) record(kind Kind, accountID string, key Key, qty, price *big.Int, receipt *ledger.Receipt, at time.Time) *CreditRecord {
	if price == nil {
		price = new(big.Int)
	}
	return &CreditRecord{
		Kind:       kind,
		AccountID:  accountID,
		Producer:   key.Producer,
		Verifier:   key.Verifier,
		CreditType: key.CreditType,
		Amount:     amount.Value{Int: qty},
		Price:      amount.Value{Int: price},
		TxHash:     receipt.TxHash,
		CreatedAt:  at,
	}
}

// resolveCertificate resolves the certificate receipt created. An id taken
// from the event is read back so the record carries the ledger's price and
// timestamp, the same fields the projector writes.
func (o *Orchestrator) resolveCertificate(ctx context.Context, receipt *ledger.Receipt, want CertificateMatch) (*ledger.Certificate, Source, error) {
	cert, source, err := o.sequencer.Resolve(ctx, receipt, want)
	if err != nil {
		return nil, "", err
	}
	if source == SourceEvent {
		full, err := o.ledger.GetCertificateByID(ctx, cert.ID)
		if err == nil && full != nil && full.ID != nil && full.ID.Cmp(cert.ID) == 0 {
			cert = full
		}
	}
	return cert, source, nil
}

func certificateRecord(c *ledger.Certificate, txHash string, at time.Time) *projection.CertificateRecord {
	rec := &projection.CertificateRecord{
		ID:         c.ID.String(),
		Recipient:  c.Recipient,
		Producer:   c.Producer,
		Verifier:   c.Verifier,
		CreditType: c.CreditType,
		Balance:    amount.String(c.Balance),
		TxHash:     txHash,
		CreatedAt:  at,
	}
	if c.Price != nil {
		rec.Price = c.Price.String()
	}
	if c.Timestamp != nil {
		rec.Timestamp = c.Timestamp.String()
	}
	return rec
}

func (o *Orchestrator) track(ctx context.Context, op, entityID string, start time.Time, errp *error) {
	outcome := o.stats.Record(op, time.Since(start), *errp)
	fields := map[string]interface{}{
		"operation": op,
		"entity_id": entityID,
		"outcome":   outcome,
	}
	switch outcome {
	case commonservice.OutcomeConfirmed, commonservice.OutcomePrecondition:
		o.logger.WithContext(ctx).WithFields(fields).Debug("credit operation")
	case commonservice.OutcomeDrift:
		o.logger.Warn(ctx, "credit operation committed with projection drift", fields)
	default:
		o.logger.Error(ctx, "credit operation failed", *errp, fields)
	}
}
