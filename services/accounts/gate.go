package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/identity"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
	commonservice "github.com/NeptuneChain-Inc/NPC-Backend/services/common/service"
)

const entityAccount = "account"

// Ledger is the account manager contract surface.
type Ledger interface {
	RegisterAccount(ctx context.Context, accountID, role, txAddress string) (*ledger.Receipt, error)
	BlacklistAccount(ctx context.Context, accountID string, status bool) (*ledger.Receipt, error)
	UpdateLastActive(ctx context.Context, accountID string) (*ledger.Receipt, error)
	VerifyRole(ctx context.Context, accountID, role string) (bool, error)
	IsRegistered(ctx context.Context, accountID string) (bool, error)
	IsNotBlacklisted(ctx context.Context, accountID string) (bool, error)
	GetAccountData(ctx context.Context, accountID string) (*ledger.AccountData, error)
}

var _ Ledger = (*ledger.Gateway)(nil)

// GateConfig wires a Gate.
type GateConfig struct {
	Ledger    Ledger
	Identity  identity.Verifier
	Committer *reconcile.Committer
	Logger    *logging.Logger
	Stats     *commonservice.OperationStats
}

// Gate admits accounts onto the ledger and maintains their projected
// registration, blacklist and last-active records.
type Gate struct {
	ledger    Ledger
	identity  identity.Verifier
	committer *reconcile.Committer
	store     projection.Store
	logger    *logging.Logger
	stats     *commonservice.OperationStats
	now       func() time.Time
}

// NewGate creates a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("accounts: ledger is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("accounts: identity verifier is required")
	}
	if cfg.Committer == nil {
		return nil, fmt.Errorf("accounts: committer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard("accounts")
	}
	if cfg.Stats == nil {
		cfg.Stats = commonservice.NewOperationStats()
	}
	return &Gate{
		ledger:    cfg.Ledger,
		identity:  cfg.Identity,
		committer: cfg.Committer,
		store:     cfg.Committer.Store(),
		logger:    cfg.Logger,
		stats:     cfg.Stats,
		now:       time.Now,
	}, nil
}

// Stats returns the operation counters.
func (g *Gate) Stats() *commonservice.OperationStats {
	return g.stats
}

// Register admits accountID with role. The identity provider must report
// the account verified, and the projection must show it neither queued,
// registered nor blacklisted. Producers and verifiers are queued for review.
func (g *Gate) Register(ctx context.Context, accountID string, role Role, txAddress string) (res *Result, err error) {
	defer g.track(ctx, "register", accountID, time.Now(), &err)

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, apperrors.PreconditionFailed("account_id is required")
	}
	if !role.valid() {
		return nil, apperrors.PreconditionFailed(fmt.Sprintf("unknown role %q", role))
	}
	addr, err := chain.NormalizeAddress(txAddress)
	if err != nil {
		return nil, apperrors.PreconditionFailedCause("tx_address is not a ledger address", err)
	}
	if err := g.checkAdmissible(ctx, accountID); err != nil {
		return nil, err
	}

	receipt, err := g.ledger.RegisterAccount(ctx, accountID, string(role), addr)
	if err != nil {
		g.committer.TrackTimeout(ctx, entityAccount, accountID, err)
		return nil, err
	}

	now := g.now().UTC()
	reg := &RegistrationRecord{
		AccountID:    accountID,
		Role:         role,
		TxAddress:    addr,
		TxHash:       receipt.TxHash,
		RegisteredAt: now,
	}
	res = &Result{Receipt: receipt, Confirmed: true, Registration: reg}

	plan := reconcile.NewPlan(entityAccount, accountID, receipt)
	plan.Set(projection.Registration(accountID), reg)
	if role.Queued() {
		res.Queue = &QueueEntry{UID: accountID, Role: role, TxHash: receipt.TxHash, QueuedAt: now}
		plan.Set(projection.VerificationQueue(accountID), res.Queue)
	}
	return res, g.committer.Commit(ctx, plan)
}

func (g *Gate) checkAdmissible(ctx context.Context, accountID string) error {
	verified, err := g.identity.IsEmailVerified(ctx, accountID)
	if err != nil {
		return err
	}
	if !verified {
		return apperrors.PreconditionFailed(fmt.Sprintf("identity of %s is not verified", accountID)).
			WithDetails("check", "identity")
	}

	queued, err := projection.Exists(ctx, g.store, projection.VerificationQueue(accountID))
	if err != nil {
		return apperrors.Upstream("projection", err)
	}
	if queued {
		return apperrors.PreconditionFailed(fmt.Sprintf("%s is already awaiting verification", accountID)).
			WithDetails("check", "queue")
	}

	registered, err := projection.Exists(ctx, g.store, projection.Registration(accountID))
	if err != nil {
		return apperrors.Upstream("projection", err)
	}
	if registered {
		return apperrors.PreconditionFailed(fmt.Sprintf("%s is already registered", accountID)).
			WithDetails("check", "registration")
	}

	bl, err := g.loadBlacklist(ctx, accountID)
	if err != nil {
		return err
	}
	if bl != nil && bl.Blacklisted {
		return apperrors.PreconditionFailed(fmt.Sprintf("%s is blacklisted", accountID)).
			WithDetails("check", "blacklist")
	}
	return nil
}

// Blacklist sets or clears the blacklist flag of a registered account.
func (g *Gate) Blacklist(ctx context.Context, actorID, accountID string, status bool) (res *Result, err error) {
	defer g.track(ctx, "blacklist", accountID, time.Now(), &err)

	if err := g.requireRegistered(ctx, accountID); err != nil {
		return nil, err
	}

	receipt, err := g.ledger.BlacklistAccount(ctx, accountID, status)
	if err != nil {
		g.committer.TrackTimeout(ctx, entityAccount, accountID, err)
		return nil, err
	}

	rec := &BlacklistRecord{Blacklisted: status, By: actorID, TxHash: receipt.TxHash, UpdatedAt: g.now().UTC()}
	plan := reconcile.NewPlan(entityAccount, accountID, receipt)
	plan.Set(projection.Blacklist(accountID), rec)

	res = &Result{Receipt: receipt, Confirmed: true, Blacklist: rec}
	return res, g.committer.Commit(ctx, plan)
}

// UpdateLastActive stamps accountID active on the ledger.
func (g *Gate) UpdateLastActive(ctx context.Context, accountID string) (res *Result, err error) {
	defer g.track(ctx, "update_last_active", accountID, time.Now(), &err)

	if err := g.requireRegistered(ctx, accountID); err != nil {
		return nil, err
	}

	receipt, err := g.ledger.UpdateLastActive(ctx, accountID)
	if err != nil {
		g.committer.TrackTimeout(ctx, entityAccount, accountID, err)
		return nil, err
	}

	rec := &LastActiveRecord{TxHash: receipt.TxHash, UpdatedAt: g.now().UTC()}
	plan := reconcile.NewPlan(entityAccount, accountID, receipt)
	plan.Set(projection.LastActive(accountID), rec)

	res = &Result{Receipt: receipt, Confirmed: true, LastActive: rec}
	return res, g.committer.Commit(ctx, plan)
}

// Dequeue removes accountID's verification-queue entry once reviewed. It
// touches only the projection.
func (g *Gate) Dequeue(ctx context.Context, accountID string) (*QueueEntry, error) {
	var entry QueueEntry
	path := projection.VerificationQueue(accountID)
	if err := projection.GetInto(ctx, g.store, path, &entry); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, apperrors.NotFound("verification queue entry", accountID)
		}
		return nil, apperrors.Upstream("projection", err)
	}
	if err := g.store.Delete(ctx, path); err != nil {
		return nil, apperrors.Upstream("projection", err)
	}
	g.logger.Info(ctx, "verification queue entry removed", map[string]interface{}{
		"account_id": accountID,
		"role":       entry.Role,
	})
	return &entry, nil
}

// =============================================================================
// Reads
// =============================================================================

// Queue lists the accounts awaiting verification, ordered by uid.
func (g *Gate) Queue(ctx context.Context) ([]QueueEntry, error) {
	entries, err := g.store.List(ctx, projection.VerificationQueueRoot())
	if err != nil {
		return nil, apperrors.Upstream("projection", err)
	}
	out := make([]QueueEntry, 0, len(entries))
	for _, e := range entries {
		var q QueueEntry
		if err := e.Decode(&q); err != nil {
			return nil, apperrors.Upstream("projection", fmt.Errorf("decode queue entry %s: %w", e.Key, err))
		}
		out = append(out, q)
	}
	return out, nil
}

// GetRegistration reads the projected registration record.
func (g *Gate) GetRegistration(ctx context.Context, accountID string) (*RegistrationRecord, error) {
	var reg RegistrationRecord
	if err := projection.GetInto(ctx, g.store, projection.Registration(accountID), &reg); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, apperrors.NotFound("registration", accountID)
		}
		return nil, apperrors.Upstream("projection", err)
	}
	return &reg, nil
}

// GetAccount reads the ledger account tuple.
func (g *Gate) GetAccount(ctx context.Context, accountID string) (*AccountView, error) {
	data, err := g.ledger.GetAccountData(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return newAccountView(accountID, data), nil
}

func (g *Gate) VerifyRole(ctx context.Context, accountID string, role Role) (bool, error) {
	return g.ledger.VerifyRole(ctx, accountID, string(role))
}

func (g *Gate) IsRegistered(ctx context.Context, accountID string) (bool, error) {
	return g.ledger.IsRegistered(ctx, accountID)
}

func (g *Gate) IsNotBlacklisted(ctx context.Context, accountID string) (bool, error) {
	return g.ledger.IsNotBlacklisted(ctx, accountID)
}

// =============================================================================
// Helpers
// =============================================================================

func (g *Gate) requireRegistered(ctx context.Context, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return apperrors.PreconditionFailed("account_id is required")
	}
	ok, err := g.ledger.IsRegistered(ctx, accountID)
	if err != nil {
		return apperrors.PreconditionFailedCause("read registration", err)
	}
	if !ok {
		return apperrors.PreconditionFailed(fmt.Sprintf("%s is not registered", accountID))
	}
	return nil
}

func (g *Gate) loadBlacklist(ctx context.Context, accountID string) (*BlacklistRecord, error) {
	var rec BlacklistRecord
	if err := projection.GetInto(ctx, g.store, projection.Blacklist(accountID), &rec); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.Upstream("projection", err)
	}
	return &rec, nil
}

func (g *Gate) track(ctx context.Context, op, accountID string, start time.Time, errp *error) {
	outcome := g.stats.Record(op, time.Since(start), *errp)
	fields := map[string]interface{}{
		"operation":  op,
		"account_id": accountID,
		"outcome":    outcome,
	}
	switch outcome {
	case commonservice.OutcomeConfirmed:
		g.logger.Info(ctx, "account operation", fields)
	case commonservice.OutcomePrecondition:
		g.logger.LogSecurityEvent(ctx, "account_precondition_failed", fields)
	case commonservice.OutcomeDrift:
		g.logger.Warn(ctx, "account operation committed with projection drift", fields)
	default:
		g.logger.Error(ctx, "account operation failed", *errp, fields)
	}
}
