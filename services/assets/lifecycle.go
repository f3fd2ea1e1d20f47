package assets

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
	commonservice "github.com/NeptuneChain-Inc/NPC-Backend/services/common/service"
)

// Entity types used in reconciliation records.
const (
	entityAsset   = "asset"
	entityDispute = "dispute"
)

// Ledger is the verification contract surface the lifecycle drives.
type Ledger interface {
	SubmitAsset(ctx context.Context, accountID, assetID string) (*ledger.Receipt, error)
	RaiseDispute(ctx context.Context, accountID, assetID, reason string) (*ledger.Receipt, error)
	ResolveDispute(ctx context.Context, accountID string, disputeID *big.Int, solution, status string) (*ledger.Receipt, error)
	ApproveAsset(ctx context.Context, accountID, assetID string, creditTypes []string, limits []*big.Int) (*ledger.Receipt, error)
	CheckTransaction(ctx context.Context, txHash string) (ledger.TxStatus, *ledger.Finality, error)
}

var _ Ledger = (*ledger.Gateway)(nil)

// LifecycleConfig wires a Lifecycle.
type LifecycleConfig struct {
	Ledger    Ledger
	Committer *reconcile.Committer
	Logger    *logging.Logger
	Stats     *commonservice.OperationStats
}

// Lifecycle drives an asset from submission to approval or a closed
// dispute. Every transition commits on the ledger first; the projection
// writes that follow go through the committer, which turns a failure into
// ProjectionDrift.
type Lifecycle struct {
	ledger    Ledger
	committer *reconcile.Committer
	store     projection.Store
	logger    *logging.Logger
	stats     *commonservice.OperationStats
	now       func() time.Time
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(cfg LifecycleConfig) (*Lifecycle, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("assets: ledger is required")
	}
	if cfg.Committer == nil {
		return nil, fmt.Errorf("assets: committer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard("assets")
	}
	if cfg.Stats == nil {
		cfg.Stats = commonservice.NewOperationStats()
	}
	return &Lifecycle{
		ledger:    cfg.Ledger,
		committer: cfg.Committer,
		store:     cfg.Committer.Store(),
		logger:    cfg.Logger,
		stats:     cfg.Stats,
		now:       time.Now,
	}, nil
}

// Stats returns the operation counters.
func (l *Lifecycle) Stats() *commonservice.OperationStats {
	return l.stats
}

// =============================================================================
// Transitions
// =============================================================================

// Submit moves assetID from Unsubmitted to Submitted.
func (l *Lifecycle) Submit(ctx context.Context, accountID, assetID string, meta *Metadata) (res *Result, err error) {
	defer l.track(ctx, "submit", assetID, time.Now(), &err)

	if err := requireIDs(map[string]string{"account_id": accountID, "asset_id": assetID}); err != nil {
		return nil, err
	}
	existing, err := l.loadAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.PreconditionFailed(fmt.Sprintf("asset %s already submitted", assetID)).
			WithDetails("state", existing.State)
	}
	meta = cleanMetadata(meta)

	receipt, err := l.ledger.SubmitAsset(ctx, accountID, assetID)
	if err != nil {
		l.committer.TrackTimeout(ctx, entityAsset, assetID, err)
		return nil, err
	}

	now := l.now().UTC()
	asset := &Asset{
		ID:           assetID,
		SubmissionID: submissionID(receipt),
		Owner:        accountID,
		State:        StateSubmitted,
		Metadata:     meta,
		SubmissionTx: receipt.TxHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	plan := reconcile.NewPlan(entityAsset, assetID, receipt)
	plan.Push(projection.Submissions(accountID), SubmissionRecord{
		AssetID:      assetID,
		SubmissionID: asset.SubmissionID,
		Metadata:     meta,
		TxHash:       receipt.TxHash,
		CreatedAt:    now,
	})
	plan.Set(projection.Asset(assetID), asset)

	res = &Result{Receipt: receipt, Confirmed: true, Asset: asset}
	return res, l.committer.Commit(ctx, plan)
}

// Dispute raises a dispute against a Submitted asset.
func (l *Lifecycle) Dispute(ctx context.Context, accountID, assetID, reason string) (res *Result, err error) {
	defer l.track(ctx, "dispute", assetID, time.Now(), &err)

	if err := requireIDs(map[string]string{"account_id": accountID, "asset_id": assetID}); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.PreconditionFailed("dispute reason is required")
	}
	asset, err := l.requireAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset.State != StateSubmitted {
		return nil, apperrors.PreconditionFailed(fmt.Sprintf("asset %s is %s and cannot be disputed", assetID, asset.State)).
			WithDetails("state", asset.State)
	}

	receipt, err := l.ledger.RaiseDispute(ctx, accountID, assetID, reason)
	if err != nil {
		l.committer.TrackTimeout(ctx, entityDispute, assetID, err)
		return nil, err
	}

	now := l.now().UTC()
	disputeID, idErr := disputeIDFrom(receipt)
	plan := reconcile.NewPlan(entityDispute, assetID, receipt)
	raised := &pendingDispute{AccountID: accountID, Reason: reason, Asset: *asset, RaisedAt: now}
	updated, dispute := raised.records(disputeID, receipt.TxHash)

	if idErr != nil {
		// the dispute exists on the ledger but cannot be keyed yet
		plan.Defer(ResolverDispute, raised, idErr)
	} else {
		raised.plan(plan, disputeID, receipt.TxHash)
	}

	res = &Result{Receipt: receipt, Confirmed: true, Asset: updated, Dispute: dispute}
	return res, l.committer.Commit(ctx, plan)
}

// ResolveDispute closes disputeID with status. Re-closing with the same
// status returns the earlier close without a ledger call; a different status
// is a PreconditionFailed.
func (l *Lifecycle) ResolveDispute(ctx context.Context, accountID, disputeID, solution string, status Resolution) (res *Result, err error) {
	defer l.track(ctx, "resolve_dispute", disputeID, time.Now(), &err)

	if err := requireIDs(map[string]string{"account_id": accountID, "dispute_id": disputeID}); err != nil {
		return nil, err
	}
	if !status.Closing() {
		return nil, apperrors.PreconditionFailed(fmt.Sprintf("unknown dispute status %q", status))
	}
	ledgerID, ok := new(big.Int).SetString(disputeID, 10)
	if !ok || ledgerID.Sign() <= 0 {
		return nil, apperrors.PreconditionFailed(fmt.Sprintf("dispute id %q is not a ledger dispute id", disputeID))
	}

	dispute, err := l.requireDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	asset, err := l.requireAsset(ctx, dispute.AssetID)
	if err != nil {
		return nil, err
	}
	if dispute.Closed() {
		if dispute.Status != status {
			return nil, apperrors.PreconditionFailed(fmt.Sprintf("dispute %s already closed as %s", disputeID, dispute.Status)).
				WithDetails("status", dispute.Status)
		}
		return &Result{
			Receipt:   &ledger.Receipt{TxHash: dispute.CloseTx, Method: ledger.MethodResolveDispute, Confirmed: true},
			Confirmed: true,
			Asset:     asset,
			Dispute:   dispute,
			Replayed:  true,
		}, nil
	}

	receipt, err := l.ledger.ResolveDispute(ctx, accountID, ledgerID, solution, string(status))
	if err != nil {
		l.committer.TrackTimeout(ctx, entityDispute, disputeID, err)
		return nil, err
	}

	now := l.now().UTC()
	closed := *dispute
	closed.Solution = solution
	closed.Status = status
	closed.CloseTx = receipt.TxHash
	closed.ClosedBy = accountID
	closed.ClosedAt = &now

	updated := *asset
	updated.State = StateDisputeClosed
	updated.Resolution = status
	updated.CloseTx = receipt.TxHash
	updated.UpdatedAt = now

	plan := reconcile.NewPlan(entityDispute, disputeID, receipt)
	plan.Push(projection.ClosedDisputes(accountID), ClosedDisputeRecord{
		DisputeID: disputeID,
		AssetID:   dispute.AssetID,
		Solution:  solution,
		Status:    status,
		TxHash:    receipt.TxHash,
		ClosedAt:  now,
	})
	plan.Set(projection.Dispute(disputeID), &closed)
	plan.Set(projection.Asset(dispute.AssetID), &updated)

	res = &Result{Receipt: receipt, Confirmed: true, Asset: &updated, Dispute: &closed}
	return res, l.committer.Commit(ctx, plan)
}

// Approve records the credit types and per-type supply ceilings of a
// Submitted asset.
func (l *Lifecycle) Approve(ctx context.Context, accountID, assetID string, creditTypes []string, limits []*big.Int) (res *Result, err error) {
	defer l.track(ctx, "approve", assetID, time.Now(), &err)

	if err := requireIDs(map[string]string{"account_id": accountID, "asset_id": assetID}); err != nil {
		return nil, err
	}
	if err := validateApproval(creditTypes, limits); err != nil {
		return nil, err
	}
	asset, err := l.requireAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset.State != StateSubmitted {
		return nil, apperrors.PreconditionFailed(fmt.Sprintf("asset %s is %s and cannot be approved", assetID, asset.State)).
			WithDetails("state", asset.State)
	}

	receipt, err := l.ledger.ApproveAsset(ctx, accountID, assetID, creditTypes, limits)
	if err != nil {
		l.committer.TrackTimeout(ctx, entityAsset, assetID, err)
		return nil, err
	}

	now := l.now().UTC()
	limitStrings := make([]string, len(limits))
	for i, v := range limits {
		limitStrings[i] = v.String()
	}

	updated := *asset
	updated.State = StateApproved
	updated.CreditTypes = append([]string(nil), creditTypes...)
	updated.SupplyLimits = limitStrings
	updated.ApprovalTx = receipt.TxHash
	updated.UpdatedAt = now

	plan := reconcile.NewPlan(entityAsset, assetID, receipt)
	plan.Push(projection.Approvals(accountID), ApprovalRecord{
		AssetID:      assetID,
		CreditTypes:  updated.CreditTypes,
		SupplyLimits: limitStrings,
		TxHash:       receipt.TxHash,
		CreatedAt:    now,
	})
	plan.Set(projection.Asset(assetID), &updated)

	res = &Result{Receipt: receipt, Confirmed: true, Asset: &updated}
	return res, l.committer.Commit(ctx, plan)
}

// =============================================================================
// Reads
// =============================================================================

// GetAsset reads the projected asset record.
func (l *Lifecycle) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	asset, err := l.loadAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, apperrors.NotFound("asset", assetID)
	}
	return asset, nil
}

// GetDispute reads the projected dispute record.
func (l *Lifecycle) GetDispute(ctx context.Context, disputeID string) (*Dispute, error) {
	var d Dispute
	if err := projection.GetInto(ctx, l.store, projection.Dispute(disputeID), &d); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, apperrors.NotFound("dispute", disputeID)
		}
		return nil, apperrors.Upstream("projection", err)
	}
	return &d, nil
}

// History lists the asset records projected under accountID.
func (l *Lifecycle) History(ctx context.Context, accountID string) (*History, error) {
	h := &History{
		Submissions:    []SubmissionRecord{},
		Disputes:       []DisputeRecord{},
		ClosedDisputes: []ClosedDisputeRecord{},
		Approvals:      []ApprovalRecord{},
	}
	if err := listInto(ctx, l.store, projection.Submissions(accountID), &h.Submissions); err != nil {
		return nil, err
	}
	if err := listInto(ctx, l.store, projection.Disputes(accountID), &h.Disputes); err != nil {
		return nil, err
	}
	if err := listInto(ctx, l.store, projection.ClosedDisputes(accountID), &h.ClosedDisputes); err != nil {
		return nil, err
	}
	if err := listInto(ctx, l.store, projection.Approvals(accountID), &h.Approvals); err != nil {
		return nil, err
	}
	return h, nil
}

func listInto[T any](ctx context.Context, store projection.Store, path string, out *[]T) error {
	entries, err := store.List(ctx, path)
	if err != nil {
		return apperrors.Upstream("projection", err)
	}
	for _, e := range entries {
		var v T
		if err := e.Decode(&v); err != nil {
			return apperrors.Upstream("projection", fmt.Errorf("decode %s/%s: %w", path, e.Key, err))
		}
		*out = append(*out, v)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func (l *Lifecycle) loadAsset(ctx context.Context, assetID string) (*Asset, error) {
	var a Asset
	if err := projection.GetInto(ctx, l.store, projection.Asset(assetID), &a); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.Upstream("projection", err)
	}
	return &a, nil
}

func (l *Lifecycle) requireAsset(ctx context.Context, assetID string) (*Asset, error) {
	asset, err := l.loadAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, apperrors.PreconditionFailed(fmt.Sprintf("asset %s has not been submitted", assetID)).
			WithDetails("state", StateUnsubmitted)
	}
	return asset, nil
}

func (l *Lifecycle) requireDispute(ctx context.Context, disputeID string) (*Dispute, error) {
	d, err := l.GetDispute(ctx, disputeID)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.PreconditionFailed(fmt.Sprintf("dispute %s is not known", disputeID))
	}
	return d, err
}

func (l *Lifecycle) track(ctx context.Context, op, entityID string, start time.Time, errp *error) {
	outcome := l.stats.Record(op, time.Since(start), *errp)
	fields := map[string]interface{}{
		"operation": op,
		"entity_id": entityID,
		"outcome":   outcome,
	}
	switch outcome {
	case commonservice.OutcomeConfirmed, commonservice.OutcomePrecondition:
		l.logger.WithContext(ctx).WithFields(fields).Debug("asset transition")
	case commonservice.OutcomeDrift:
		l.logger.Warn(ctx, "asset transition committed with projection drift", fields)
	default:
		l.logger.Error(ctx, "asset transition failed", *errp, fields)
	}
}

func requireIDs(ids map[string]string) error {
	for name, v := range ids {
		if strings.TrimSpace(v) == "" {
			return apperrors.PreconditionFailed(name + " is required")
		}
	}
	return nil
}

func validateApproval(creditTypes []string, limits []*big.Int) error {
	if len(creditTypes) == 0 {
		return apperrors.PreconditionFailed("at least one credit type is required")
	}
	if len(creditTypes) != len(limits) {
		return apperrors.PreconditionFailed(fmt.Sprintf("%d credit types but %d supply limits", len(creditTypes), len(limits)))
	}
	seen := make(map[string]bool, len(creditTypes))
	for i, t := range creditTypes {
		if strings.TrimSpace(t) == "" {
			return apperrors.PreconditionFailed(fmt.Sprintf("credit type %d is empty", i))
		}
		if seen[t] {
			return apperrors.PreconditionFailed(fmt.Sprintf("credit type %s listed twice", t))
		}
		seen[t] = true
		if limits[i] == nil || limits[i].Sign() <= 0 {
			return apperrors.PreconditionFailed(fmt.Sprintf("supply limit for %s must be positive", t))
		}
	}
	return nil
}

func cleanMetadata(meta *Metadata) *Metadata {
	if meta == nil {
		return nil
	}
	out := &Metadata{
		Name:        strings.TrimSpace(meta.Name),
		Description: strings.TrimSpace(meta.Description),
	}
	for _, t := range meta.Tags {
		if t = strings.TrimSpace(t); t != "" {
			out.Tags = append(out.Tags, t)
		}
	}
	if out.Name == "" && out.Description == "" && len(out.Tags) == 0 {
		return nil
	}
	return out
}

func submissionID(receipt *ledger.Receipt) string {
	if ev, ok := receipt.FindEvent(ledger.EventAssetSubmitted); ok {
		if p, ok := ev.Payload.(ledger.AssetSubmitted); ok && p.ID != nil {
			return p.ID.String()
		}
	}
	if id, err := stackInteger(receipt); err == nil {
		return id.String()
	}
	return ""
}

// disputeIDFrom takes the ledger-assigned id from DisputeRaised, falling
// back to the invocation result.
func disputeIDFrom(receipt *ledger.Receipt) (string, error) {
	if ev, ok := receipt.FindEvent(ledger.EventDisputeRaised); ok {
		if p, ok := ev.Payload.(ledger.DisputeRaised); ok && p.DisputeID != nil {
			return p.DisputeID.String(), nil
		}
	}
	id, err := stackInteger(receipt)
	if err != nil {
		return "", fmt.Errorf("dispute id not found in %s: %w", receipt.TxHash, err)
	}
	return id.String(), nil
}

func stackInteger(receipt *ledger.Receipt) (*big.Int, error) {
	item, err := chain.FirstStackItem(receipt.Stack)
	if err != nil {
		return nil, err
	}
	return chain.ParseInteger(item)
}
