package assets

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
)

// State is the lifecycle position of an asset.
type State string

const (
	StateUnsubmitted   State = "unsubmitted"
	StateSubmitted     State = "submitted"
	StateApproved      State = "approved"
	StateDisputed      State = "disputed"
	StateDisputeClosed State = "dispute_closed"
)

// Resolution is the outcome of a dispute.
type Resolution string

const (
	ResolutionPending   Resolution = "pending"
	ResolutionResolved  Resolution = "resolved"
	ResolutionInvalid   Resolution = "invalid"
	ResolutionCancelled Resolution = "cancelled"
)

// Closing reports whether r is a status a dispute can be closed with.
func (r Resolution) Closing() bool {
	switch r {
	case ResolutionResolved, ResolutionInvalid, ResolutionCancelled:
		return true
	}
	return false
}

// ParseResolution maps an API value onto a closing Resolution. Matching is
// case-insensitive; anything else is a PreconditionFailed.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToLower(strings.TrimSpace(s)))
	if r == "canceled" {
		r = ResolutionCancelled
	}
	if !r.Closing() {
		return "", apperrors.PreconditionFailed(fmt.Sprintf("unknown dispute status %q", s)).
			WithDetails("allowed", []string{string(ResolutionResolved), string(ResolutionInvalid), string(ResolutionCancelled)})
	}
	return r, nil
}

// Metadata is off-chain descriptive data supplied at submission.
type Metadata struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Asset is the projection record stored under assets/{id}.
type Asset struct {
	ID           string     `json:"id"`
	SubmissionID string     `json:"submission_id,omitempty"`
	Owner        string     `json:"owner"`
	State        State      `json:"state"`
	Resolution   Resolution `json:"resolution,omitempty"`
	DisputeID    string     `json:"dispute_id,omitempty"`
	CreditTypes  []string   `json:"credit_types,omitempty"`
	SupplyLimits []string   `json:"supply_limits,omitempty"`
	Metadata     *Metadata  `json:"metadata,omitempty"`

	SubmissionTx string `json:"submission_tx,omitempty"`
	ApprovalTx   string `json:"approval_tx,omitempty"`
	DisputeTx    string `json:"dispute_tx,omitempty"`
	CloseTx      string `json:"close_tx,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Dispute is the projection record stored under disputes/{id}.
type Dispute struct {
	ID        string     `json:"id"`
	AssetID   string     `json:"asset_id"`
	AccountID string     `json:"account_id"`
	Reason    string     `json:"reason"`
	Solution  string     `json:"solution,omitempty"`
	Status    Resolution `json:"status"`
	RaiseTx   string     `json:"raise_tx"`
	CloseTx   string     `json:"close_tx,omitempty"`
	ClosedBy  string     `json:"closed_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Closed reports whether the dispute has been resolved.
func (d *Dispute) Closed() bool {
	return d.Status.Closing()
}

// =============================================================================
// Per-account history records
// =============================================================================

type SubmissionRecord struct {
	AssetID      string    `json:"asset_id"`
	SubmissionID string    `json:"submission_id,omitempty"`
	Metadata     *Metadata `json:"metadata,omitempty"`
	TxHash       string    `json:"tx_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type DisputeRecord struct {
	DisputeID string    `json:"dispute_id"`
	AssetID   string    `json:"asset_id"`
	Reason    string    `json:"reason"`
	TxHash    string    `json:"tx_hash"`
	CreatedAt time.Time `json:"created_at"`
}

type ClosedDisputeRecord struct {
	DisputeID string     `json:"dispute_id"`
	AssetID   string     `json:"asset_id"`
	Solution  string     `json:"solution"`
	Status    Resolution `json:"status"`
	TxHash    string     `json:"tx_hash"`
	ClosedAt  time.Time  `json:"closed_at"`
}

type ApprovalRecord struct {
	AssetID      string    `json:"asset_id"`
	CreditTypes  []string  `json:"credit_types"`
	SupplyLimits []string  `json:"supply_limits"`
	TxHash       string    `json:"tx_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// History is everything projected under one account's assets node.
type History struct {
	Submissions    []SubmissionRecord    `json:"submissions"`
	Disputes       []DisputeRecord       `json:"disputes"`
	ClosedDisputes []ClosedDisputeRecord `json:"closed_disputes"`
	Approvals      []ApprovalRecord      `json:"approvals"`
}

// Count is the total number of history records.
func (h *History) Count() int {
	return len(h.Submissions) + len(h.Disputes) + len(h.ClosedDisputes) + len(h.Approvals)
}

// =============================================================================
// Results
// =============================================================================

// Result is returned by every lifecycle transition. On ProjectionDrift it is
// still populated: the transition is final on the ledger.
type Result struct {
	Receipt   *ledger.Receipt `json:"receipt"`
	Confirmed bool            `json:"confirmed"`
	Asset     *Asset          `json:"asset"`
	Dispute   *Dispute        `json:"dispute,omitempty"`
	// Replayed is set when the call matched an earlier transition and nothing
	// was sent to the ledger.
	Replayed bool `json:"replayed,omitempty"`
}
