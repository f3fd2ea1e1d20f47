// Package reconcile surfaces and repairs divergence between the ledger and
// the projection store.
//
// A ledger transaction that succeeds while its paired projection writes fail
// produces a drift record carrying the writes that did not land, plus a
// deferred target when some writes could not even be planned. A
// transaction whose finality was not observed produces a timeout record.
// Audits that find projection values disagreeing with the ledger produce
// inconsistency records, which are never auto-corrected.
package reconcile

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a reconciliation record.
type Kind string

const (
	KindDrift        Kind = "drift"
	KindTimeout      Kind = "timeout"
	KindInconsistent Kind = "inconsistent"
)

// Status is where a record is in the repair flow.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRepaired    Status = "repaired"
	StatusDiscarded   Status = "discarded"
	StatusNeedsReview Status = "needs_review"
	StatusFailed      Status = "failed"
)

// Write operations.
const (
	OpSet    = "set"
	OpPush   = "push"
	OpDelete = "delete"
)

// Write is one intended projection write. Push writes carry the child key
// assigned when the write was planned, so replaying them is idempotent.
type Write struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Target returns the path the write lands on.
func (w Write) Target() string {
	if w.Op == OpPush {
		return w.Path + "/" + w.Key
	}
	return w.Path
}

// Deferred marks a drift record whose writes are incomplete: the plan could
// not build some of them, usually because a ledger-assigned id was not known.
// Resolver names the component that can finish them from Target. A record
// with no resolver can only be finished by an operator.
type Deferred struct {
	Resolver string          `json:"resolver,omitempty"`
	Target   json.RawMessage `json:"target,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// Record is a reconciliation entry.
type Record struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Status     Status    `json:"status"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id,omitempty"`
	Method     string    `json:"method,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Writes     []Write   `json:"writes,omitempty"`
	Deferred   *Deferred `json:"deferred,omitempty"`
	Error      string    `json:"error,omitempty"`
	Ledger     string    `json:"ledger,omitempty"`
	Projection string    `json:"projection,omitempty"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewRecord returns a pending record with a time-ordered id.
func NewRecord(kind Kind, entityType, entityID string) Record {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	now := time.Now().UTC()
	return Record{
		ID:         id.String(),
		Kind:       kind,
		Status:     StatusPending,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
