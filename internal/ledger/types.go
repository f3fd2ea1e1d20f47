// Package ledger executes NeptuneChain contract calls, waits for finality and
// decodes contract notifications into typed events.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
)

// ContractName identifies one of the three NeptuneChain contracts.
type ContractName string

const (
	ContractAccounts     ContractName = "accounts"
	ContractVerification ContractName = "verification"
	ContractCredits      ContractName = "credits"
)

// Call is a single contract invocation.
type Call struct {
	Contract ContractName
	Method   string
	Args     []chain.ContractParam
}

func (c Call) String() string {
	return fmt.Sprintf("%s.%s", c.Contract, c.Method)
}

// Finality is what a backend observed for a transaction that reached a block.
type Finality struct {
	TxHash     string
	VMState    string
	Exception  string
	BlockIndex uint64
	Stack      []chain.StackItem
	Events     []Event
}

// Faulted reports whether execution ended in FAULT.
func (f *Finality) Faulted() bool {
	return f != nil && f.VMState != chain.VMStateHalt
}

// Receipt renders a halted finality as the receipt of method.
func (f *Finality) Receipt(method string, at time.Time) *Receipt {
	return &Receipt{
		TxHash:      f.TxHash,
		Method:      method,
		BlockIndex:  f.BlockIndex,
		Confirmed:   !f.Faulted(),
		ConfirmedAt: at,
		Events:      f.Events,
		Stack:       f.Stack,
	}
}

// Receipt is returned for every confirmed mutating call.
type Receipt struct {
	TxHash      string            `json:"tx_hash"`
	Method      string            `json:"method"`
	BlockIndex  uint64            `json:"block_index"`
	Confirmed   bool              `json:"confirmed"`
	ConfirmedAt time.Time         `json:"confirmed_at"`
	Events      []Event           `json:"events,omitempty"`
	Stack       []chain.StackItem `json:"-"`
}

// FindEvent returns the first event named name, if any.
func (r *Receipt) FindEvent(name string) (Event, bool) {
	if r == nil {
		return Event{}, false
	}
	for _, ev := range r.Events {
		if ev.Name == name {
			return ev, true
		}
	}
	return Event{}, false
}

// TxStatus is the outcome of re-checking a transaction after the fact.
type TxStatus string

const (
	TxUnknown TxStatus = "unknown"
	TxLanded  TxStatus = "landed"
	TxFaulted TxStatus = "faulted"
)

// ErrTxUnknown is returned by Backend.Lookup while a transaction has not
// been observed in a block.
var ErrTxUnknown = errors.New("transaction not yet known to the ledger")

// RejectedError marks a call the ledger refused before or at broadcast.
type RejectedError struct {
	Method string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Method, e.Reason)
}

// IsRejected reports whether err carries a *RejectedError.
func IsRejected(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej)
}

// Backend is the ledger transport.
//
// Submit preflights and broadcasts a call. A non-empty hash with an error
// means the transaction may have been broadcast. Lookup returns ErrTxUnknown
// until the transaction lands. Query runs a read-only invocation.
type Backend interface {
	Submit(ctx context.Context, call Call) (string, error)
	Lookup(ctx context.Context, txHash string) (*Finality, error)
	Query(ctx context.Context, call Call) ([]chain.StackItem, error)
}

// BlockSource is what the polling subscriber scans.
type BlockSource interface {
	BlockCount(ctx context.Context) (uint64, error)
	BlockEvents(ctx context.Context, index uint64) ([]Event, error)
}

// StreamSource delivers live events without block cursors.
type StreamSource interface {
	StreamEvents(ctx context.Context, out chan<- Event) error
}

// =============================================================================
// Read Models
// =============================================================================

// AccountData is the getAccountData tuple.
type AccountData struct {
	Role          string
	TxAddress     string
	IsBlacklisted bool
	LastActive    *big.Int
	Registered    bool
}

// Supply is the getSupply tuple for one (producer, verifier, creditType).
type Supply struct {
	Issued    *big.Int
	Available *big.Int
	Donated   *big.Int
}

// Sold is issued - available - donated.
func (s *Supply) Sold() *big.Int {
	out := new(big.Int).Set(s.Issued)
	out.Sub(out, s.Available)
	return out.Sub(out, s.Donated)
}

// Certificate is the getCertificateById tuple.
type Certificate struct {
	ID         *big.Int
	Recipient  string
	Producer   string
	Verifier   string
	CreditType string
	Balance    *big.Int
	Price      *big.Int
	Timestamp  *big.Int
}
