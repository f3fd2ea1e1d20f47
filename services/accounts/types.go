package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/amount"
	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
)

// Role is an account role as stored on the ledger.
type Role string

const (
	RoleProducer Role = "producer"
	RoleVerifier Role = "verifier"
	RoleConsumer Role = "consumer"
	RoleAdmin    Role = "admin"
)

var roleAliases = map[string]Role{
	"producer": RoleProducer,
	"farmer":   RoleProducer,
	"verifier": RoleVerifier,
	"consumer": RoleConsumer,
	"buyer":    RoleConsumer,
	"admin":    RoleAdmin,
}

// ParseRole maps s onto a Role, case-insensitively.
func ParseRole(s string) (Role, error) {
	if r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r, nil
	}
	return "", apperrors.PreconditionFailed(fmt.Sprintf("unknown role %q", s)).
		WithDetails("allowed", []Role{RoleProducer, RoleVerifier, RoleConsumer, RoleAdmin})
}

// Queued reports whether registering with r adds a verification-queue entry.
func (r Role) Queued() bool {
	return r == RoleProducer || r == RoleVerifier
}

func (r Role) valid() bool {
	switch r {
	case RoleProducer, RoleVerifier, RoleConsumer, RoleAdmin:
		return true
	}
	return false
}

// RegistrationRecord is set at users/data/{uid}/account/registration.
type RegistrationRecord struct {
	AccountID    string    `json:"account_id"`
	Role         Role      `json:"role"`
	TxAddress    string    `json:"tx_address"`
	TxHash       string    `json:"tx_hash"`
	RegisteredAt time.Time `json:"registered_at"`
}

// BlacklistRecord is set at users/data/{uid}/account/blacklist.
type BlacklistRecord struct {
	Blacklisted bool      `json:"blacklisted"`
	By          string    `json:"by"`
	TxHash      string    `json:"tx_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LastActiveRecord is set at users/data/{uid}/account/lastActive.
type LastActiveRecord struct {
	TxHash    string    `json:"tx_hash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QueueEntry is set at verification/queue/{uid} and deleted once reviewed.
type QueueEntry struct {
	UID      string    `json:"uid"`
	Role     Role      `json:"role"`
	TxHash   string    `json:"tx_hash"`
	QueuedAt time.Time `json:"queued_at"`
}

// Result is returned by every account operation. On ProjectionDrift it is
// still populated.
type Result struct {
	Receipt      *ledger.Receipt     `json:"receipt,omitempty"`
	Confirmed    bool                `json:"confirmed"`
	Registration *RegistrationRecord `json:"registration,omitempty"`
	Blacklist    *BlacklistRecord    `json:"blacklist,omitempty"`
	LastActive   *LastActiveRecord   `json:"last_active,omitempty"`
	Queue        *QueueEntry         `json:"queue,omitempty"`
}

// AccountView is getAccountData rendered for clients.
type AccountView struct {
	AccountID     string       `json:"account_id"`
	Role          string       `json:"role"`
	TxAddress     string       `json:"tx_address"`
	IsBlacklisted bool         `json:"is_blacklisted"`
	LastActive    amount.Value `json:"last_active"`
	Registered    bool         `json:"registered"`
}

func newAccountView(id string, d *ledger.AccountData) *AccountView {
	return &AccountView{
		AccountID:     id,
		Role:          d.Role,
		TxAddress:     d.TxAddress,
		IsBlacklisted: d.IsBlacklisted,
		LastActive:    amount.Value{Int: d.LastActive},
		Registered:    d.Registered,
	}
}
