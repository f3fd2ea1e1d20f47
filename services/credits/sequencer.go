package credits

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/amount"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
)

// ErrUnresolved is returned when neither the receipt nor a follow-up read
// identifies the certificate a transaction created.
var ErrUnresolved = errors.New("certificate id could not be resolved")

// ErrAmbiguous is returned when a follow-up read finds more than one
// unclaimed certificate matching the transaction.
var ErrAmbiguous = errors.New("certificate id is ambiguous")

// Provisional is a best-effort next certificate id, derived from the
// certificate count before a purchase is submitted. Concurrent purchases can
// read the same count, so it is for display and logs only.
type Provisional struct {
	CertificateID amount.Value `json:"certificate_id"`
	BasedOnCount  amount.Value `json:"based_on_count"`
	ReadAt        time.Time    `json:"read_at"`
}

// Source says where an authoritative certificate id came from.
type Source string

const (
	SourceEvent  Source = "event"
	SourceLookup Source = "lookup"
)

// SequencerLedger is the read surface the sequencer needs.
type SequencerLedger interface {
	GetTotalCertificates(ctx context.Context) (*big.Int, error)
	GetAccountCertificates(ctx context.Context, accountID string) ([]*big.Int, error)
	GetCertificateByID(ctx context.Context, id *big.Int) (*ledger.Certificate, error)
}

// CertificateMatch describes the certificate a transaction should have
// created, used to pick it out of a follow-up read.
type CertificateMatch struct {
	Recipient string
	Key       Key
	Balance   *big.Int
	// Floor is the lowest id the certificate can have.
	Floor *big.Int
}

// ClaimChecker reports the transaction a certificate id is already
// projected for. An empty hash means the id is unclaimed.
type ClaimChecker interface {
	ClaimedBy(ctx context.Context, id string) (string, error)
}

// Sequencer estimates certificate ids before submission and resolves the
// ledger-assigned id afterwards.
type Sequencer struct {
	ledger SequencerLedger
	claims ClaimChecker
	now    func() time.Time
}

// NewSequencer creates a Sequencer.
func NewSequencer(l SequencerLedger) *Sequencer {
	return &Sequencer{ledger: l, now: time.Now}
}

// WithClaims makes lookups skip certificates already projected for another
// transaction.
func (s *Sequencer) WithClaims(c ClaimChecker) *Sequencer {
	s.claims = c
	return s
}

// Next returns count+1 as a Provisional.
func (s *Sequencer) Next(ctx context.Context) (*Provisional, error) {
	count, err := s.ledger.GetTotalCertificates(ctx)
	if err != nil {
		return nil, err
	}
	return &Provisional{
		CertificateID: amount.Value{Int: new(big.Int).Add(count, big.NewInt(1))},
		BasedOnCount:  amount.Value{Int: count},
		ReadAt:        s.now().UTC(),
	}, nil
}

// Resolve returns the id the ledger assigned. The CertificateCreated event
// in the receipt wins. Otherwise the recipient's certificates at or above
// want.Floor are read back and matched on key and balance, skipping those
// already claimed by another transaction. More than one remaining match is
// ErrAmbiguous.
func (s *Sequencer) Resolve(ctx context.Context, receipt *ledger.Receipt, want CertificateMatch) (*ledger.Certificate, Source, error) {
	for _, ev := range receipt.Events {
		p, ok := ev.Payload.(ledger.CertificateCreated)
		if !ok || p.CertificateID == nil || !matchesEvent(p, want) {
			continue
		}
		return &ledger.Certificate{
			ID:         p.CertificateID,
			Recipient:  p.AccountID,
			Producer:   p.Producer,
			Verifier:   p.Verifier,
			CreditType: p.CreditType,
			Balance:    p.Balance,
		}, SourceEvent, nil
	}

	ids, err := s.ledger.GetAccountCertificates(ctx, want.Recipient)
	if err != nil {
		return nil, "", fmt.Errorf("follow-up read: %w", err)
	}
	candidates := make([]*big.Int, 0, len(ids))
	for _, id := range ids {
		if id != nil && (want.Floor == nil || id.Cmp(want.Floor) >= 0) {
			candidates = append(candidates, id)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Cmp(candidates[j]) > 0 })

	var found []*ledger.Certificate
	for _, id := range candidates {
		cert, err := s.ledger.GetCertificateByID(ctx, id)
		if err != nil {
			return nil, "", fmt.Errorf("follow-up read of certificate %s: %w", id, err)
		}
		if !matchesCertificate(cert, want) {
			continue
		}
		claimed, err := s.claimedElsewhere(ctx, id, receipt.TxHash)
		if err != nil {
			return nil, "", err
		}
		if !claimed {
			found = append(found, cert)
		}
	}

	switch len(found) {
	case 0:
		return nil, "", fmt.Errorf("%w for %s", ErrUnresolved, receipt.TxHash)
	case 1:
		return found[0], SourceLookup, nil
	}
	matched := make([]string, 0, len(found))
	for _, c := range found {
		matched = append(matched, c.ID.String())
	}
	return nil, "", fmt.Errorf("%w for %s: candidates %v", ErrAmbiguous, receipt.TxHash, matched)
}

func (s *Sequencer) claimedElsewhere(ctx context.Context, id *big.Int, txHash string) (bool, error) {
	if s.claims == nil {
		return false, nil
	}
	by, err := s.claims.ClaimedBy(ctx, id.String())
	if err != nil {
		return false, fmt.Errorf("read claim on certificate %s: %w", id, err)
	}
	return by != "" && by != txHash, nil
}

func matchesEvent(p ledger.CertificateCreated, want CertificateMatch) bool {
	return p.AccountID == want.Recipient &&
		p.Producer == want.Key.Producer &&
		p.Verifier == want.Key.Verifier &&
		p.CreditType == want.Key.CreditType
}

func matchesCertificate(c *ledger.Certificate, want CertificateMatch) bool {
	if c.Recipient != want.Recipient || c.Producer != want.Key.Producer ||
		c.Verifier != want.Key.Verifier || c.CreditType != want.Key.CreditType {
		return false
	}
	return want.Balance == nil || (c.Balance != nil && c.Balance.Cmp(want.Balance) == 0)
}
