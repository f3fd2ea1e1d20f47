package credits

import (
	"math/big"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/amount"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
)

// Kind names the credit operation a record belongs to.
type Kind string

const (
	KindIssue    Kind = "issue"
	KindBuy      Kind = "buy"
	KindTransfer Kind = "transfer"
	KindDonate   Kind = "donate"
)

// CreditRecord is pushed under users/data/{uid}/credits/{kind}. One record
// is written per affected account per operation.
type CreditRecord struct {
	Kind          Kind         `json:"kind"`
	AccountID     string       `json:"account_id"`
	Counterparty  string       `json:"counterparty,omitempty"`
	AssetTokenID  string       `json:"asset_token_id,omitempty"`
	Producer      string       `json:"producer"`
	Verifier      string       `json:"verifier"`
	CreditType    string       `json:"creditType"`
	Amount        amount.Value `json:"amount"`
	Price         amount.Value `json:"price"`
	CertificateID string       `json:"certificate_id,omitempty"`
	TxHash        string       `json:"tx_hash"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Result is returned by every credit operation. On ProjectionDrift it is
// still populated: the operation is final on the ledger.
type Result struct {
	Receipt     *ledger.Receipt               `json:"receipt"`
	Confirmed   bool                          `json:"confirmed"`
	Record      *CreditRecord                 `json:"record"`
	Certificate *projection.CertificateRecord `json:"certificate,omitempty"`
	// Provisional is the advisory id read before a purchase. Certificate.ID
	// is the one the ledger assigned.
	Provisional *Provisional `json:"provisional,omitempty"`
}

// Key identifies a supply line.
type Key struct {
	Producer   string `json:"producer"`
	Verifier   string `json:"verifier"`
	CreditType string `json:"creditType"`
}

// =============================================================================
// Read views
// =============================================================================

// SupplyView is getSupply rendered losslessly.
type SupplyView struct {
	Key
	Issued    amount.Value `json:"issued"`
	Available amount.Value `json:"available"`
	Donated   amount.Value `json:"donated"`
	Sold      amount.Value `json:"sold"`
}

func newSupplyView(k Key, s *ledger.Supply) *SupplyView {
	return &SupplyView{
		Key:       k,
		Issued:    amount.Value{Int: s.Issued},
		Available: amount.Value{Int: s.Available},
		Donated:   amount.Value{Int: s.Donated},
		Sold:      amount.Value{Int: s.Sold()},
	}
}

// CertificateView is getCertificateById rendered losslessly.
type CertificateView struct {
	ID         amount.Value `json:"id"`
	Recipient  string       `json:"recipient"`
	Producer   string       `json:"producer"`
	Verifier   string       `json:"verifier"`
	CreditType string       `json:"creditType"`
	Balance    amount.Value `json:"balance"`
	Price      amount.Value `json:"price"`
	Timestamp  amount.Value `json:"timestamp"`
}

func newCertificateView(c *ledger.Certificate) *CertificateView {
	return &CertificateView{
		ID:         amount.Value{Int: c.ID},
		Recipient:  c.Recipient,
		Producer:   c.Producer,
		Verifier:   c.Verifier,
		CreditType: c.CreditType,
		Balance:    amount.Value{Int: c.Balance},
		Price:      amount.Value{Int: c.Price},
		Timestamp:  amount.Value{Int: c.Timestamp},
	}
}

func values(ints []*big.Int) []amount.Value {
	out := make([]amount.Value, len(ints))
	for i, v := range ints {
		out[i] = amount.Value{Int: v}
	}
	return out
}
