package projection

import "time"

// Records shared by the projector, the orchestrators and the auditor.
// Ledger integers are carried as decimal strings.

// SupplyRecord mirrors getSupply for one (producer, verifier, creditType).
type SupplyRecord struct {
	Producer   string    `json:"producer"`
	Verifier   string    `json:"verifier"`
	CreditType string    `json:"creditType"`
	Issued     string    `json:"issued"`
	Available  string    `json:"available"`
	Donated    string    `json:"donated"`
	Sold       string    `json:"sold"`
	TxHash     string    `json:"tx_hash"`
	Block      uint64    `json:"block"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CertificateRecord is stored under certificates/{id}, keyed by the
// ledger-assigned identifier.
type CertificateRecord struct {
	ID         string    `json:"id"`
	Recipient  string    `json:"recipient"`
	Producer   string    `json:"producer"`
	Verifier   string    `json:"verifier"`
	CreditType string    `json:"creditType"`
	Balance    string    `json:"balance"`
	Price      string    `json:"price,omitempty"`
	Timestamp  string    `json:"timestamp,omitempty"`
	TxHash     string    `json:"tx_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventRecord is one entry of a ledger event log.
type EventRecord struct {
	Name     string                 `json:"name"`
	Contract string                 `json:"contract"`
	TxHash   string                 `json:"tx_hash"`
	Block    uint64                 `json:"block"`
	Data     map[string]interface{} `json:"data"`
	Recorded time.Time              `json:"recorded_at"`
}

// CursorRecord is the subscriber's next block to scan.
type CursorRecord struct {
	NextBlock uint64    `json:"next_block"`
	UpdatedAt time.Time `json:"updated_at"`
}
