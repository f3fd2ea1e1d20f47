package projection

import (
	"net/url"
	"strings"
)

// Root prefixes every projection path.
const Root = "neptunechain"

// Credit record kinds under users/data/{uid}/credits.
const (
	CreditsIssued      = "issued"
	CreditsPurchased   = "purchased"
	CreditsTransferred = "transferred"
	CreditsReceived    = "received"
	CreditsDonated     = "donated"
)

// Join builds a rooted path. Each segment is escaped so identifiers may
// contain slashes.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, Root)
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}

// join appends raw, already-safe segments to a rooted base.
func join(base string, raw ...string) string {
	return base + "/" + strings.Join(raw, "/")
}

func userData(uid string) string {
	return Join("users", "data", uid)
}

func Submissions(uid string) string { return join(userData(uid), "assets", "submissions") }
func Disputes(uid string) string { return join(userData(uid), "assets", "disputes") }
func ClosedDisputes(uid string) string { return join(userData(uid), "assets", "disputes", "closed") }
func Approvals(uid string) string { return join(userData(uid), "assets", "approvals") }

// Credits is the per-account credit history for kind.
func Credits(uid, kind string) string {
	return join(userData(uid), "credits", url.PathEscape(kind))
}

func Registration(uid string) string { return join(userData(uid), "account", "registration") }
func Blacklist(uid string) string { return join(userData(uid), "account", "blacklist") }
func LastActive(uid string) string { return join(userData(uid), "account", "lastActive") }

// VerificationQueueRoot is the parent of every verification-queue entry.
func VerificationQueueRoot() string { return Join("verification", "queue") }
func VerificationQueue(uid string) string { return Join("verification", "queue", uid) }

func Asset(assetID string) string { return Join("assets", assetID) }
func Dispute(disputeID string) string { return Join("disputes", disputeID) }

// Certificates is the parent of every certificate record.
func Certificates() string { return Join("certificates") }
func Certificate(id string) string { return Join("certificates", id) }

func Supply(producer, verifier, creditType string) string {
	return Join("supply", producer, verifier, creditType)
}

// EventLogRoot is the parent of every per-event log.
func EventLogRoot() string { return Join("ledger", "events") }
func EventLog(eventName string) string { return Join("ledger", "events", eventName) }

func Cursor() string { return Join("ledger", "cursor") }

// ReconciliationRecords is the parent of every reconciliation record.
func ReconciliationRecords() string { return Join("reconciliation", "records") }
func ReconciliationRecord(id string) string { return Join("reconciliation", "records", id) }

// SupplyKeys indexes every supply record the projector has written.
func SupplyKeys() string { return Join("ledger", "supply-keys") }

// SupplyKey is the index entry for one supply record.
func SupplyKey(producer, verifier, creditType string) string {
	key := url.QueryEscape(producer) + "," + url.QueryEscape(verifier) + "," + url.QueryEscape(creditType)
	return join(SupplyKeys(), key)
}
