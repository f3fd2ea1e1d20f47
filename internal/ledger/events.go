package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
)

// Contract notification names.
const (
	EventAccountRegistered  = "AccountRegistered"
	EventAccountBlacklisted = "AccountBlacklisted"
	EventAssetSubmitted     = "AssetSubmitted"
	EventAssetVerified      = "AssetVerified"
	EventDisputeRaised      = "DisputeRaised"
	EventDisputeResolved    = "DisputeResolved"
	EventCreditsIssued      = "CreditsIssued"
	EventCreditsBought      = "CreditsBought"
	EventCreditsTransferred = "CreditsTransferred"
	EventCreditsDonated     = "CreditsDonated"
	EventCertificateCreated = "CertificateCreated"
)

// CreditEvents are the events mirrored into the projection event log.
var CreditEvents = []string{
	EventCreditsIssued,
	EventCreditsBought,
	EventCreditsTransferred,
	EventCreditsDonated,
	EventCertificateCreated,
}

var knownEvents = map[string]bool{
	EventAccountRegistered:  true,
	EventAccountBlacklisted: true,
	EventAssetSubmitted:     true,
	EventAssetVerified:      true,
	EventDisputeRaised:      true,
	EventDisputeResolved:    true,
	EventCreditsIssued:      true,
	EventCreditsBought:      true,
	EventCreditsTransferred: true,
	EventCreditsDonated:     true,
	EventCertificateCreated: true,
}

// IsCreditEvent reports whether name is one of CreditEvents.
func IsCreditEvent(name string) bool {
	for _, n := range CreditEvents {
		if n == name {
			return true
		}
	}
	return false
}

// Payload is the typed state of a notification.
type Payload interface {
	EventName() string
	// Fields renders the payload for projections; integers become decimal strings.
	Fields() map[string]interface{}
}

// Event is a decoded contract notification.
type Event struct {
	Name     string
	Contract ContractName
	TxHash   string
	Block    uint64
	Payload  Payload
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"name":     e.Name,
		"contract": e.Contract,
		"tx_hash":  e.TxHash,
		"block":    e.Block,
	}
	if e.Payload != nil {
		out["data"] = e.Payload.Fields()
	}
	return json.Marshal(out)
}

func str(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// =============================================================================
// Payloads
// =============================================================================

type AccountRegistered struct {
	AccountID string
	Role      string
	TxAddress string
}

func (AccountRegistered) EventName() string { return EventAccountRegistered }
func (p AccountRegistered) Fields() map[string]interface{} {
	return map[string]interface{}{"accountID": p.AccountID, "role": p.Role, "txAddress": p.TxAddress}
}

type AccountBlacklisted struct {
	AccountID     string
	IsBlacklisted bool
}

func (AccountBlacklisted) EventName() string { return EventAccountBlacklisted }
func (p AccountBlacklisted) Fields() map[string]interface{} {
	return map[string]interface{}{"accountID": p.AccountID, "isBlacklisted": p.IsBlacklisted}
}

// AssetSubmitted and AssetVerified share a layout.
type AssetSubmitted struct {
	ID        *big.Int
	AssetID   string
	AccountID string
}

func (AssetSubmitted) EventName() string { return EventAssetSubmitted }
func (p AssetSubmitted) Fields() map[string]interface{} {
	return map[string]interface{}{"id": str(p.ID), "assetID": p.AssetID, "accountID": p.AccountID}
}

type AssetVerified struct {
	ID        *big.Int
	AssetID   string
	AccountID string
}

func (AssetVerified) EventName() string { return EventAssetVerified }
func (p AssetVerified) Fields() map[string]interface{} {
	return map[string]interface{}{"id": str(p.ID), "assetID": p.AssetID, "accountID": p.AccountID}
}

type DisputeRaised struct {
	AssetID   string
	DisputeID *big.Int
	Reason    string
	AccountID string
}

func (DisputeRaised) EventName() string { return EventDisputeRaised }
func (p DisputeRaised) Fields() map[string]interface{} {
	return map[string]interface{}{"assetID": p.AssetID, "disputeID": str(p.DisputeID), "reason": p.Reason, "accountID": p.AccountID}
}

type DisputeResolved struct {
	AssetID   string
	DisputeID *big.Int
	Solution  string
	AccountID string
}

func (DisputeResolved) EventName() string { return EventDisputeResolved }
func (p DisputeResolved) Fields() map[string]interface{} {
	return map[string]interface{}{"assetID": p.AssetID, "disputeID": str(p.DisputeID), "solution": p.Solution, "accountID": p.AccountID}
}

type CreditsIssued struct {
	Producer   string
	Verifier   string
	CreditType string
	Amount     *big.Int
}

func (CreditsIssued) EventName() string { return EventCreditsIssued }
func (p CreditsIssued) Fields() map[string]interface{} {
	return map[string]interface{}{"producer": p.Producer, "verifier": p.Verifier, "creditType": p.CreditType, "amount": str(p.Amount)}
}

type CreditsBought struct {
	AccountID  string
	Producer   string
	Verifier   string
	CreditType string
	Amount     *big.Int
	Price      *big.Int
}

func (CreditsBought) EventName() string { return EventCreditsBought }
func (p CreditsBought) Fields() map[string]interface{} {
	return map[string]interface{}{
		"accountID": p.AccountID, "producer": p.Producer, "verifier": p.Verifier,
		"creditType": p.CreditType, "amount": str(p.Amount), "price": str(p.Price),
	}
}

type CreditsTransferred struct {
	Sender     string
	Receiver   string
	Producer   string
	Verifier   string
	CreditType string
	Amount     *big.Int
	Price      *big.Int
}

func (CreditsTransferred) EventName() string { return EventCreditsTransferred }
func (p CreditsTransferred) Fields() map[string]interface{} {
	return map[string]interface{}{
		"sender": p.Sender, "receiver": p.Receiver, "producer": p.Producer, "verifier": p.Verifier,
		"creditType": p.CreditType, "amount": str(p.Amount), "price": str(p.Price),
	}
}

type CreditsDonated struct {
	AccountID  string
	Producer   string
	Verifier   string
	CreditType string
	Amount     *big.Int
}

func (CreditsDonated) EventName() string { return EventCreditsDonated }
func (p CreditsDonated) Fields() map[string]interface{} {
	return map[string]interface{}{
		"accountID": p.AccountID, "producer": p.Producer, "verifier": p.Verifier,
		"creditType": p.CreditType, "amount": str(p.Amount),
	}
}

type CertificateCreated struct {
	CertificateID *big.Int
	AccountID     string
	Producer      string
	Verifier      string
	CreditType    string
	Balance       *big.Int
}

func (CertificateCreated) EventName() string { return EventCertificateCreated }
func (p CertificateCreated) Fields() map[string]interface{} {
	return map[string]interface{}{
		"certificateId": str(p.CertificateID), "accountID": p.AccountID, "producer": p.Producer,
		"verifier": p.Verifier, "creditType": p.CreditType, "balance": str(p.Balance),
	}
}

// SupplyKey is the (producer, verifier, creditType) triple a credit event touches.
type SupplyKey struct {
	Producer   string
	Verifier   string
	CreditType string
}

// SupplyKeyOf returns the supply key a credit payload affects.
func SupplyKeyOf(p Payload) (SupplyKey, bool) {
	switch e := p.(type) {
	case CreditsIssued:
		return SupplyKey{e.Producer, e.Verifier, e.CreditType}, true
	case CreditsBought:
		return SupplyKey{e.Producer, e.Verifier, e.CreditType}, true
	case CreditsTransferred:
		return SupplyKey{e.Producer, e.Verifier, e.CreditType}, true
	case CreditsDonated:
		return SupplyKey{e.Producer, e.Verifier, e.CreditType}, true
	case CertificateCreated:
		return SupplyKey{e.Producer, e.Verifier, e.CreditType}, true
	}
	return SupplyKey{}, false
}

// =============================================================================
// Decoding
// =============================================================================

// fieldReader walks a notification state array in order.
type fieldReader struct {
	items []chain.StackItem
	pos   int
	err   error
}

func (r *fieldReader) next() (chain.StackItem, bool) {
	if r.err != nil {
		return chain.StackItem{}, false
	}
	if r.pos >= len(r.items) {
		r.err = fmt.Errorf("missing field %d", r.pos)
		return chain.StackItem{}, false
	}
	item := r.items[r.pos]
	r.pos++
	return item, true
}

func (r *fieldReader) string() string {
	item, ok := r.next()
	if !ok {
		return ""
	}
	s, err := chain.ParseString(item)
	if err != nil {
		r.err = fmt.Errorf("field %d: %w", r.pos-1, err)
	}
	return s
}

func (r *fieldReader) integer() *big.Int {
	item, ok := r.next()
	if !ok {
		return nil
	}
	n, err := chain.ParseInteger(item)
	if err != nil {
		r.err = fmt.Errorf("field %d: %w", r.pos-1, err)
	}
	return n
}

func (r *fieldReader) boolean() bool {
	item, ok := r.next()
	if !ok {
		return false
	}
	b, err := chain.ParseBoolean(item)
	if err != nil {
		r.err = fmt.Errorf("field %d: %w", r.pos-1, err)
	}
	return b
}

// DecodePayload decodes the state of a named notification.
// Unknown names return (nil, nil).
func DecodePayload(name string, state chain.StackItem) (Payload, error) {
	if !knownEvents[name] {
		return nil, nil
	}
	items, err := chain.ParseArray(state)
	if err != nil {
		return nil, fmt.Errorf("%s state: %w", name, err)
	}
	r := &fieldReader{items: items}

	var p Payload
	switch name {
	case EventAccountRegistered:
		p = AccountRegistered{AccountID: r.string(), Role: r.string(), TxAddress: r.string()}
	case EventAccountBlacklisted:
		p = AccountBlacklisted{AccountID: r.string(), IsBlacklisted: r.boolean()}
	case EventAssetSubmitted:
		p = AssetSubmitted{ID: r.integer(), AssetID: r.string(), AccountID: r.string()}
	case EventAssetVerified:
		p = AssetVerified{ID: r.integer(), AssetID: r.string(), AccountID: r.string()}
	case EventDisputeRaised:
		p = DisputeRaised{AssetID: r.string(), DisputeID: r.integer(), Reason: r.string(), AccountID: r.string()}
	case EventDisputeResolved:
		p = DisputeResolved{AssetID: r.string(), DisputeID: r.integer(), Solution: r.string(), AccountID: r.string()}
	case EventCreditsIssued:
		p = CreditsIssued{Producer: r.string(), Verifier: r.string(), CreditType: r.string(), Amount: r.integer()}
	case EventCreditsBought:
		p = CreditsBought{AccountID: r.string(), Producer: r.string(), Verifier: r.string(), CreditType: r.string(), Amount: r.integer(), Price: r.integer()}
	case EventCreditsTransferred:
		p = CreditsTransferred{Sender: r.string(), Receiver: r.string(), Producer: r.string(), Verifier: r.string(), CreditType: r.string(), Amount: r.integer(), Price: r.integer()}
	case EventCreditsDonated:
		p = CreditsDonated{AccountID: r.string(), Producer: r.string(), Verifier: r.string(), CreditType: r.string(), Amount: r.integer()}
	case EventCertificateCreated:
		p = CertificateCreated{CertificateID: r.integer(), AccountID: r.string(), Producer: r.string(), Verifier: r.string(), CreditType: r.string(), Balance: r.integer()}
	default:
		return nil, nil
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, r.err)
	}
	return p, nil
}

// DecodeNotifications decodes the known notifications of one execution.
// Notifications from contracts outside contracts, and unknown names, are skipped.
func DecodeNotifications(contracts map[string]ContractName, txHash string, block uint64, notifications []chain.Notification) ([]Event, error) {
	var events []Event
	for _, n := range notifications {
		contract, ok := contracts[chain.NormalizeHash(n.Contract)]
		if !ok {
			continue
		}
		payload, err := DecodePayload(n.EventName, n.State)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			continue
		}
		events = append(events, Event{
			Name:     n.EventName,
			Contract: contract,
			TxHash:   txHash,
			Block:    block,
			Payload:  payload,
		})
	}
	return events, nil
}

// EncodePayload renders a payload as a notification state array, the inverse
// of DecodePayload. The simulated backend emits notifications through it.
func EncodePayload(p Payload) chain.StackItem {
	s := chain.NewStringItem
	i := chain.NewIntegerItem
	switch e := p.(type) {
	case AccountRegistered:
		return chain.NewArrayItem(s(e.AccountID), s(e.Role), s(e.TxAddress))
	case AccountBlacklisted:
		return chain.NewArrayItem(s(e.AccountID), chain.NewBooleanItem(e.IsBlacklisted))
	case AssetSubmitted:
		return chain.NewArrayItem(i(e.ID), s(e.AssetID), s(e.AccountID))
	case AssetVerified:
		return chain.NewArrayItem(i(e.ID), s(e.AssetID), s(e.AccountID))
	case DisputeRaised:
		return chain.NewArrayItem(s(e.AssetID), i(e.DisputeID), s(e.Reason), s(e.AccountID))
	case DisputeResolved:
		return chain.NewArrayItem(s(e.AssetID), i(e.DisputeID), s(e.Solution), s(e.AccountID))
	case CreditsIssued:
		return chain.NewArrayItem(s(e.Producer), s(e.Verifier), s(e.CreditType), i(e.Amount))
	case CreditsBought:
		return chain.NewArrayItem(s(e.AccountID), s(e.Producer), s(e.Verifier), s(e.CreditType), i(e.Amount), i(e.Price))
	case CreditsTransferred:
		return chain.NewArrayItem(s(e.Sender), s(e.Receiver), s(e.Producer), s(e.Verifier), s(e.CreditType), i(e.Amount), i(e.Price))
	case CreditsDonated:
		return chain.NewArrayItem(s(e.AccountID), s(e.Producer), s(e.Verifier), s(e.CreditType), i(e.Amount))
	case CertificateCreated:
		return chain.NewArrayItem(i(e.CertificateID), s(e.AccountID), s(e.Producer), s(e.Verifier), s(e.CreditType), i(e.Balance))
	}
	return chain.NewNullItem()
}
