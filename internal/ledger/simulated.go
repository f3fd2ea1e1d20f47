package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
)

// Script hashes the simulated contracts report as notification sources.
const (
	SimulatedAccountsHash     = "0x6e70630000000000000000000000000000000001"
	SimulatedVerificationHash = "0x6e70630000000000000000000000000000000002"
	SimulatedCreditsHash      = "0x6e70630000000000000000000000000000000003"
)

// DefaultRecoveryDuration is what getRecoveryDuration reports, in seconds.
const DefaultRecoveryDuration = 30 * 24 * 60 * 60

const (
	assetSubmitted = "submitted"
	assetDisputed  = "disputed"
	assetApproved  = "approved"
	assetClosed    = "closed"
)

type simAccount struct {
	role        string
	txAddress   string
	blacklisted bool
	lastActive  *big.Int
}

type simAsset struct {
	id          *big.Int
	owner       string
	status      string
	creditTypes []string
	limits      map[string]*big.Int
	issued      map[string]*big.Int
}

type simDispute struct {
	assetID string
	account string
	open    bool
}

type simTx struct {
	fin       *Finality
	remaining int // lookups before the tx becomes visible; <0 never
	visible   bool
}

// Simulated is an in-process NeptuneChain deployment. It applies the contract
// rules the orchestration layer relies on and emits notifications through the
// same decode path as the RPC backend. One transaction lands per block.
//
// The hooks (RejectNext, FaultOnExecution, SetPending, SuppressEvent) shape
// failures for tests and local runs.
type Simulated struct {
	mu        sync.Mutex
	hashes    map[ContractName]string
	contracts map[string]ContractName
	now       func() time.Time

	txSeq  uint64
	height uint64
	txs    map[string]*simTx
	blocks map[uint64][]Event

	accounts      map[string]*simAccount
	assets        map[string]*simAsset
	disputes      map[string]*simDispute
	nextAssetID   int64
	nextDisputeID int64

	supply       map[SupplyKey]*Supply
	balances     map[string]map[SupplyKey]*big.Int
	certificates []*Certificate
	accountCerts map[string][]*big.Int
	producers    []string
	verifiers    map[string][]string
	totalSold    *big.Int

	reject   map[string]string
	fault    map[string]string
	pending  map[string]int
	suppress map[string]bool
	calls    map[string]int
}

var (
	_ Backend      = (*Simulated)(nil)
	_ BlockSource  = (*Simulated)(nil)
	_ StreamSource = (*Simulated)(nil)
)

// NewSimulated creates an empty simulated ledger.
func NewSimulated() *Simulated {
	hashes := map[ContractName]string{
		ContractAccounts:     SimulatedAccountsHash,
		ContractVerification: SimulatedVerificationHash,
		ContractCredits:      SimulatedCreditsHash,
	}
	contracts := make(map[string]ContractName, len(hashes))
	for name, h := range hashes {
		contracts[h] = name
	}
	return &Simulated{
		hashes:       hashes,
		contracts:    contracts,
		now:          time.Now,
		txs:          make(map[string]*simTx),
		blocks:       make(map[uint64][]Event),
		accounts:     make(map[string]*simAccount),
		assets:       make(map[string]*simAsset),
		disputes:     make(map[string]*simDispute),
		supply:       make(map[SupplyKey]*Supply),
		balances:     make(map[string]map[SupplyKey]*big.Int),
		accountCerts: make(map[string][]*big.Int),
		verifiers:    make(map[string][]string),
		totalSold:    new(big.Int),
		reject:       make(map[string]string),
		fault:        make(map[string]string),
		pending:      make(map[string]int),
		suppress:     make(map[string]bool),
		calls:        make(map[string]int),
	}
}

// =============================================================================
// Hooks
// =============================================================================

// RejectNext makes the next submission of method fail preflight with reason.
func (s *Simulated) RejectNext(method, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[method] = reason
}

// FaultOnExecution makes every submission of method land in a FAULT state
// without touching contract state. An empty reason clears the hook.
func (s *Simulated) FaultOnExecution(method, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reason == "" {
		delete(s.fault, method)
		return
	}
	s.fault[method] = reason
}

// SetPending delays visibility of transactions for method by lookups calls
// to Lookup. A negative value keeps them pending until Release.
func (s *Simulated) SetPending(method string, lookups int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lookups == 0 {
		delete(s.pending, method)
		return
	}
	s.pending[method] = lookups
}

// Release makes a pending transaction visible on the next Lookup.
func (s *Simulated) Release(txHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.txs[txHash]; ok && !tx.visible {
		tx.remaining = 0
	}
}

// SuppressEvent drops notifications named name from future transactions.
func (s *Simulated) SuppressEvent(name string, suppressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if suppressed {
		s.suppress[name] = true
	} else {
		delete(s.suppress, name)
	}
}

// Calls returns how many times method was submitted.
func (s *Simulated) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// PendingTransactions returns hashes of submitted transactions not yet visible.
func (s *Simulated) PendingTransactions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for h, tx := range s.txs {
		if !tx.visible {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Backend
// =============================================================================

// Submit applies call. Contract rule violations surface as preflight rejections.
func (s *Simulated) Submit(ctx context.Context, call Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[call.Method]++
	if reason, ok := s.reject[call.Method]; ok {
		delete(s.reject, call.Method)
		return "", &RejectedError{Method: call.Method, Reason: reason}
	}

	s.txSeq++
	txHash := fmt.Sprintf("0x%064x", s.txSeq)
	fin := &Finality{TxHash: txHash, VMState: chain.VMStateHalt}

	if reason, ok := s.fault[call.Method]; ok {
		fin.VMState = chain.VMStateFault
		fin.Exception = reason
	} else {
		result, payloads, err := s.apply(call)
		if err != nil {
			return "", &RejectedError{Method: call.Method, Reason: err.Error()}
		}
		fin.Stack = []chain.StackItem{result}
		fin.Events = s.notify(call.Contract, txHash, payloads)
	}

	tx := &simTx{fin: fin, remaining: s.pending[call.Method]}
	s.txs[txHash] = tx
	if tx.remaining == 0 {
		s.land(tx)
	}
	return txHash, nil
}

// notify renders payloads as notifications and decodes them back.
func (s *Simulated) notify(contract ContractName, txHash string, payloads []Payload) []Event {
	notifications := make([]chain.Notification, 0, len(payloads))
	for _, p := range payloads {
		if s.suppress[p.EventName()] {
			continue
		}
		notifications = append(notifications, chain.Notification{
			Contract:  s.hashes[contract],
			EventName: p.EventName(),
			State:     EncodePayload(p),
		})
	}
	events, err := DecodeNotifications(s.contracts, txHash, 0, notifications)
	if err != nil {
		// EncodePayload and DecodePayload are inverses
		panic(fmt.Sprintf("simulated notification round trip: %v", err))
	}
	return events
}

// land assigns tx the next block. Caller holds s.mu.
func (s *Simulated) land(tx *simTx) {
	s.height++
	tx.visible = true
	tx.fin.BlockIndex = s.height
	for i := range tx.fin.Events {
		tx.fin.Events[i].Block = s.height
	}
	s.blocks[s.height] = tx.fin.Events
}

// Lookup returns the finality of txHash once it is visible.
func (s *Simulated) Lookup(ctx context.Context, txHash string) (*Finality, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[txHash]
	if !ok {
		return nil, ErrTxUnknown
	}
	if !tx.visible {
		if tx.remaining < 0 {
			return nil, ErrTxUnknown
		}
		if tx.remaining > 0 {
			tx.remaining--
			return nil, ErrTxUnknown
		}
		s.land(tx)
	}
	out := *tx.fin
	out.Events = append([]Event(nil), tx.fin.Events...)
	return &out, nil
}

// Query runs a read-only method.
func (s *Simulated) Query(ctx context.Context, call Call) ([]chain.StackItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.read(call)
	if err != nil {
		return nil, &RejectedError{Method: call.Method, Reason: err.Error()}
	}
	return []chain.StackItem{item}, nil
}

// BlockCount returns the number of blocks including genesis.
func (s *Simulated) BlockCount(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height + 1, nil
}

// BlockEvents returns the events that landed in block index.
func (s *Simulated) BlockEvents(ctx context.Context, index uint64) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index > s.height {
		return nil, fmt.Errorf("block %d not found", index)
	}
	return append([]Event(nil), s.blocks[index]...), nil
}

// StreamEvents delivers events of blocks landing after the call.
func (s *Simulated) StreamEvents(ctx context.Context, out chan<- Event) error {
	next, _ := s.BlockCount(ctx)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		count, _ := s.BlockCount(ctx)
		for ; next < count; next++ {
			events, err := s.BlockEvents(ctx, next)
			if err != nil {
				return err
			}
			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// =============================================================================
// Contract rules
// =============================================================================

// apply validates then mutates. Caller holds s.mu. Nothing is mutated when
// an error is returned.
func (s *Simulated) apply(call Call) (chain.StackItem, []Payload, error) {
	a := &argReader{args: call.Args}
	ok := chain.NewBooleanItem(true)

	switch call.Method {
	case MethodRegisterAccount:
		id, role, addr := a.str(), a.str(), a.str()
		if a.err != nil {
			return ok, nil, a.err
		}
		if _, exists := s.accounts[id]; exists {
			return ok, nil, fmt.Errorf("account %s already registered", id)
		}
		s.accounts[id] = &simAccount{role: role, txAddress: addr, lastActive: big.NewInt(s.now().Unix())}
		return ok, []Payload{AccountRegistered{AccountID: id, Role: role, TxAddress: addr}}, nil

	case MethodBlacklistAccount:
		id, status := a.str(), a.boolean()
		if a.err != nil {
			return ok, nil, a.err
		}
		acct, exists := s.accounts[id]
		if !exists {
			return ok, nil, fmt.Errorf("account %s not registered", id)
		}
		acct.blacklisted = status
		return ok, []Payload{AccountBlacklisted{AccountID: id, IsBlacklisted: status}}, nil

	case MethodUpdateLastActive:
		id := a.str()
		if a.err != nil {
			return ok, nil, a.err
		}
		acct, exists := s.accounts[id]
		if !exists {
			return ok, nil, fmt.Errorf("account %s not registered", id)
		}
		acct.lastActive = big.NewInt(s.now().Unix())
		return ok, nil, nil

	case MethodSubmitAsset:
		account, assetID := a.str(), a.str()
		if a.err != nil {
			return ok, nil, a.err
		}
		if _, exists := s.assets[assetID]; exists {
			return ok, nil, fmt.Errorf("asset %s already submitted", assetID)
		}
		s.nextAssetID++
		id := big.NewInt(s.nextAssetID)
		s.assets[assetID] = &simAsset{
			id:     id,
			owner:  account,
			status: assetSubmitted,
			limits: make(map[string]*big.Int),
			issued: make(map[string]*big.Int),
		}
		return chain.NewIntegerItem(id), []Payload{AssetSubmitted{ID: id, AssetID: assetID, AccountID: account}}, nil

	case MethodRaiseDispute:
		account, assetID, reason := a.str(), a.str(), a.str()
		if a.err != nil {
			return ok, nil, a.err
		}
		asset, exists := s.assets[assetID]
		if !exists {
			return ok, nil, fmt.Errorf("asset %s not found", assetID)
		}
		if asset.status != assetSubmitted {
			return ok, nil, fmt.Errorf("asset %s is %s", assetID, asset.status)
		}
		s.nextDisputeID++
		disputeID := big.NewInt(s.nextDisputeID)
		asset.status = assetDisputed
		s.disputes[disputeID.String()] = &simDispute{assetID: assetID, account: account, open: true}
		return chain.NewIntegerItem(disputeID), []Payload{DisputeRaised{
			AssetID: assetID, DisputeID: disputeID, Reason: reason, AccountID: account,
		}}, nil

	case MethodResolveDispute:
		account, disputeID, solution, _ := a.str(), a.integer(), a.str(), a.str()
		if a.err != nil {
			return ok, nil, a.err
		}
		d, exists := s.disputes[disputeID.String()]
		if !exists || !d.open {
			return ok, nil, fmt.Errorf("dispute %s is not open", disputeID)
		}
		d.open = false
		s.assets[d.assetID].status = assetClosed
		return ok, []Payload{DisputeResolved{
			AssetID: d.assetID, DisputeID: disputeID, Solution: solution, AccountID: account,
		}}, nil

	case MethodApproveAsset:
		account, assetID, types, limits := a.str(), a.str(), a.strings(), a.integers()
		if a.err != nil {
			return ok, nil, a.err
		}
		asset, exists := s.assets[assetID]
		if !exists {
			return ok, nil, fmt.Errorf("asset %s not found", assetID)
		}
		if asset.status != assetSubmitted {
			return ok, nil, fmt.Errorf("asset %s is %s", assetID, asset.status)
		}
		if len(types) == 0 || len(types) != len(limits) {
			return ok, nil, fmt.Errorf("credit types and limits mismatch")
		}
		asset.status = assetApproved
		asset.creditTypes = append([]string(nil), types...)
		for i, t := range types {
			asset.limits[t] = new(big.Int).Set(limits[i])
			asset.issued[t] = new(big.Int)
		}
		return ok, []Payload{AssetVerified{ID: asset.id, AssetID: assetID, AccountID: account}}, nil

	case MethodIssueCredits:
		return s.issue(a)
	case MethodBuyCredits:
		return s.buy(a)
	case MethodTransferCredits:
		return s.transfer(a)
	case MethodDonateCredits:
		return s.donate(a)
	}
	return ok, nil, fmt.Errorf("method %s not found", call.Method)
}

func (s *Simulated) issue(a *argReader) (chain.StackItem, []Payload, error) {
	_, assetID, producer, verifier, creditType, amount := a.str(), a.str(), a.str(), a.str(), a.str(), a.integer()
	if a.err != nil {
		return chain.StackItem{}, nil, a.err
	}
	asset, exists := s.assets[assetID]
	if !exists || asset.status != assetApproved {
		return chain.StackItem{}, nil, fmt.Errorf("asset %s is not approved", assetID)
	}
	limit, typed := asset.limits[creditType]
	if !typed {
		return chain.StackItem{}, nil, fmt.Errorf("credit type %s not approved for %s", creditType, assetID)
	}
	if amount.Sign() <= 0 {
		return chain.StackItem{}, nil, fmt.Errorf("amount must be positive")
	}
	after := new(big.Int).Add(asset.issued[creditType], amount)
	if after.Cmp(limit) > 0 {
		return chain.StackItem{}, nil, fmt.Errorf("supply limit %s exceeded", limit)
	}

	asset.issued[creditType] = after
	key := SupplyKey{Producer: producer, Verifier: verifier, CreditType: creditType}
	sup := s.supplyOf(key)
	sup.Issued.Add(sup.Issued, amount)
	sup.Available.Add(sup.Available, amount)
	s.registerProducer(producer, verifier)

	cert := s.certify(producer, key, amount, new(big.Int))
	return chain.NewIntegerItem(cert.ID), []Payload{
		CreditsIssued{Producer: producer, Verifier: verifier, CreditType: creditType, Amount: amount},
		certificateEvent(cert),
	}, nil
}

func (s *Simulated) buy(a *argReader) (chain.StackItem, []Payload, error) {
	account, producer, verifier, creditType, amount, price := a.str(), a.str(), a.str(), a.str(), a.integer(), a.integer()
	if a.err != nil {
		return chain.StackItem{}, nil, a.err
	}
	key := SupplyKey{Producer: producer, Verifier: verifier, CreditType: creditType}
	sup, exists := s.supply[key]
	if amount.Sign() <= 0 {
		return chain.StackItem{}, nil, fmt.Errorf("amount must be positive")
	}
	if !exists || sup.Available.Cmp(amount) < 0 {
		return chain.StackItem{}, nil, fmt.Errorf("insufficient supply")
	}

	sup.Available.Sub(sup.Available, amount)
	s.credit(account, key, amount)
	s.totalSold.Add(s.totalSold, amount)

	cert := s.certify(account, key, amount, price)
	return chain.NewIntegerItem(cert.ID), []Payload{
		CreditsBought{AccountID: account, Producer: producer, Verifier: verifier, CreditType: creditType, Amount: amount, Price: price},
		certificateEvent(cert),
	}, nil
}

func (s *Simulated) transfer(a *argReader) (chain.StackItem, []Payload, error) {
	sender, receiver, producer, verifier, creditType, amount, price := a.str(), a.str(), a.str(), a.str(), a.str(), a.integer(), a.integer()
	if a.err != nil {
		return chain.StackItem{}, nil, a.err
	}
	key := SupplyKey{Producer: producer, Verifier: verifier, CreditType: creditType}
	if amount.Sign() <= 0 {
		return chain.StackItem{}, nil, fmt.Errorf("amount must be positive")
	}
	if s.balanceOf(sender, key).Cmp(amount) < 0 {
		return chain.StackItem{}, nil, fmt.Errorf("insufficient balance")
	}

	s.credit(sender, key, new(big.Int).Neg(amount))
	s.credit(receiver, key, amount)
	return chain.NewBooleanItem(true), []Payload{CreditsTransferred{
		Sender: sender, Receiver: receiver, Producer: producer, Verifier: verifier,
		CreditType: creditType, Amount: amount, Price: price,
	}}, nil
}

func (s *Simulated) donate(a *argReader) (chain.StackItem, []Payload, error) {
	account, producer, verifier, creditType, amount := a.str(), a.str(), a.str(), a.str(), a.integer()
	if a.err != nil {
		return chain.StackItem{}, nil, a.err
	}
	key := SupplyKey{Producer: producer, Verifier: verifier, CreditType: creditType}
	sup, exists := s.supply[key]
	if amount.Sign() <= 0 {
		return chain.StackItem{}, nil, fmt.Errorf("amount must be positive")
	}
	if !exists || sup.Available.Cmp(amount) < 0 {
		return chain.StackItem{}, nil, fmt.Errorf("insufficient supply")
	}

	sup.Available.Sub(sup.Available, amount)
	sup.Donated.Add(sup.Donated, amount)
	return chain.NewBooleanItem(true), []Payload{CreditsDonated{
		AccountID: account, Producer: producer, Verifier: verifier, CreditType: creditType, Amount: amount,
	}}, nil
}

func (s *Simulated) supplyOf(key SupplyKey) *Supply {
	sup, ok := s.supply[key]
	if !ok {
		sup = &Supply{Issued: new(big.Int), Available: new(big.Int), Donated: new(big.Int)}
		s.supply[key] = sup
	}
	return sup
}

func (s *Simulated) balanceOf(account string, key SupplyKey) *big.Int {
	if b, ok := s.balances[account][key]; ok {
		return b
	}
	return new(big.Int)
}

func (s *Simulated) credit(account string, key SupplyKey, delta *big.Int) {
	m, ok := s.balances[account]
	if !ok {
		m = make(map[SupplyKey]*big.Int)
		s.balances[account] = m
	}
	m[key] = new(big.Int).Add(s.balanceOf(account, key), delta)
}

func (s *Simulated) registerProducer(producer, verifier string) {
	if _, ok := s.verifiers[producer]; !ok {
		s.producers = append(s.producers, producer)
		s.verifiers[producer] = nil
	}
	for _, v := range s.verifiers[producer] {
		if v == verifier {
			return
		}
	}
	s.verifiers[producer] = append(s.verifiers[producer], verifier)
}

// certify creates the next certificate. Ids start at 1.
func (s *Simulated) certify(recipient string, key SupplyKey, balance, price *big.Int) *Certificate {
	cert := &Certificate{
		ID:         big.NewInt(int64(len(s.certificates) + 1)),
		Recipient:  recipient,
		Producer:   key.Producer,
		Verifier:   key.Verifier,
		CreditType: key.CreditType,
		Balance:    new(big.Int).Set(balance),
		Price:      new(big.Int).Set(price),
		Timestamp:  big.NewInt(s.now().Unix()),
	}
	s.certificates = append(s.certificates, cert)
	s.accountCerts[recipient] = append(s.accountCerts[recipient], cert.ID)
	return cert
}

func certificateEvent(c *Certificate) CertificateCreated {
	return CertificateCreated{
		CertificateID: c.ID,
		AccountID:     c.Recipient,
		Producer:      c.Producer,
		Verifier:      c.Verifier,
		CreditType:    c.CreditType,
		Balance:       c.Balance,
	}
}

// read answers a read-only method. Caller holds s.mu.
func (s *Simulated) read(call Call) (chain.StackItem, error) {
	a := &argReader{args: call.Args}
	boolean, integer := chain.NewBooleanItem, chain.NewIntegerItem

	var item chain.StackItem
	switch call.Method {
	case MethodVerifyRole:
		id, role := a.str(), a.str()
		acct, ok := s.accounts[id]
		item = boolean(ok && acct.role == role)
	case MethodIsRegistered:
		_, ok := s.accounts[a.str()]
		item = boolean(ok)
	case MethodIsNotBlacklisted:
		acct, ok := s.accounts[a.str()]
		item = boolean(!ok || !acct.blacklisted)
	case MethodGetAccountData:
		acct, ok := s.accounts[a.str()]
		if !ok {
			acct = &simAccount{lastActive: new(big.Int)}
		}
		item = chain.NewArrayItem(
			chain.NewStringItem(acct.role),
			chain.NewStringItem(acct.txAddress),
			boolean(acct.blacklisted),
			integer(acct.lastActive),
			boolean(ok),
		)

	case MethodOwnerOf:
		asset, ok := s.assets[a.str()]
		if !ok {
			return item, fmt.Errorf("token not found")
		}
		item = chain.NewStringItem(asset.owner)
	case MethodGetCreditTypes:
		var types []string
		if asset, ok := s.assets[a.str()]; ok {
			types = asset.creditTypes
		}
		item = stringsItem(types)
	case MethodGetCreditSupplyLimit:
		assetID, creditType := a.str(), a.str()
		limit := new(big.Int)
		if asset, ok := s.assets[assetID]; ok && asset.limits[creditType] != nil {
			limit = asset.limits[creditType]
		}
		item = integer(limit)
	case MethodGetTotalCertificates:
		item = integer(big.NewInt(int64(len(s.certificates))))
	case MethodGetTotalSold:
		item = integer(s.totalSold)
	case MethodIsProducerRegistered:
		_, ok := s.verifiers[a.str()]
		item = boolean(ok)
	case MethodIsVerifierRegistered:
		producer, verifier := a.str(), a.str()
		found := false
		for _, v := range s.verifiers[producer] {
			found = found || v == verifier
		}
		item = boolean(found)
	case MethodGetProducerVerifiers:
		item = stringsItem(s.verifiers[a.str()])
	case MethodGetProducers:
		item = stringsItem(s.producers)
	case MethodGetSupply:
		key := SupplyKey{Producer: a.str(), Verifier: a.str(), CreditType: a.str()}
		sup, ok := s.supply[key]
		if !ok {
			sup = &Supply{Issued: new(big.Int), Available: new(big.Int), Donated: new(big.Int)}
		}
		item = chain.NewArrayItem(integer(sup.Issued), integer(sup.Available), integer(sup.Donated))
	case MethodGetCertificateByID:
		id := a.integer()
		if a.err != nil {
			break
		}
		if !id.IsInt64() || id.Int64() < 1 || id.Int64() > int64(len(s.certificates)) {
			return item, fmt.Errorf("certificate %s not found", id)
		}
		c := s.certificates[id.Int64()-1]
		item = chain.NewArrayItem(
			integer(c.ID),
			chain.NewStringItem(c.Recipient),
			chain.NewStringItem(c.Producer),
			chain.NewStringItem(c.Verifier),
			chain.NewStringItem(c.CreditType),
			integer(c.Balance),
			integer(c.Price),
			integer(c.Timestamp),
		)
	case MethodGetAccountCertificates:
		ids := s.accountCerts[a.str()]
		items := make([]chain.StackItem, len(ids))
		for i, id := range ids {
			items[i] = integer(id)
		}
		item = chain.NewArrayItem(items...)
	case MethodGetAccountCreditBalance:
		account := a.str()
		key := SupplyKey{Producer: a.str(), Verifier: a.str(), CreditType: a.str()}
		item = integer(s.balanceOf(account, key))
	case MethodGetRecoveryDuration:
		item = integer(big.NewInt(DefaultRecoveryDuration))
	default:
		return item, fmt.Errorf("method %s not found", call.Method)
	}
	if a.err != nil {
		return chain.StackItem{}, a.err
	}
	return item, nil
}

func stringsItem(values []string) chain.StackItem {
	items := make([]chain.StackItem, len(values))
	for i, v := range values {
		items[i] = chain.NewStringItem(v)
	}
	return chain.NewArrayItem(items...)
}

// argReader walks invocation arguments in order.
type argReader struct {
	args []chain.ContractParam
	pos  int
	err  error
}

func (r *argReader) next() (chain.ContractParam, bool) {
	if r.err != nil {
		return chain.ContractParam{}, false
	}
	if r.pos >= len(r.args) {
		r.err = fmt.Errorf("missing argument %d", r.pos)
		return chain.ContractParam{}, false
	}
	p := r.args[r.pos]
	r.pos++
	return p, true
}

func (r *argReader) str() string {
	p, ok := r.next()
	if !ok {
		return ""
	}
	v, err := p.AsString()
	if err != nil {
		r.err = fmt.Errorf("argument %d: %w", r.pos-1, err)
	}
	return v
}

func (r *argReader) integer() *big.Int {
	p, ok := r.next()
	if !ok {
		return new(big.Int)
	}
	v, err := p.AsInteger()
	if err != nil {
		r.err = fmt.Errorf("argument %d: %w", r.pos-1, err)
		return new(big.Int)
	}
	return v
}

func (r *argReader) boolean() bool {
	p, ok := r.next()
	if !ok {
		return false
	}
	v, err := p.AsBool()
	if err != nil {
		r.err = fmt.Errorf("argument %d: %w", r.pos-1, err)
	}
	return v
}

func (r *argReader) strings() []string {
	p, ok := r.next()
	if !ok {
		return nil
	}
	v, err := p.AsStrings()
	if err != nil {
		r.err = fmt.Errorf("argument %d: %w", r.pos-1, err)
	}
	return v
}

func (r *argReader) integers() []*big.Int {
	p, ok := r.next()
	if !ok {
		return nil
	}
	v, err := p.AsIntegers()
	if err != nil {
		r.err = fmt.Errorf("argument %d: %w", r.pos-1, err)
	}
	return v
}
