package chain

import (
	"context"
	crand "crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
)

// DefaultValidBlocks is how many blocks past the current height a built
// transaction stays valid.
const DefaultValidBlocks = 100

// AccountFromPrivateKey creates a neo-go account from a hex private key
// (with or without 0x prefix).
func AccountFromPrivateKey(privateKeyHex string) (*wallet.Account, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	key, err := keys.NewPrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return wallet.NewAccountFromPrivateKey(key), nil
}

// ParseScriptHash parses a 0x-prefixed display-form contract hash.
func ParseScriptHash(hash string) (util.Uint160, error) {
	return util.Uint160DecodeStringLE(strings.TrimPrefix(strings.TrimSpace(hash), "0x"))
}

// =============================================================================
// Transaction Builder
// =============================================================================

// TxBuilder turns a signer-scoped test invocation into a signed transaction
// and broadcasts it. It owns the single signing credential and is safe for
// concurrent use; only nonce generation is serialized.
type TxBuilder struct {
	client      *Client
	network     netmode.Magic
	account     *wallet.Account
	validBlocks uint32

	nonceMu sync.Mutex
	rng     *rand.Rand
}

// NewTxBuilder creates a transaction builder signing with account.
func NewTxBuilder(client *Client, account *wallet.Account, networkID uint32, validBlocks uint32) *TxBuilder {
	if validBlocks == 0 {
		validBlocks = DefaultValidBlocks
	}
	var seed [8]byte
	_, _ = crand.Read(seed[:])
	return &TxBuilder{
		client:      client,
		network:     netmode.Magic(networkID),
		account:     account,
		validBlocks: validBlocks,
		rng:         rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:])))),
	}
}

// Signer returns the script hash transactions are signed with.
func (b *TxBuilder) Signer() util.Uint160 {
	return b.account.ScriptHash()
}

func (b *TxBuilder) nextNonce() uint32 {
	b.nonceMu.Lock()
	defer b.nonceMu.Unlock()
	return b.rng.Uint32()
}

// BuildAndSignTx builds a transaction from a HALTed signer-scoped invocation,
// prices its network fee through the node and signs it.
func (b *TxBuilder) BuildAndSignTx(ctx context.Context, invokeResult *InvokeResult, scope transaction.WitnessScope) (*transaction.Transaction, error) {
	if !invokeResult.Halted() {
		return nil, fmt.Errorf("cannot build transaction from %s invocation", invokeResult.State)
	}

	script, err := base64.StdEncoding.DecodeString(invokeResult.Script)
	if err != nil {
		return nil, fmt.Errorf("decode invocation script: %w", err)
	}
	sysFee, err := strconv.ParseInt(invokeResult.GasConsumed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse system fee %q: %w", invokeResult.GasConsumed, err)
	}

	height, err := b.client.GetBlockCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get block count: %w", err)
	}

	tx := transaction.New(script, sysFee)
	tx.Nonce = b.nextNonce()
	tx.ValidUntilBlock = uint32(height) + b.validBlocks
	tx.Signers = []transaction.Signer{{
		Account: b.account.ScriptHash(),
		Scopes:  scope,
	}}
	tx.Scripts = []transaction.Witness{{
		InvocationScript:   []byte{},
		VerificationScript: b.account.GetVerificationScript(),
	}}

	netFee, err := b.client.CalculateNetworkFee(ctx, base64.StdEncoding.EncodeToString(tx.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("calculate network fee: %w", err)
	}
	tx.NetworkFee = netFee

	if err := b.account.SignTx(b.network, tx); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

// BroadcastTx sends a signed transaction and returns its hash.
func (b *TxBuilder) BroadcastTx(ctx context.Context, tx *transaction.Transaction) (util.Uint256, error) {
	if _, err := b.client.SendRawTransaction(ctx, base64.StdEncoding.EncodeToString(tx.Bytes())); err != nil {
		return util.Uint256{}, fmt.Errorf("broadcast transaction: %w", err)
	}
	return tx.Hash(), nil
}

// TxHashString renders a transaction hash in its 0x display form.
func TxHashString(h util.Uint256) string {
	return "0x" + h.StringLE()
}
