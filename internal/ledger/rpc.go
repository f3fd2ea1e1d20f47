package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/core/transaction"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
)

// RPCBackend talks to a Neo N3 node.
type RPCBackend struct {
	client    *chain.Client
	builder   *chain.TxBuilder
	ws        *chain.WSClient
	hashes    map[ContractName]string
	contracts map[string]ContractName
}

// NewRPCBackend creates a backend for the given contract deployment. ws may
// be nil when streaming is not used.
func NewRPCBackend(client *chain.Client, builder *chain.TxBuilder, ws *chain.WSClient, addrs chain.ContractAddresses) (*RPCBackend, error) {
	if err := addrs.Validate(); err != nil {
		return nil, err
	}
	addrs = addrs.Normalized()
	return &RPCBackend{
		client:  client,
		builder: builder,
		ws:      ws,
		hashes: map[ContractName]string{
			ContractAccounts:     addrs.Accounts,
			ContractVerification: addrs.Verification,
			ContractCredits:      addrs.Credits,
		},
		contracts: map[string]ContractName{
			addrs.Accounts:     ContractAccounts,
			addrs.Verification: ContractVerification,
			addrs.Credits:      ContractCredits,
		},
	}, nil
}

func (b *RPCBackend) hash(name ContractName) (string, error) {
	h, ok := b.hashes[name]
	if !ok {
		return "", fmt.Errorf("unknown contract %q", name)
	}
	return h, nil
}

// Submit preflights call as the signer, then builds, signs and broadcasts it.
func (b *RPCBackend) Submit(ctx context.Context, call Call) (string, error) {
	hash, err := b.hash(call.Contract)
	if err != nil {
		return "", err
	}

	res, err := b.client.InvokeFunctionWithSigners(ctx, hash, call.Method, call.Args, b.builder.Signer())
	if err != nil {
		return "", fmt.Errorf("preflight %s: %w", call, err)
	}
	if !res.Halted() {
		return "", &RejectedError{Method: call.Method, Reason: res.Exception}
	}

	tx, err := b.builder.BuildAndSignTx(ctx, res, transaction.CalledByEntry)
	if err != nil {
		return "", fmt.Errorf("build %s: %w", call, err)
	}
	txHash := chain.TxHashString(tx.Hash())

	if _, err := b.builder.BroadcastTx(ctx, tx); err != nil {
		var rpcErr *chain.RPCError
		if errors.As(err, &rpcErr) {
			// the node answered and refused the transaction
			return "", &RejectedError{Method: call.Method, Reason: rpcErr.Error()}
		}
		return txHash, err
	}
	return txHash, nil
}

// Lookup fetches the application log of txHash.
func (b *RPCBackend) Lookup(ctx context.Context, txHash string) (*Finality, error) {
	appLog, err := b.client.GetApplicationLog(ctx, txHash)
	if err != nil {
		if chain.IsNotFound(err) {
			return nil, ErrTxUnknown
		}
		return nil, err
	}
	return b.finality(ctx, txHash, appLog)
}

func (b *RPCBackend) finality(ctx context.Context, txHash string, appLog *chain.ApplicationLog) (*Finality, error) {
	if len(appLog.Executions) == 0 {
		return nil, fmt.Errorf("application log for %s has no executions", txHash)
	}
	exec := appLog.Executions[0]

	block, err := b.blockOf(ctx, txHash)
	if err != nil {
		return nil, err
	}

	fin := &Finality{
		TxHash:     txHash,
		VMState:    exec.VMState,
		Exception:  exec.Exception,
		BlockIndex: block,
		Stack:      exec.Stack,
	}
	if fin.Faulted() {
		return fin, nil
	}
	events, err := DecodeNotifications(b.contracts, txHash, block, exec.Notifications)
	if err != nil {
		return nil, err
	}
	fin.Events = events
	return fin, nil
}

// blockOf derives the inclusion height from the verbose transaction.
func (b *RPCBackend) blockOf(ctx context.Context, txHash string) (uint64, error) {
	tx, err := b.client.GetTransaction(ctx, txHash)
	if err != nil {
		return 0, fmt.Errorf("get transaction %s: %w", txHash, err)
	}
	if tx.BlockHash != "" {
		blk, err := b.client.GetBlock(ctx, tx.BlockHash)
		if err == nil {
			return blk.Index, nil
		}
	}
	if tx.Confirmations == 0 {
		return 0, nil
	}
	count, err := b.client.GetBlockCount(ctx)
	if err != nil {
		return 0, err
	}
	return count - tx.Confirmations, nil
}

// Query runs a read-only invocation.
func (b *RPCBackend) Query(ctx context.Context, call Call) ([]chain.StackItem, error) {
	hash, err := b.hash(call.Contract)
	if err != nil {
		return nil, err
	}
	res, err := b.client.InvokeFunction(ctx, hash, call.Method, call.Args)
	if err != nil {
		return nil, err
	}
	if !res.Halted() {
		return nil, &RejectedError{Method: call.Method, Reason: res.Exception}
	}
	return res.Stack, nil
}

// =============================================================================
// Block scanning
// =============================================================================

// BlockCount returns the node block count.
func (b *RPCBackend) BlockCount(ctx context.Context) (uint64, error) {
	return b.client.GetBlockCount(ctx)
}

// BlockEvents decodes every NeptuneChain notification in block index.
func (b *RPCBackend) BlockEvents(ctx context.Context, index uint64) ([]Event, error) {
	hashes, err := b.client.BlockTxHashes(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", index, err)
	}

	var events []Event
	for _, txHash := range hashes {
		appLog, err := b.client.GetApplicationLog(ctx, txHash)
		if err != nil {
			if chain.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("application log %s: %w", txHash, err)
		}
		for _, exec := range appLog.Executions {
			if exec.VMState != chain.VMStateHalt {
				continue
			}
			decoded, err := DecodeNotifications(b.contracts, txHash, index, exec.Notifications)
			if err != nil {
				return nil, err
			}
			events = append(events, decoded...)
		}
	}
	return events, nil
}

// StreamEvents subscribes to all three contracts over WebSocket.
func (b *RPCBackend) StreamEvents(ctx context.Context, out chan<- Event) error {
	if b.ws == nil {
		return fmt.Errorf("websocket endpoint not configured")
	}
	if err := b.ws.Connect(ctx); err != nil {
		return err
	}
	for _, h := range b.hashes {
		if err := b.ws.SubscribeNotifications(h); err != nil {
			_ = b.ws.Close()
			return err
		}
	}

	raw := make(chan chain.ExecutionNotification, 64)
	errCh := make(chan error, 1)
	go func() { errCh <- b.ws.Stream(ctx, raw) }()

	for {
		select {
		case err := <-errCh:
			return err
		case n := <-raw:
			events, err := DecodeNotifications(b.contracts, n.Container, 0, []chain.Notification{{
				Contract:  n.Contract,
				EventName: n.EventName,
				State:     n.State,
			}})
			if err != nil {
				continue
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
