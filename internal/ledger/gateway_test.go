package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
)

func newTestGateway(backend Backend) *Gateway {
	return NewGateway(backend, GatewayConfig{
		FinalityTimeout: 200 * time.Millisecond,
		PollInterval:    5 * time.Millisecond,
	}, nil, nil)
}

// scriptedBackend is a Backend whose behaviour is set per test.
type scriptedBackend struct {
	submit  func(ctx context.Context, call Call) (string, error)
	lookup  func(ctx context.Context, txHash string) (*Finality, error)
	query   func(ctx context.Context, call Call) ([]chain.StackItem, error)
	lookups int
}

var _ Backend = (*scriptedBackend)(nil)

func (b *scriptedBackend) Submit(ctx context.Context, call Call) (string, error) {
	return b.submit(ctx, call)
}

func (b *scriptedBackend) Lookup(ctx context.Context, txHash string) (*Finality, error) {
	b.lookups++
	if b.lookup == nil {
		return &Finality{TxHash: txHash, VMState: chain.VMStateHalt}, nil
	}
	return b.lookup(ctx, txHash)
}

func (b *scriptedBackend) Query(ctx context.Context, call Call) ([]chain.StackItem, error) {
	return b.query(ctx, call)
}

func TestExecuteConfirmed(t *testing.T) {
	sim := NewSimulated()
	gw := newTestGateway(sim)

	receipt, err := gw.RegisterAccount(context.Background(), "u1", "producer", "NXaddr")
	require.NoError(t, err)

	assert.True(t, receipt.Confirmed)
	assert.NotEmpty(t, receipt.TxHash)
	assert.Equal(t, MethodRegisterAccount, receipt.Method)
	assert.Equal(t, uint64(1), receipt.BlockIndex)

	ev, ok := receipt.FindEvent(EventAccountRegistered)
	require.True(t, ok)
	assert.Equal(t, AccountRegistered{AccountID: "u1", Role: "producer", TxAddress: "NXaddr"}, ev.Payload)
	assert.Equal(t, receipt.TxHash, ev.TxHash)
}

func TestExecutePreflightRejection(t *testing.T) {
	sim := NewSimulated()
	sim.RejectNext(MethodSubmitAsset, "asset already exists")
	gw := newTestGateway(sim)

	_, err := gw.SubmitAsset(context.Background(), "u1", "a1")
	require.Error(t, err)
	assert.True(t, apperrors.IsLedgerRejected(err))
	assert.False(t, apperrors.IsLedgerTimeout(err))
	assert.Equal(t, 1, sim.Calls(MethodSubmitAsset))

	// the hook only applies once
	_, err = gw.SubmitAsset(context.Background(), "u1", "a1")
	require.NoError(t, err)
}

func TestExecuteFaultCarriesHash(t *testing.T) {
	sim := NewSimulated()
	sim.FaultOnExecution(MethodRegisterAccount, "ASSERT failed")
	gw := newTestGateway(sim)

	_, err := gw.RegisterAccount(context.Background(), "u1", "consumer", "NXaddr")
	require.Error(t, err)
	assert.True(t, apperrors.IsLedgerRejected(err))

	svcErr := apperrors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.NotEmpty(t, svcErr.Details["tx_hash"])

	registered, err := gw.IsRegistered(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, registered)
}

func TestExecuteNeverFinalTimesOut(t *testing.T) {
	sim := NewSimulated()
	sim.SetPending(MethodSubmitAsset, -1)
	gw := newTestGateway(sim)

	_, err := gw.SubmitAsset(context.Background(), "u1", "a1")
	require.Error(t, err)
	assert.True(t, apperrors.IsLedgerTimeout(err))
	assert.False(t, apperrors.IsLedgerRejected(err))

	pending := sim.PendingTransactions()
	require.Len(t, pending, 1)
	assert.Equal(t, pending[0], apperrors.GetServiceError(err).Details["tx_hash"])
}

func TestExecuteDelayedFinality(t *testing.T) {
	sim := NewSimulated()
	sim.SetPending(MethodSubmitAsset, 3)
	gw := newTestGateway(sim)

	receipt, err := gw.SubmitAsset(context.Background(), "u1", "a1")
	require.NoError(t, err)
	assert.True(t, receipt.Confirmed)
	_, ok := receipt.FindEvent(EventAssetSubmitted)
	assert.True(t, ok)
}

func TestExecuteCancelledBeforeSubmit(t *testing.T) {
	sim := NewSimulated()
	gw := newTestGateway(sim)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.RegisterAccount(ctx, "u1", "consumer", "NXaddr")
	require.Error(t, err)
	assert.True(t, apperrors.IsPreconditionFailed(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, sim.Calls(MethodRegisterAccount))
}

func TestExecuteSurvivesCancelAfterSubmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &scriptedBackend{
		submit: func(context.Context, Call) (string, error) {
			cancel()
			return "0xabc", nil
		},
	}
	backend.lookup = func(ctx context.Context, txHash string) (*Finality, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if backend.lookups < 3 {
			return nil, ErrTxUnknown
		}
		return &Finality{TxHash: txHash, VMState: chain.VMStateHalt, BlockIndex: 7}, nil
	}
	gw := newTestGateway(backend)

	receipt, err := gw.Execute(ctx, Call{Contract: ContractAccounts, Method: MethodUpdateLastActive})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", receipt.TxHash)
	assert.Equal(t, uint64(7), receipt.BlockIndex)
	assert.Error(t, ctx.Err())
}

func TestExecuteUnknownBroadcastIsTimeout(t *testing.T) {
	gw := newTestGateway(&scriptedBackend{
		submit: func(context.Context, Call) (string, error) {
			return "0xdead", errors.New("connection reset by peer")
		},
	})

	_, err := gw.Execute(context.Background(), Call{Contract: ContractCredits, Method: MethodBuyCredits})
	require.Error(t, err)
	assert.True(t, apperrors.IsLedgerTimeout(err))
	assert.Equal(t, "0xdead", apperrors.GetServiceError(err).Details["tx_hash"])
}

func TestExecuteSubmitErrorWithoutHashIsRejected(t *testing.T) {
	gw := newTestGateway(&scriptedBackend{
		submit: func(context.Context, Call) (string, error) {
			return "", errors.New("preflight failed")
		},
	})

	_, err := gw.Execute(context.Background(), Call{Contract: ContractCredits, Method: MethodBuyCredits})
	require.Error(t, err)
	assert.True(t, apperrors.IsLedgerRejected(err))
}

func TestReadErrorMapping(t *testing.T) {
	gw := newTestGateway(&scriptedBackend{
		query: func(_ context.Context, call Call) ([]chain.StackItem, error) {
			if call.Method == MethodGetCertificateByID {
				return nil, &RejectedError{Method: call.Method, Reason: "not found"}
			}
			return nil, errors.New("dial tcp: refused")
		},
	})

	_, err := gw.GetCertificateByID(context.Background(), nil)
	assert.True(t, apperrors.IsLedgerRejected(err))

	_, err = gw.GetTotalSold(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUpstream, apperrors.GetServiceError(err).Code)
}

func TestReadMalformedResult(t *testing.T) {
	gw := newTestGateway(&scriptedBackend{
		query: func(context.Context, Call) ([]chain.StackItem, error) {
			return []chain.StackItem{chain.NewArrayItem()}, nil
		},
	})

	_, err := gw.IsRegistered(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUpstream, apperrors.GetServiceError(err).Code)
}

func TestCheckTransaction(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated()
	gw := newTestGateway(sim)

	status, _, err := gw.CheckTransaction(ctx, "0xmissing")
	require.NoError(t, err)
	assert.Equal(t, TxUnknown, status)

	sim.SetPending(MethodSubmitAsset, -1)
	_, err = gw.SubmitAsset(ctx, "u1", "a1")
	require.True(t, apperrors.IsLedgerTimeout(err))
	txHash := sim.PendingTransactions()[0]

	status, _, err = gw.CheckTransaction(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, TxUnknown, status)

	sim.Release(txHash)
	status, fin, err := gw.CheckTransaction(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, TxLanded, status)
	assert.Len(t, fin.Events, 1)

	sim.FaultOnExecution(MethodUpdateLastActive, "boom")
	_, err = gw.UpdateLastActive(ctx, "u1")
	faulted := apperrors.GetServiceError(err).Details["tx_hash"].(string)
	status, _, err = gw.CheckTransaction(ctx, faulted)
	require.NoError(t, err)
	assert.Equal(t, TxFaulted, status)
}
