package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
)

// Defaults for the finality wait.
const (
	DefaultFinalityTimeout = chain.DefaultTxWaitTimeout
	DefaultPollInterval    = time.Second
)

// GatewayConfig configures the gateway.
type GatewayConfig struct {
	FinalityTimeout time.Duration
	PollInterval    time.Duration
}

// Gateway executes ledger calls and translates failures into the service
// error taxonomy. It holds no per-call state and is safe for concurrent use.
type Gateway struct {
	backend Backend
	timeout time.Duration
	poll    time.Duration
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewGateway creates a gateway over backend. logger and m may be nil.
func NewGateway(backend Backend, cfg GatewayConfig, logger *logging.Logger, m *metrics.Metrics) *Gateway {
	if cfg.FinalityTimeout <= 0 {
		cfg.FinalityTimeout = DefaultFinalityTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = logging.NewDiscard("ledger")
	}
	return &Gateway{
		backend: backend,
		timeout: cfg.FinalityTimeout,
		poll:    cfg.PollInterval,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Backend returns the underlying backend.
func (g *Gateway) Backend() Backend {
	return g.backend
}

// Execute submits a mutating call and blocks until finality or the bound.
//
// Cancellation of ctx is honoured only before submission. Once the call is
// handed to the backend the wait runs on a context detached from ctx, so a
// caller that goes away cannot strand a submitted transaction.
func (g *Gateway) Execute(ctx context.Context, call Call) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.PreconditionFailedCause("request cancelled before submission", err)
	}

	start := time.Now()
	wctx := context.WithoutCancel(ctx)

	txHash, err := g.backend.Submit(wctx, call)
	if err != nil {
		if txHash != "" && !IsRejected(err) {
			// broadcast outcome unknown: treat like a finality timeout
			g.record(wctx, call, txHash, "timeout", start)
			return nil, apperrors.LedgerTimeout(call.Method, txHash, err)
		}
		g.record(wctx, call, "", "rejected", start)
		return nil, apperrors.LedgerRejected(call.Method, err)
	}

	fin, err := g.await(wctx, txHash)
	if err != nil {
		g.record(wctx, call, txHash, "timeout", start)
		return nil, apperrors.LedgerTimeout(call.Method, txHash, err)
	}
	g.metrics.ObserveFinality(call.Method, time.Since(start))

	if fin.Faulted() {
		g.record(wctx, call, txHash, "rejected", start)
		return nil, apperrors.LedgerRejected(call.Method, fmt.Errorf("execution %s: %s", fin.VMState, fin.Exception)).
			WithDetails("tx_hash", txHash)
	}

	g.record(wctx, call, txHash, "confirmed", start)
	return fin.Receipt(call.Method, g.now().UTC()), nil
}

// await polls Lookup until the transaction lands or the finality bound passes.
func (g *Gateway) await(ctx context.Context, txHash string) (*Finality, error) {
	wctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	var lastErr error
	for {
		fin, err := g.backend.Lookup(wctx, txHash)
		if err == nil {
			return fin, nil
		}
		if !errors.Is(err, ErrTxUnknown) {
			lastErr = err
		}

		select {
		case <-wctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("finality not observed within %s: %w", g.timeout, lastErr)
			}
			return nil, fmt.Errorf("finality not observed within %s: %w", g.timeout, wctx.Err())
		case <-ticker.C:
		}
	}
}

// Read runs a read-only invocation.
func (g *Gateway) Read(ctx context.Context, call Call) ([]chain.StackItem, error) {
	stack, err := g.backend.Query(ctx, call)
	if err != nil {
		g.metrics.RecordLedgerCall(call.Method, "read_error")
		if IsRejected(err) {
			return nil, apperrors.LedgerRejected(call.Method, err)
		}
		return nil, apperrors.Upstream("ledger", fmt.Errorf("%s: %w", call, err))
	}
	g.metrics.RecordLedgerCall(call.Method, "read")
	return stack, nil
}

// readOne runs Read and returns the first stack item.
func (g *Gateway) readOne(ctx context.Context, call Call) (chain.StackItem, error) {
	stack, err := g.Read(ctx, call)
	if err != nil {
		return chain.StackItem{}, err
	}
	item, err := chain.FirstStackItem(stack)
	if err != nil {
		return chain.StackItem{}, apperrors.Upstream("ledger", fmt.Errorf("%s: %w", call, err))
	}
	return item, nil
}

// CheckTransaction re-checks a previously submitted transaction.
func (g *Gateway) CheckTransaction(ctx context.Context, txHash string) (TxStatus, *Finality, error) {
	fin, err := g.backend.Lookup(ctx, txHash)
	if err != nil {
		if errors.Is(err, ErrTxUnknown) {
			return TxUnknown, nil, nil
		}
		return TxUnknown, nil, apperrors.Upstream("ledger", err)
	}
	if fin.Faulted() {
		return TxFaulted, fin, nil
	}
	return TxLanded, fin, nil
}

func (g *Gateway) record(ctx context.Context, call Call, txHash, outcome string, start time.Time) {
	g.metrics.RecordLedgerCall(call.Method, outcome)
	g.logger.LogLedgerCall(ctx, call.String(), txHash, outcome, time.Since(start))
}

func parseErr(call Call, err error) error {
	return apperrors.Upstream("ledger", fmt.Errorf("parse %s result: %w", call, err))
}
