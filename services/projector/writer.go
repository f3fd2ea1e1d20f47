package projector

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/amount"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
)

const entityBlock = "ledger_block"

// LedgerReader is the ledger reads the writer projects certificates and
// supply records from.
type LedgerReader interface {
	GetSupply(ctx context.Context, producer, verifier, creditType string) (*ledger.Supply, error)
	GetCertificateByID(ctx context.Context, id *big.Int) (*ledger.Certificate, error)
}

var _ LedgerReader = (*ledger.Gateway)(nil)

// Source delivers event batches starting at a block.
type Source interface {
	Run(ctx context.Context, from uint64, out chan<- ledger.Batch) error
}

var _ Source = (*ledger.Subscriber)(nil)

// WriterConfig wires a Writer.
type WriterConfig struct {
	Ledger    LedgerReader
	Committer *reconcile.Committer
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
}

// Writer is the single consumer of subscriber batches. Per batch it mirrors
// credit events into the event log, writes the ledger's copy of each created
// certificate, refreshes the supply records the batch touched and advances
// the cursor, all as one plan. Reads that fail are deferred to ResolveDeferred.
type Writer struct {
	ledger    LedgerReader
	committer *reconcile.Committer
	store     projection.Store
	logger    *logging.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu      sync.Mutex
	applied uint64
	drifted uint64
	last    uint64
}

// NewWriter creates a Writer.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("projector: ledger is required")
	}
	if cfg.Committer == nil {
		return nil, fmt.Errorf("projector: committer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard("projector")
	}
	return &Writer{
		ledger:    cfg.Ledger,
		committer: cfg.Committer,
		store:     cfg.Committer.Store(),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       time.Now,
	}, nil
}

// Cursor reads the next block to scan. A missing cursor starts at zero.
func (w *Writer) Cursor(ctx context.Context) (uint64, error) {
	var rec projection.CursorRecord
	if err := projection.GetInto(ctx, w.store, projection.Cursor(), &rec); err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	return rec.NextBlock, nil
}

// Run consumes src from the persisted cursor until ctx is done or src stops.
func (w *Writer) Run(ctx context.Context, src Source) error {
	from, err := w.Cursor(ctx)
	if err != nil {
		return err
	}
	return w.RunFrom(ctx, src, from)
}

// RunFrom consumes src starting at block from.
func (w *Writer) RunFrom(ctx context.Context, src Source, from uint64) error {
	batches := make(chan ledger.Batch, 16)
	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx, from, batches) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case b := <-batches:
			if err := w.Apply(ctx, b); err != nil {
				w.logger.Warn(ctx, "batch projected with drift", map[string]interface{}{
					"block": b.Block,
					"error": err.Error(),
				})
			}
		}
	}
}

// Apply projects one batch. A failed certificate or supply read defers
// that write and the batch is reported as drift and returned as
// ProjectionDrift.
func (w *Writer) Apply(ctx context.Context, b ledger.Batch) error {
	now := w.now().UTC()
	plan := reconcile.NewPlan(entityBlock, strconv.FormatUint(b.Block, 10), nil)
	if len(b.Events) > 0 {
		plan.TxHash = b.Events[0].TxHash
	}

	var (
		keys    []ledger.SupplyKey
		seen    = make(map[ledger.SupplyKey]bool)
		lastTx  = make(map[ledger.SupplyKey]string)
		pending = &pendingBatch{Block: b.Block}
		readErr error
	)
	for _, ev := range b.Events {
		if !ledger.IsCreditEvent(ev.Name) {
			continue
		}
		plan.Push(projection.EventLog(ev.Name), eventRecord(ev, now))

		if c, ok := ev.Payload.(ledger.CertificateCreated); ok && c.CertificateID != nil {
			rec, err := w.readCertificate(ctx, c.CertificateID, ev.TxHash, now)
			if err != nil {
				readErr = firstErr(readErr, err)
				pending.Certificates = append(pending.Certificates, pendingCertificate{ID: amount.String(c.CertificateID), TxHash: ev.TxHash})
			} else {
				plan.Set(projection.Certificate(rec.ID), rec)
			}
		}

		if k, ok := ledger.SupplyKeyOf(ev.Payload); ok {
			lastTx[k] = ev.TxHash
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	for _, k := range keys {
		if err := w.planSupply(ctx, plan, k, lastTx[k], b.Block, now); err != nil {
			readErr = firstErr(readErr, err)
			pending.Supply = append(pending.Supply, pendingSupply{Key: k, TxHash: lastTx[k]})
		}
	}

	if !b.Live {
		plan.Set(projection.Cursor(), &projection.CursorRecord{NextBlock: b.Block + 1, UpdatedAt: now})
	}
	if readErr != nil {
		plan.Defer(ResolverBatch, pending, readErr)
	}

	err := w.committer.Commit(ctx, plan)
	w.observe(b, len(plan.Writes()), err)
	return err
}

// readCertificate builds the certificate record from the ledger's copy, so
// the price and timestamp match whatever the orchestrator wrote.
func (w *Writer) readCertificate(ctx context.Context, id *big.Int, txHash string, now time.Time) (*projection.CertificateRecord, error) {
	c, err := w.ledger.GetCertificateByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read certificate %s: %w", id, err)
	}
	rec := &projection.CertificateRecord{
		ID:         id.String(),
		Recipient:  c.Recipient,
		Producer:   c.Producer,
		Verifier:   c.Verifier,
		CreditType: c.CreditType,
		Balance:    amount.String(c.Balance),
		TxHash:     txHash,
		CreatedAt:  now,
	}
	if c.Price != nil {
		rec.Price = c.Price.String()
	}
	if c.Timestamp != nil {
		rec.Timestamp = c.Timestamp.String()
	}
	return rec, nil
}

func (w *Writer) planSupply(ctx context.Context, plan *reconcile.Plan, k ledger.SupplyKey, txHash string, block uint64, now time.Time) error {
	supply, err := w.ledger.GetSupply(ctx, k.Producer, k.Verifier, k.CreditType)
	if err != nil {
		return fmt.Errorf("read supply %s/%s/%s: %w", k.Producer, k.Verifier, k.CreditType, err)
	}
	plan.Set(projection.Supply(k.Producer, k.Verifier, k.CreditType), &projection.SupplyRecord{
		Producer:   k.Producer,
		Verifier:   k.Verifier,
		CreditType: k.CreditType,
		Issued:     amount.String(supply.Issued),
		Available:  amount.String(supply.Available),
		Donated:    amount.String(supply.Donated),
		Sold:       amount.String(supply.Sold()),
		TxHash:     txHash,
		Block:      block,
		UpdatedAt:  now,
	})
	plan.Set(projection.SupplyKey(k.Producer, k.Verifier, k.CreditType), k)
	return nil
}

func firstErr(have, err error) error {
	if have != nil {
		return have
	}
	return err
}

func eventRecord(ev ledger.Event, now time.Time) *projection.EventRecord {
	rec := &projection.EventRecord{
		Name:     ev.Name,
		Contract: string(ev.Contract),
		TxHash:   ev.TxHash,
		Block:    ev.Block,
		Recorded: now,
	}
	if ev.Payload != nil {
		rec.Data = ev.Payload.Fields()
	}
	return rec
}

func (w *Writer) observe(b ledger.Batch, writes int, err error) {
	w.mu.Lock()
	w.applied++
	if err != nil {
		w.drifted++
	}
	if !b.Live {
		w.last = b.Block
	}
	w.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if writes > 0 {
		w.metrics.RecordProjectionWrite("batch", outcome)
	}
}

// Stats reports batch counters.
func (w *Writer) Stats() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]any{
		"batches_applied": w.applied,
		"batches_drifted": w.drifted,
		"last_block":      w.last,
	}
}
