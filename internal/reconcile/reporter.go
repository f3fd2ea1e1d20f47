package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
)

// Reporter receives reconciliation records.
type Reporter interface {
	Report(ctx context.Context, rec Record) error
}

// =============================================================================
// Log Reporter
// =============================================================================

// LogReporter logs every record and counts it.
type LogReporter struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewLogReporter creates a LogReporter. m may be nil.
func NewLogReporter(logger *logging.Logger, m *metrics.Metrics) *LogReporter {
	if logger == nil {
		logger = logging.NewDiscard("reconcile")
	}
	return &LogReporter{logger: logger, metrics: m}
}

func (r *LogReporter) Report(ctx context.Context, rec Record) error {
	r.metrics.RecordReconcile(string(rec.Kind), rec.EntityType)
	r.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"record_id":   rec.ID,
		"kind":        rec.Kind,
		"entity_type": rec.EntityType,
		"entity_id":   rec.EntityID,
		"tx_hash":     rec.TxHash,
		"writes":      len(rec.Writes),
		"error":       rec.Error,
	}).Warn("reconciliation record")
	return nil
}

// =============================================================================
// Queue Reporter
// =============================================================================

// QueueReporter persists records under reconciliation/records for the
// repair job. Give it a store other than the one whose writes failed where
// one is available.
type QueueReporter struct {
	store projection.Store
}

// NewQueueReporter creates a QueueReporter over store.
func NewQueueReporter(store projection.Store) *QueueReporter {
	return &QueueReporter{store: store}
}

func (q *QueueReporter) Report(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("reconciliation record has no id")
	}
	if err := q.store.Set(ctx, projection.ReconciliationRecord(rec.ID), rec); err != nil {
		return fmt.Errorf("queue record %s: %w", rec.ID, err)
	}
	return nil
}

// Update overwrites a record, stamping UpdatedAt.
func (q *QueueReporter) Update(ctx context.Context, rec Record) error {
	rec.UpdatedAt = time.Now().UTC()
	return q.Report(ctx, rec)
}

// Get returns one record.
func (q *QueueReporter) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := projection.GetInto(ctx, q.store, projection.ReconciliationRecord(id), &rec)
	return rec, err
}

// List returns records ordered by id (creation order), optionally filtered
// by status. An empty status returns every record.
func (q *QueueReporter) List(ctx context.Context, status Status) ([]Record, error) {
	entries, err := q.store.List(ctx, projection.ReconciliationRecords())
	if err != nil {
		return nil, fmt.Errorf("list reconciliation records: %w", err)
	}
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		var rec Record
		if err := e.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode reconciliation record %s: %w", e.Key, err)
		}
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Pending returns the records awaiting repair.
func (q *QueueReporter) Pending(ctx context.Context) ([]Record, error) {
	return q.List(ctx, StatusPending)
}

// =============================================================================
// Fan-out
// =============================================================================

// MultiReporter reports to every reporter and joins their errors.
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, rec Record) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Reporter = (*LogReporter)(nil)
	_ Reporter = (*QueueReporter)(nil)
	_ Reporter = MultiReporter(nil)
)
