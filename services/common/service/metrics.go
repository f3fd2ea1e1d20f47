package service

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
)

// Outcome classifies how an orchestrated operation finished.
type Outcome string

const (
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomeDrift        Outcome = "drift"
	OutcomeRejected     Outcome = "rejected"
	OutcomeTimeout      Outcome = "timeout"
	OutcomePrecondition Outcome = "precondition"
	OutcomeFailed       Outcome = "failed"
)

// OutcomeOf maps an operation error to its Outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeConfirmed
	case apperrors.IsProjectionDrift(err):
		return OutcomeDrift
	case apperrors.IsLedgerRejected(err):
		return OutcomeRejected
	case apperrors.IsLedgerTimeout(err):
		return OutcomeTimeout
	case apperrors.IsPreconditionFailed(err):
		return OutcomePrecondition
	default:
		return OutcomeFailed
	}
}

// =============================================================================
// Operation Stats
// =============================================================================

// OperationStats counts operation outcomes for a service's /info statistics.
type OperationStats struct {
	mu sync.RWMutex

	counts map[string]map[Outcome]*atomic.Int64

	// Latency tracking (simple histogram buckets)
	latencyBuckets map[string]*atomic.Int64 // <10ms, <100ms, <1s, <10s, >10s

	startTime time.Time
}

// NewOperationStats creates an empty collector.
func NewOperationStats() *OperationStats {
	return &OperationStats{
		counts: make(map[string]map[Outcome]*atomic.Int64),
		latencyBuckets: map[string]*atomic.Int64{
			"lt_10ms":  {},
			"lt_100ms": {},
			"lt_1s":    {},
			"lt_10s":   {},
			"gt_10s":   {},
		},
		startTime: time.Now(),
	}
}

// Record counts one finished operation.
func (m *OperationStats) Record(op string, duration time.Duration, err error) Outcome {
	outcome := OutcomeOf(err)
	m.counter(op, outcome).Add(1)
	m.recordLatency(duration)
	return outcome
}

func (m *OperationStats) counter(op string, outcome Outcome) *atomic.Int64 {
	m.mu.RLock()
	c, ok := m.counts[op][outcome]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	byOutcome, ok := m.counts[op]
	if !ok {
		byOutcome = make(map[Outcome]*atomic.Int64)
		m.counts[op] = byOutcome
	}
	if c, ok = byOutcome[outcome]; !ok {
		c = &atomic.Int64{}
		byOutcome[outcome] = c
	}
	return c
}

// recordLatency records latency in the appropriate bucket.
func (m *OperationStats) recordLatency(d time.Duration) {
	var bucket string
	switch {
	case d < 10*time.Millisecond:
		bucket = "lt_10ms"
	case d < 100*time.Millisecond:
		bucket = "lt_100ms"
	case d < time.Second:
		bucket = "lt_1s"
	case d < 10*time.Second:
		bucket = "lt_10s"
	default:
		bucket = "gt_10s"
	}
	m.latencyBuckets[bucket].Add(1)
}

// Count returns how many times op finished with outcome.
func (m *OperationStats) Count(op string, outcome Outcome) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counts[op][outcome]; ok {
		return c.Load()
	}
	return 0
}

// Export renders the counters for a WithStats provider.
func (m *OperationStats) Export() map[string]any {
	m.mu.RLock()
	ops := make([]string, 0, len(m.counts))
	for op := range m.counts {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	operations := make(map[string]map[string]int64, len(ops))
	for _, op := range ops {
		row := make(map[string]int64, len(m.counts[op]))
		for outcome, c := range m.counts[op] {
			row[string(outcome)] = c.Load()
		}
		operations[op] = row
	}
	m.mu.RUnlock()

	latency := make(map[string]int64, len(m.latencyBuckets))
	for k, v := range m.latencyBuckets {
		latency[k] = v.Load()
	}

	return map[string]any{
		"uptime":          time.Since(m.startTime).String(),
		"operations":      operations,
		"latency_buckets": latency,
	}
}
