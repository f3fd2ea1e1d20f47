package projection

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
)

// =============================================================================
// Retry Configuration
// =============================================================================

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first
	MaxRetries int
	// InitialBackoff is the first backoff duration
	InitialBackoff time.Duration
	// MaxBackoff caps the backoff
	MaxBackoff time.Duration
	// BackoffMultiplier grows the backoff per attempt
	BackoffMultiplier float64
	// Jitter adds randomness to backoff (0.0 to 1.0)
	Jitter float64
}

// DefaultRetryConfig returns the retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// =============================================================================
// Circuit Breaker
// =============================================================================

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failed operations before opening
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes needed to close
	SuccessThreshold int
	// Timeout is how long the circuit stays open before half-opening
	Timeout time.Duration
	// OnStateChange is called when the circuit state changes
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the breaker defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	mu sync.Mutex

	config CircuitBreakerConfig
	state  CircuitState
	now    func() time.Time

	failures  int
	successes int
	lastError error
	openedAt  time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// ErrCircuitOpen is returned while the projection circuit is open.
var ErrCircuitOpen = errors.New("projection circuit breaker is open")

// Allow checks if an operation may proceed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) > cb.config.Timeout {
			cb.transitionTo(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess records a successful operation.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a failed operation.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastError = err

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	oldState := cb.state
	cb.state = newState

	switch newState {
	case CircuitClosed:
		cb.failures = 0
		cb.successes = 0
	case CircuitOpen:
		cb.openedAt = cb.now()
		cb.successes = 0
	case CircuitHalfOpen:
		cb.successes = 0
	}

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(oldState, newState)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// LastError returns the last recorded error.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastError
}

// =============================================================================
// Resilient Store
// =============================================================================

// ResilientConfig configures a Resilient store.
type ResilientConfig struct {
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig
}

// Resilient decorates a Store with retries and a circuit breaker, and records
// write outcomes. ErrNotFound and context errors are never retried.
type Resilient struct {
	inner   Store
	retry   RetryConfig
	breaker *CircuitBreaker
	metrics *metrics.Metrics
}

var _ Store = (*Resilient)(nil)

// NewResilient wraps inner. m may be nil.
func NewResilient(inner Store, cfg ResilientConfig, m *metrics.Metrics) *Resilient {
	if cfg.Retry.BackoffMultiplier <= 0 {
		cfg.Retry.BackoffMultiplier = 2.0
	}
	return &Resilient{
		inner:   inner,
		retry:   cfg.Retry,
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		metrics: m,
	}
}

// CircuitState returns the breaker state.
func (r *Resilient) CircuitState() CircuitState {
	return r.breaker.State()
}

// Unwrap returns the decorated store.
func (r *Resilient) Unwrap() Store {
	return r.inner
}

func (r *Resilient) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.Get(ctx, path)
		return err
	})
	return out, err
}

func (r *Resilient) Set(ctx context.Context, path string, value interface{}) error {
	err := r.do(ctx, func() error { return r.inner.Set(ctx, path, value) })
	r.recordWrite("set", err)
	return err
}

// Push retries the append. A retry after an ambiguous failure may append a
// second child; readers of pushed lists key on tx hash.
func (r *Resilient) Push(ctx context.Context, path string, value interface{}) (string, error) {
	var key string
	err := r.do(ctx, func() error {
		var err error
		key, err = r.inner.Push(ctx, path, value)
		return err
	})
	r.recordWrite("push", err)
	return key, err
}

func (r *Resilient) List(ctx context.Context, path string) ([]Entry, error) {
	var out []Entry
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.List(ctx, path)
		return err
	})
	return out, err
}

func (r *Resilient) Delete(ctx context.Context, path string) error {
	err := r.do(ctx, func() error { return r.inner.Delete(ctx, path) })
	r.recordWrite("delete", err)
	return err
}

func (r *Resilient) do(ctx context.Context, op func() error) error {
	if err := r.breaker.Allow(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				r.breaker.RecordFailure(lastErr)
				return lastErr
			case <-time.After(r.calculateBackoff(attempt)):
			}
		}

		lastErr = op()
		if lastErr == nil || errors.Is(lastErr, ErrNotFound) {
			r.breaker.RecordSuccess()
			return lastErr
		}
		if !isRetryable(lastErr) {
			break
		}
	}
	r.breaker.RecordFailure(lastErr)
	return lastErr
}

func (r *Resilient) calculateBackoff(attempt int) time.Duration {
	backoff := float64(r.retry.InitialBackoff) * math.Pow(r.retry.BackoffMultiplier, float64(attempt-1))

	if r.retry.MaxBackoff > 0 && backoff > float64(r.retry.MaxBackoff) {
		backoff = float64(r.retry.MaxBackoff)
	}
	if r.retry.Jitter > 0 {
		backoff += backoff * r.retry.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(backoff)
}

func isRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (r *Resilient) recordWrite(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.metrics.RecordProjectionWrite(op, outcome)
}
