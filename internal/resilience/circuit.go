// Package resilience provides the per-run circuit breaker, retry, and error
// classification used around external service calls.
package resilience

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state; calls flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the guarded dependency is exhausted for this run;
	// calls are rejected immediately at zero cost.
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive non-rate-limit failures
	// before opening the circuit. Default: 3.
	FailureThreshold int

	// ShouldTrip optionally overrides which errors count toward the failure
	// threshold. If nil, every non-nil error counts.
	ShouldTrip func(err error) bool

	// IsRateLimit optionally overrides rate-limit detection. A rate-limit
	// error opens the circuit immediately regardless of the threshold.
	// If nil, IsRateLimit from this package is used.
	IsRateLimit func(err error) bool

	// OnStateChange is called once, when the circuit transitions to open.
	OnStateChange func(from, to CircuitState, reason string)
}

// CircuitBreaker guards one dependency for the lifetime of one run.
//
// The state machine is deliberately monotonic: Closed transitions to Open on
// a single rate-limit signal or after FailureThreshold consecutive failures,
// and Open is terminal. There is no half-open probe and no reset timeout; a
// fresh run constructs a fresh breaker, which starts Closed. Concurrent
// workers share one instance, and since the only transition is one-way, the
// worst concurrent outcome is redundant failure counting, never an
// inconsistent read.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	reason              string
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.IsRateLimit == nil {
		cfg.IsRateLimit = IsRateLimit
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == CircuitClosed
}

// Execute runs fn through the circuit breaker. It returns ErrCircuitOpen
// without invoking fn when the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	cb.Record(err)
	return err
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !cb.Allow() {
		return zero, ErrCircuitOpen
	}
	val, err := fn(ctx)
	cb.Record(err)
	return val, err
}

// Record feeds one call outcome into the breaker. A nil error clears the
// consecutive-failure count; a rate-limit error opens the circuit at once;
// other qualifying errors open it when the threshold is reached.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		return
	}

	if err == nil {
		cb.consecutiveFailures = 0
		return
	}

	if cb.cfg.IsRateLimit(err) {
		cb.trip("rate limited")
		return
	}

	shouldTrip := cb.cfg.ShouldTrip
	if shouldTrip == nil {
		shouldTrip = func(e error) bool { return e != nil }
	}
	if !shouldTrip(err) {
		return
	}

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
		cb.trip("failure threshold reached")
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Tripped reports whether the circuit opened during this run.
func (cb *CircuitBreaker) Tripped() bool {
	return cb.State() == CircuitOpen
}

// Counters returns the consecutive failure count, state, and trip reason
// for observability.
func (cb *CircuitBreaker) Counters() (consecutiveFailures int, state CircuitState, reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures, cb.state, cb.reason
}

// trip transitions to open. Caller holds the lock.
func (cb *CircuitBreaker) trip(reason string) {
	if cb.state == CircuitOpen {
		return
	}
	cb.state = CircuitOpen
	cb.reason = reason
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(CircuitClosed, CircuitOpen, reason)
	}
}
