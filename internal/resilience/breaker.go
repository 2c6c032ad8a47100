// Package resilience implements the Circuit Breaker of spec.md §4.A and an
// alternate gobreaker-backed implementation of the same contract, both
// grounded on the teacher's infrastructure/resilience package (the
// hand-rolled circuit_breaker.go and its gobreaker/cenkalti-backoff
// rewrite, resilience.go).
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/automation-core/internal/apperr"
)

// State is one of the breaker's three states (spec.md §3, §4.A).
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config parameterizes a Breaker exactly as spec.md §3 names the fields:
// failure_threshold, success_threshold, call_timeout, reset_timeout.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	CallTimeout      time.Duration
	ResetTimeout     time.Duration
	OnStateChange    func(name string, from, to State)
}

// DefaultConfig mirrors the teacher's resilience.DefaultConfig sizing.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CallTimeout:      10 * time.Second,
		ResetTimeout:     30 * time.Second,
	}
}

// Breaker is the interface both the hand-rolled state machine and the
// gobreaker-backed adapter satisfy, so the event bus's publish breaker can
// be configured with either backend. The action executor's collaborator
// calls do not go through a Breaker.
type Breaker interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
	State() State
}

// CircuitBreaker is the hand-rolled three-state machine described in
// §4.A, with all fields of the spec's CircuitBreaker entity (§3).
type CircuitBreaker struct {
	name   string
	cfg    Config
	mu     sync.Mutex
	state  State

	failureCount         int
	successCount         int
	consecutiveSuccesses int
	lastStateChange      time.Time
	nextAttemptTime      time.Time
	totalRequests        int64
}

// New constructs a CircuitBreaker in the closed state.
func New(name string, cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{name: name, cfg: cfg, state: StateClosed, lastStateChange: time.Now()}
}

// State returns the current state without mutating it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute wraps fn in the call timeout and the breaker's admission check,
// per §4.A. Every failure counts against the failure threshold except
// Validation, Integration, Auth and NotFound errors, which pass through
// without tripping the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.cfg.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	var err error
	select {
	case <-callCtx.Done():
		err = apperr.New(apperr.KindTimeout, "call timeout exceeded")
	case err = <-done:
		if err == nil && callCtx.Err() != nil {
			err = apperr.New(apperr.KindTimeout, "call timeout exceeded")
		}
	}

	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	switch cb.state {
	case StateOpen:
		if time.Now().Before(cb.nextAttemptTime) {
			return apperr.New(apperr.KindCircuitOpen, "circuit breaker "+cb.name+" is open")
		}
		cb.setState(StateHalfOpen)
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.onSuccess()
		return
	}

	// Non-retryable errors (4xx/validation) never count toward the trip
	// threshold: they indicate a client fault, not an infrastructure one.
	if !isCountedFailure(err) {
		return
	}
	cb.onFailure()
}

func isCountedFailure(err error) bool {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindValidation, apperr.KindIntegration, apperr.KindAuth, apperr.KindNotFound:
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.consecutiveSuccesses++
		cb.successCount++
		if cb.consecutiveSuccesses >= cb.cfg.SuccessThreshold {
			cb.setState(StateClosed)
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen)
		}
	}
}

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.lastStateChange = time.Now()
	cb.failureCount = 0
	cb.successCount = 0
	cb.consecutiveSuccesses = 0

	if next == StateOpen {
		cb.nextAttemptTime = time.Now().Add(cb.cfg.ResetTimeout)
	}

	if cb.cfg.OnStateChange != nil {
		go cb.cfg.OnStateChange(cb.name, prev, next)
	}
}

// Snapshot exposes the spec's CircuitBreaker entity fields (§3) for the
// Observability core's gauges and operator endpoints.
type Snapshot struct {
	State                 State
	FailureCount          int
	SuccessCount          int
	ConsecutiveSuccesses  int
	LastStateChange       time.Time
	NextAttemptTime       time.Time
	TotalRequests         int64
}

// Snapshot returns a point-in-time copy of the breaker's counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		State:                cb.state,
		FailureCount:         cb.failureCount,
		SuccessCount:         cb.successCount,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		LastStateChange:      cb.lastStateChange,
		NextAttemptTime:      cb.nextAttemptTime,
		TotalRequests:        cb.totalRequests,
	}
}

var _ Breaker = (*CircuitBreaker)(nil)
