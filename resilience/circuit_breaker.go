// Package resilience provides the circuit breaker and retry/backoff helpers
// shared by the ServiceRegistry and the DMA evaluators' run_with_retries,
// grounded on
// resilience/circuit_breaker.go and resilience/retry.go.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ciris-ai/ciris-agent/telemetry"
)

// ErrCircuitOpen is returned by Execute when the breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker open")

// State is the circuit breaker's current state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config configures a CircuitBreaker.
type Config struct {
	Name string
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit.
	FailureThreshold int
	// CooldownPeriod is how long the circuit stays open before allowing a
	// half-open probe.
	CooldownPeriod time.Duration
	// HalfOpenMaxProbes caps concurrent probes admitted while half-open.
	HalfOpenMaxProbes int
	Logger            telemetry.Logger
}

// DefaultConfig returns production-sensible defaults, matching the
// teacher's DefaultConfig in resilience/circuit_breaker.go.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		FailureThreshold:  5,
		CooldownPeriod:    30 * time.Second,
		HalfOpenMaxProbes: 1,
		Logger:            telemetry.NoOpLogger{},
	}
}

// CircuitBreaker is a per-provider fault-tolerance wrapper: reaching
// Config.FailureThreshold consecutive failures opens the circuit for
// Config.CooldownPeriod, after which a single half-open probe decides
// whether to close again or reopen.
type CircuitBreaker struct {
	cfg Config

	mu               sync.Mutex
	state            State
	consecutiveFails int
	openedAt         time.Time
	halfOpenInFlight int
}

// NewCircuitBreaker constructs a closed breaker.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CooldownPeriod <= 0 {
		cfg.CooldownPeriod = 30 * time.Second
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NoOpLogger{}
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// State returns the current state, transitioning open->half_open first if
// the cooldown has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() State {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.CooldownPeriod {
		cb.transition(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if to == StateHalfOpen {
		cb.halfOpenInFlight = 0
	}
	cb.cfg.Logger.Info("circuit breaker state change", map[string]interface{}{
		"name": cb.cfg.Name, "from": from.String(), "to": to.String(),
	})
}

// CanExecute reports whether a call would be admitted right now, without
// side effects beyond the open->half_open cooldown check.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.stateLocked() {
	case StateClosed:
		return true
	case StateHalfOpen:
		return cb.halfOpenInFlight < cb.cfg.HalfOpenMaxProbes
	default:
		return false
	}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	cb.mu.Lock()
	state := cb.stateLocked()
	if state == StateOpen {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	if state == StateHalfOpen {
		if cb.halfOpenInFlight >= cb.cfg.HalfOpenMaxProbes {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.halfOpenInFlight++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if state == StateHalfOpen {
		cb.halfOpenInFlight--
	}

	if err != nil {
		cb.consecutiveFails++
		if state == StateHalfOpen || cb.consecutiveFails >= cb.cfg.FailureThreshold {
			cb.openedAt = time.Now()
			cb.transition(StateOpen)
		}
		return err
	}

	cb.consecutiveFails = 0
	if state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	return nil
}

// ExecuteWithTimeout runs fn with both circuit breaker protection and a
// deadline, for calls that might hang (spec.md §4.2).
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	return cb.Execute(ctx, func() error {
		done := make(chan error, 1)
		go func() { done <- fn() }()
		select {
		case err := <-done:
			return err
		case <-time.After(timeout):
			return context.DeadlineExceeded
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Reset forces the breaker back to closed, clearing failure counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.transition(StateClosed)
}

// Name returns the breaker's identifying name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }
