package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig configures exponential backoff retries.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig mirrors a conservative exponential-backoff default.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ErrRetriesExhausted wraps the last error observed once MaxAttempts is
// spent.
type ErrRetriesExhausted struct {
	Attempts int
	Last     error
}

func (e *ErrRetriesExhausted) Error() string {
	return fmt.Sprintf("resilience: %d retry attempts exhausted: %v", e.Attempts, e.Last)
}

func (e *ErrRetriesExhausted) Unwrap() error { return e.Last }

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff,
// using backoff/v5's ExponentialBackOff as the delay sequence generator in
// place of a hand-rolled math.Sin jitter.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialDelay
	bo.MaxInterval = cfg.MaxDelay
	bo.Multiplier = cfg.BackoffFactor
	if bo.Multiplier <= 1 {
		bo.Multiplier = 2.0
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := bo.NextBackOff()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &ErrRetriesExhausted{Attempts: cfg.MaxAttempts, Last: lastErr}
}

// RetryWithCircuitBreaker combines Retry with a CircuitBreaker, failing fast
// once the breaker opens instead of spending the retry budget against a
// known-down provider.
func RetryWithCircuitBreaker(ctx context.Context, cfg RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, cfg, func() error {
		return cb.Execute(ctx, fn)
	})
}

// WithRetries runs fn (returning a typed result) under Retry and converts
// exhaustion into an escalation value via onEscalate instead of
// propagating the error — the `run_with_retries` helper from spec.md §4.3,
// used by every DMA evaluator so exhaustion becomes a designed fallback,
// not a panic.
func WithRetries[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error), onEscalate func(error) T) T {
	var result T
	var lastErr error
	ok := false

	err := Retry(ctx, cfg, func() error {
		r, err := fn()
		if err != nil {
			lastErr = err
			return err
		}
		result = r
		ok = true
		return nil
	})
	if err != nil {
		lastErr = err
	}
	if !ok {
		return onEscalate(lastErr)
	}
	return result
}
