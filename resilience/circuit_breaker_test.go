package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "t", FailureThreshold: 2, CooldownPeriod: 50 * time.Millisecond})
	boom := errors.New("boom")

	require.Error(t, cb.Execute(context.Background(), func() error { return boom }))
	require.Equal(t, StateClosed, cb.State())

	require.Error(t, cb.Execute(context.Background(), func() error { return boom }))
	require.Equal(t, StateOpen, cb.State())

	require.ErrorIs(t, cb.Execute(context.Background(), func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "t", FailureThreshold: 1, CooldownPeriod: 10 * time.Millisecond})
	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("x") }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "t", FailureThreshold: 1, CooldownPeriod: 10 * time.Millisecond})
	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("x") }))
	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("still down") }))
	require.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "t", FailureThreshold: 1, CooldownPeriod: time.Hour})
	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("x") }))
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	require.Equal(t, StateClosed, cb.State())
	require.True(t, cb.CanExecute())
}

func TestCircuitBreaker_ExecuteWithTimeout(t *testing.T) {
	cb := NewCircuitBreaker(DefaultConfig("t"))
	err := cb.ExecuteWithTimeout(context.Background(), 10*time.Millisecond, func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
