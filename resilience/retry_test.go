package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsEventually(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}, func() error {
		attempts++
		return errors.New("permanent")
	})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
	var exhausted *ErrRetriesExhausted
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 2, exhausted.Attempts)
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, DefaultRetryConfig(), func() error { return errors.New("x") })
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithRetries_EscalatesOnExhaustion(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}
	result := WithRetries(context.Background(), cfg, func() (string, error) {
		return "", errors.New("llm unavailable")
	}, func(err error) string {
		return "escalated: " + err.Error()
	})
	require.Contains(t, result, "escalated")
}

func TestWithRetries_ReturnsValueOnSuccess(t *testing.T) {
	result := WithRetries(context.Background(), DefaultRetryConfig(), func() (int, error) {
		return 42, nil
	}, func(error) int { return -1 })
	require.Equal(t, 42, result)
}
