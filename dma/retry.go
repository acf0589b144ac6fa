package dma

import (
	"context"

	"github.com/ciris-ai/ciris-agent/resilience"
)

// EvaluateWithRetries runs one of the three initial evaluators under
// run_with_retries semantics (spec.md §4.3): on exhaustion it returns a nil
// verdict and the last error rather than propagating a panic, so the
// DMAOrchestrator can record it under DMAResults.errors and carry on with
// degraded input.
func EvaluateWithRetries(ctx context.Context, cfg resilience.RetryConfig, evaluate func(context.Context) (Verdict, error)) (*Verdict, error) {
	var lastErr error
	v := resilience.WithRetries(ctx, cfg, func() (*Verdict, error) {
		verdict, err := evaluate(ctx)
		if err != nil {
			return nil, err
		}
		return &verdict, nil
	}, func(err error) *Verdict {
		lastErr = err
		return nil
	})
	if v == nil {
		return nil, lastErr
	}
	return v, nil
}
