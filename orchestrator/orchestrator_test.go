package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-agent/dma"
	"github.com/ciris-ai/ciris-agent/resilience"
	"github.com/ciris-ai/ciris-agent/types"
)

type stubEvaluator struct {
	verdict dma.Verdict
	err     error
}

func (s stubEvaluator) Evaluate(ctx context.Context, in dma.Input) (dma.Verdict, error) {
	return s.verdict, s.err
}

type stubActionSelector struct {
	result types.ActionSelectionResult
	err    error
	seen   dma.ActionSelectionInput
}

func (s *stubActionSelector) Evaluate(ctx context.Context, in dma.ActionSelectionInput) (types.ActionSelectionResult, error) {
	s.seen = in
	return s.result, s.err
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 1, InitialDelay: 0, MaxDelay: 0, BackoffFactor: 2}
}

func TestRunInitialDMAs_AllHealthy(t *testing.T) {
	o := New(
		stubEvaluator{verdict: dma.Verdict{Decision: "approve"}},
		stubEvaluator{verdict: dma.Verdict{Decision: "plausible"}},
		&stubActionSelector{},
	)
	o.RetryConfig = fastRetry()

	results := o.RunInitialDMAs(context.Background(), dma.Input{Thought: &types.Thought{ID: "t1"}})
	require.NotNil(t, results.Ethical)
	require.Equal(t, "approve", results.Ethical.Decision)
	require.NotNil(t, results.CommonSense)
	require.Nil(t, results.DomainSpecific)
	require.Empty(t, results.Errors)
}

func TestRunInitialDMAs_PartialFailureToleratedAndActionSelectionStillRuns(t *testing.T) {
	o := New(
		stubEvaluator{verdict: dma.Verdict{Decision: "approve"}},
		stubEvaluator{verdict: dma.Verdict{Decision: "plausible"}},
		&stubActionSelector{result: types.ActionSelectionResult{SelectedAction: types.ActionSpeak}},
	)
	o.DomainSpecific = stubEvaluator{err: errors.New("domain dma down")}
	o.RetryConfig = fastRetry()

	input := dma.Input{Thought: &types.Thought{ID: "t1"}}
	results := o.RunInitialDMAs(context.Background(), input)
	require.Nil(t, results.DomainSpecific)
	require.Len(t, results.Errors, 1)
	require.Contains(t, results.Errors[0], "domain_specific")

	selector := o.ActionSelector.(*stubActionSelector)
	result, err := o.RunActionSelection(context.Background(), results, input)
	require.NoError(t, err)
	require.Equal(t, types.ActionSpeak, result.SelectedAction)
	require.Len(t, selector.seen.Errors, 1)
}

func TestRunInitialDMAs_RecoversFromPanic(t *testing.T) {
	o := New(
		panicEvaluator{},
		stubEvaluator{verdict: dma.Verdict{Decision: "plausible"}},
		&stubActionSelector{},
	)
	o.RetryConfig = fastRetry()

	results := o.RunInitialDMAs(context.Background(), dma.Input{Thought: &types.Thought{ID: "t1"}})
	require.Nil(t, results.Ethical)
	require.NotEmpty(t, results.Errors)
}

type panicEvaluator struct{}

func (panicEvaluator) Evaluate(ctx context.Context, in dma.Input) (dma.Verdict, error) {
	panic("simulated evaluator crash")
}
