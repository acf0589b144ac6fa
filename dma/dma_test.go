package dma

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-agent/bus"
	"github.com/ciris-ai/ciris-agent/registry"
	"github.com/ciris-ai/ciris-agent/resilience"
	"github.com/ciris-ai/ciris-agent/types"
)

type fakeLLM struct {
	response map[string]interface{}
	err      error
	calls    int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, schema interface{}) (map[string]interface{}, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func newBusWithLLM(llm *fakeLLM) *bus.Bus {
	reg := registry.New(8)
	reg.Register(registry.Registration{ServiceType: "llm", Provider: llm, Priority: registry.PriorityNormal, Scope: registry.GlobalScope()})
	return bus.New(reg, nil)
}

func TestActionSelection_ForcedPonderOnLiteralCommand(t *testing.T) {
	llm := &fakeLLM{}
	selector := NewLLMActionSelector(newBusWithLLM(llm), "action_selection_handler")

	result, err := selector.Evaluate(context.Background(), ActionSelectionInput{
		Context: types.ThoughtContext{TaskDescription: "Ponder"},
	})
	require.NoError(t, err)
	require.Equal(t, types.ActionPonder, result.SelectedAction)
	require.Equal(t, 0, llm.calls)
}

func TestActionSelection_ParsesLLMResponse(t *testing.T) {
	llm := &fakeLLM{response: map[string]interface{}{
		"selected_action":   "SPEAK",
		"action_parameters": map[string]interface{}{"content": "hi"},
		"rationale":         "greet the user",
	}}
	selector := NewLLMActionSelector(newBusWithLLM(llm), "action_selection_handler")

	result, err := selector.Evaluate(context.Background(), ActionSelectionInput{
		Context: types.ThoughtContext{TaskDescription: "say hi"},
	})
	require.NoError(t, err)
	require.Equal(t, types.ActionSpeak, result.SelectedAction)
	require.Equal(t, "hi", result.ActionParameters["content"])
}

func TestActionSelection_FallsBackToPonderOnFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("llm unavailable")}
	selector := NewLLMActionSelector(newBusWithLLM(llm), "action_selection_handler")
	selector.RetryConfig = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: 0, MaxDelay: 0, BackoffFactor: 2}

	result, err := selector.Evaluate(context.Background(), ActionSelectionInput{
		Context: types.ThoughtContext{TaskDescription: "do something"},
	})
	require.NoError(t, err)
	require.Equal(t, types.ActionPonder, result.SelectedAction)
	require.Equal(t, 2, llm.calls)
}

func TestEvaluateWithRetries_SucceedsEventually(t *testing.T) {
	attempts := 0
	cfg := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 0, MaxDelay: 0, BackoffFactor: 2}
	v, err := EvaluateWithRetries(context.Background(), cfg, func(ctx context.Context) (Verdict, error) {
		attempts++
		if attempts < 2 {
			return Verdict{}, errors.New("transient")
		}
		return Verdict{Decision: "approve"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "approve", v.Decision)
}

func TestEvaluateWithRetries_ExhaustsToNil(t *testing.T) {
	cfg := resilience.RetryConfig{MaxAttempts: 2, InitialDelay: 0, MaxDelay: 0, BackoffFactor: 2}
	v, err := EvaluateWithRetries(context.Background(), cfg, func(ctx context.Context) (Verdict, error) {
		return Verdict{}, errors.New("permanent")
	})
	require.Nil(t, v)
	require.Error(t, err)
}
