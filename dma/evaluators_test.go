package dma

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-agent/types"
)

func TestLLMEthicalEvaluator_ParsesVerdict(t *testing.T) {
	llm := &fakeLLM{response: map[string]interface{}{"decision": "approve", "reason": "fine"}}
	eval := NewLLMEthicalEvaluator(newBusWithLLM(llm), "ethical_handler")

	verdict, err := eval.Evaluate(context.Background(), Input{Thought: &types.Thought{Content: "do a thing"}})
	require.NoError(t, err)
	assert.Equal(t, "approve", verdict.Decision)
	assert.Equal(t, "fine", verdict.Reason)
	assert.Equal(t, 1, llm.calls)
}

func TestLLMEthicalEvaluator_PropagatesBusError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("llm unavailable")}
	eval := NewLLMEthicalEvaluator(newBusWithLLM(llm), "ethical_handler")

	_, err := eval.Evaluate(context.Background(), Input{Thought: &types.Thought{Content: "do a thing"}})
	assert.Error(t, err)
}

func TestLLMEthicalEvaluator_MissingDecisionIsInvalid(t *testing.T) {
	llm := &fakeLLM{response: map[string]interface{}{"reason": "no decision field"}}
	eval := NewLLMEthicalEvaluator(newBusWithLLM(llm), "ethical_handler")

	_, err := eval.Evaluate(context.Background(), Input{Thought: &types.Thought{Content: "do a thing"}})
	assert.ErrorIs(t, err, errInvalidVerdict)
}

func TestLLMCommonSenseEvaluator_ParsesVerdict(t *testing.T) {
	llm := &fakeLLM{response: map[string]interface{}{"decision": "reject", "reason": "implausible"}}
	eval := NewLLMCommonSenseEvaluator(newBusWithLLM(llm), "commonsense_handler")

	verdict, err := eval.Evaluate(context.Background(), Input{Thought: &types.Thought{Content: "fly to the moon by flapping arms"}})
	require.NoError(t, err)
	assert.Equal(t, "reject", verdict.Decision)
	assert.Equal(t, "implausible", verdict.Reason)
}

func TestBuildVerdictPrompt_IncludesThoughtAndTaskDescription(t *testing.T) {
	prompt := buildVerdictPrompt("judge: ", Input{
		Thought: &types.Thought{Content: "reply to the user"},
		Context: types.ThoughtContext{TaskDescription: "answer the question"},
	})
	assert.Contains(t, prompt, "judge: ")
	assert.Contains(t, prompt, "reply to the user")
	assert.Contains(t, prompt, "answer the question")
}
