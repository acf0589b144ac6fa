package console

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var actionSchema = map[string]interface{}{
	"type":     "object",
	"required": []string{"selected_action"},
}

var verdictSchema = map[string]interface{}{
	"type":     "object",
	"required": []string{"decision"},
}

var safetySchema = map[string]interface{}{
	"type":     "object",
	"required": []string{"passed"},
}

func TestLocalLLM_SelectsSpeakWhenNoPriorSpeakCorrelate(t *testing.T) {
	l := NewLocalLLM()
	out, err := l.Complete(context.Background(), "select one action for thought: greet the user | has_speak_correlate=false", actionSchema)
	require.NoError(t, err)
	assert.Equal(t, "SPEAK", out["selected_action"])
	params, ok := out["action_parameters"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "greet the user", params["content"])
}

func TestLocalLLM_SelectsTaskCompleteWhenSpeakAlreadyCorrelated(t *testing.T) {
	l := NewLocalLLM()
	out, err := l.Complete(context.Background(), "select one action for thought: greet the user | has_speak_correlate=true", actionSchema)
	require.NoError(t, err)
	assert.Equal(t, "TASK_COMPLETE", out["selected_action"])
}

func TestLocalLLM_ApprovesVerdictRequests(t *testing.T) {
	l := NewLocalLLM()
	out, err := l.Complete(context.Background(), "judge: do a thing", verdictSchema)
	require.NoError(t, err)
	assert.Equal(t, "approve", out["decision"])
}

func TestLocalLLM_PassesSafetyRequests(t *testing.T) {
	l := NewLocalLLM()
	out, err := l.Complete(context.Background(), "judge the safety of dispatching action", safetySchema)
	require.NoError(t, err)
	assert.Equal(t, true, out["passed"])
}

func TestLocalLLM_UnknownSchemaReturnsEmptyMap(t *testing.T) {
	l := NewLocalLLM()
	out, err := l.Complete(context.Background(), "anything", map[string]interface{}{"required": []string{"unrelated_field"}})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExtractThoughtContent_StripsMarkerAndTrailingPipeSections(t *testing.T) {
	content := extractThoughtContent("select one action for thought: reply to the user | task=answer the question")
	assert.Equal(t, "reply to the user", content)
}

func TestExtractThoughtContent_ReturnsWholePromptWhenMarkerMissing(t *testing.T) {
	content := extractThoughtContent("no marker here")
	assert.Equal(t, "no marker here", content)
}

func TestRequiredFields_HandlesStringSliceAndInterfaceSlice(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, requiredFields(map[string]interface{}{"required": []string{"a", "b"}}))
	assert.Equal(t, []string{"a", "b"}, requiredFields(map[string]interface{}{"required": []interface{}{"a", "b"}}))
	assert.Nil(t, requiredFields("not a map"))
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "b"))
	assert.False(t, contains([]string{"a", "b"}, "c"))
}
