package guardrail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-agent/types"
)

type alwaysPass struct{ name string }

func (a alwaysPass) Name() string { return a.name }
func (a alwaysPass) Check(ctx context.Context, action *types.ActionSelectionResult, dctx types.DispatchContext) (CheckResult, error) {
	return CheckResult{Passed: true}, nil
}

type alwaysFail struct {
	name      string
	reason    string
	epistemic map[string]interface{}
}

func (a alwaysFail) Name() string { return a.name }
func (a alwaysFail) Check(ctx context.Context, action *types.ActionSelectionResult, dctx types.DispatchContext) (CheckResult, error) {
	return CheckResult{Passed: false, Reason: a.reason, EpistemicData: a.epistemic}, nil
}

type flakyThenPass struct {
	name    string
	callsN  int
	failFor int
}

func (f *flakyThenPass) Name() string { return f.name }
func (f *flakyThenPass) Check(ctx context.Context, action *types.ActionSelectionResult, dctx types.DispatchContext) (CheckResult, error) {
	f.callsN++
	if f.callsN <= f.failFor {
		return CheckResult{}, errors.New("transient LLM noise")
	}
	return CheckResult{Passed: true}, nil
}

func TestVet_AllPass_NoOverride(t *testing.T) {
	reg := NewRegistry()
	reg.Register(alwaysPass{name: "coherence"})
	o := New(reg)

	action := types.ActionSelectionResult{SelectedAction: types.ActionTool}
	result := o.Vet(context.Background(), action, types.DispatchContext{})
	require.False(t, result.Overridden)
	require.Equal(t, types.ActionTool, result.FinalAction.SelectedAction)
}

func TestVet_FailingGuardrailOverridesToPonder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(alwaysFail{name: "unsafe-content", reason: "unsafe", epistemic: map[string]interface{}{"entropy": 0.9}})
	o := New(reg)

	action := types.ActionSelectionResult{SelectedAction: types.ActionSpeak}
	result := o.Vet(context.Background(), action, types.DispatchContext{})
	require.True(t, result.Overridden)
	require.Equal(t, types.ActionPonder, result.FinalAction.SelectedAction)
	questions := result.FinalAction.ActionParameters["questions"].([]string)
	require.Condition(t, func() bool {
		for _, q := range questions {
			if contains(q, "unsafe") {
				return true
			}
		}
		return false
	})
}

func TestVet_TransientFailureRecoversWithinRetryBudget(t *testing.T) {
	reg := NewRegistry()
	check := &flakyThenPass{name: "flaky", failFor: 1}
	reg.Register(check)
	o := New(reg)
	o.RetryLimit = 2

	action := types.ActionSelectionResult{SelectedAction: types.ActionTool}
	result := o.Vet(context.Background(), action, types.DispatchContext{})
	require.False(t, result.Overridden)
	require.Equal(t, 2, check.callsN)
}

func TestVet_InjectsChannelIDBeforeSpeakCheck(t *testing.T) {
	reg := NewRegistry()
	var seenChannel interface{}
	reg.Register(captureChannel{capture: &seenChannel})
	o := New(reg)

	action := types.ActionSelectionResult{SelectedAction: types.ActionSpeak, ActionParameters: map[string]interface{}{}}
	o.Vet(context.Background(), action, types.DispatchContext{Channel: "general"})
	require.Equal(t, "general", seenChannel)
}

type captureChannel struct{ capture *interface{} }

func (c captureChannel) Name() string { return "capture" }
func (c captureChannel) Check(ctx context.Context, action *types.ActionSelectionResult, dctx types.DispatchContext) (CheckResult, error) {
	*c.capture = action.ActionParameters["channel_id"]
	return CheckResult{Passed: true}, nil
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
