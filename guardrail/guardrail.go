// Package guardrail implements the GuardrailRegistry and
// GuardrailOrchestrator (spec.md §4.5): an ordered chain of safety checks
// applied to a selected action, with bounded retry on transient failure and
// override-to-PONDER on persistent failure. Grounded on
// orchestration/executor.go retry-then-degrade step pattern, reused here
// for safety checks instead of workflow steps.
package guardrail

import (
	"context"
	"fmt"

	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// CheckResult is what a single guardrail reports.
type CheckResult struct {
	Passed        bool
	Reason        string
	EpistemicData map[string]interface{}
}

// Check is one safety guardrail. Priority 0 runs first.
type Check interface {
	Name() string
	Check(ctx context.Context, action *types.ActionSelectionResult, dctx types.DispatchContext) (CheckResult, error)
}

// Registry holds guardrails in ascending priority order.
type Registry struct {
	checks []Check
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register appends a guardrail at the next priority slot. Registration
// order is priority order (spec.md §4.5: "0 = first").
func (r *Registry) Register(c Check) { r.checks = append(r.checks, c) }

// Checks returns the ordered guardrail chain.
func (r *Registry) Checks() []Check { return r.checks }

// ChannelResolver resolves a channel_id from thought/DMA context/snapshot
// when an action's parameters omit one, per spec.md §4.5.
type ChannelResolver func(dctx types.DispatchContext) (string, bool)

// Orchestrator applies the registered guardrails in order, retrying a
// failing check a bounded number of times before overriding to PONDER.
type Orchestrator struct {
	Registry        *Registry
	RetryLimit      int
	ChannelResolver ChannelResolver
	Logger          telemetry.Logger
}

// New constructs an Orchestrator with spec.md's small bounded retry
// default.
func New(registry *Registry) *Orchestrator {
	return &Orchestrator{Registry: registry, RetryLimit: 3, Logger: telemetry.NoOpLogger{}}
}

// Vet applies every registered guardrail to action in priority order.
// Terminal actions (DEFER/REJECT/TASK_COMPLETE) bypass guardrails entirely
// per spec.md §4.5/§7; callers should check types.TerminalActionKinds
// before calling Vet.
func (o *Orchestrator) Vet(ctx context.Context, action types.ActionSelectionResult, dctx types.DispatchContext) types.GuardrailResult {
	final := action

	if final.SelectedAction == types.ActionSpeak {
		o.injectChannelID(&final, dctx)
	}

	for _, check := range o.Registry.Checks() {
		result, reason := o.runWithBoundedRetry(ctx, check, &final, dctx)
		if result.Passed {
			continue
		}
		return o.override(action, check.Name(), reason, result.EpistemicData)
	}

	return types.GuardrailResult{
		OriginalAction: &action,
		FinalAction:    &final,
		Overridden:     false,
	}
}

func (o *Orchestrator) injectChannelID(action *types.ActionSelectionResult, dctx types.DispatchContext) {
	if action.ActionParameters == nil {
		action.ActionParameters = map[string]interface{}{}
	}
	if _, present := action.ActionParameters["channel_id"]; present {
		return
	}
	if dctx.Channel != "" {
		action.ActionParameters["channel_id"] = dctx.Channel
		return
	}
	if o.ChannelResolver != nil {
		if channel, ok := o.ChannelResolver(dctx); ok {
			action.ActionParameters["channel_id"] = channel
		}
	}
}

// runWithBoundedRetry absorbs transient LLM noise in a failing check by
// retrying up to RetryLimit times before accepting the failure as final.
func (o *Orchestrator) runWithBoundedRetry(ctx context.Context, check Check, action *types.ActionSelectionResult, dctx types.DispatchContext) (CheckResult, string) {
	limit := o.RetryLimit
	if limit <= 0 {
		limit = 1
	}
	var last CheckResult
	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		result, err := check.Check(ctx, action, dctx)
		if err != nil {
			lastErr = err
			continue
		}
		last = result
		if result.Passed {
			return result, ""
		}
	}
	if lastErr != nil && !last.Passed {
		return last, fmt.Sprintf("%s: %v", check.Name(), lastErr)
	}
	return last, last.Reason
}

// override builds the PONDER action with questions synthesized from the
// failure reason and epistemic signals (entropy, coherence,
// optimization-veto, epistemic-humility).
func (o *Orchestrator) override(original types.ActionSelectionResult, checkName, reason string, epistemic map[string]interface{}) types.GuardrailResult {
	questions := synthesizeQuestions(checkName, reason, epistemic)
	final := types.ActionSelectionResult{
		SelectedAction: types.ActionPonder,
		ActionParameters: map[string]interface{}{
			"questions": questions,
		},
		Rationale: fmt.Sprintf("guardrail %q overrode action to PONDER: %s", checkName, reason),
	}
	return types.GuardrailResult{
		OriginalAction: &original,
		FinalAction:    &final,
		Overridden:     true,
		OverrideReason: reason,
		EpistemicData:  epistemic,
	}
}

func synthesizeQuestions(checkName, reason string, epistemic map[string]interface{}) []string {
	questions := []string{fmt.Sprintf("guardrail %s failed: %s — how should the action change to satisfy it?", checkName, reason)}
	for _, signal := range []string{"entropy", "coherence", "optimization_veto", "epistemic_humility"} {
		if v, ok := epistemic[signal]; ok {
			questions = append(questions, fmt.Sprintf("epistemic signal %s=%v was flagged — does the action still hold?", signal, v))
		}
	}
	return questions
}
