// Package dma implements the four pluggable Decision-Making Algorithm
// evaluators (spec.md §4.3) — Ethical, CommonSense, DomainSpecific, and
// ActionSelection — each wrapped in run_with_retries so a flaky LLM
// degrades to an escalation value instead of panicking the pipeline.
// Grounded on the pattern of uniform evaluator interfaces behind
// orchestration/executor.go's retry-wrapped step execution.
package dma

import (
	"context"
	"strings"

	"github.com/ciris-ai/ciris-agent/bus"
	"github.com/ciris-ai/ciris-agent/resilience"
	"github.com/ciris-ai/ciris-agent/types"
)

// Verdict is the structured judgment returned by Ethical/CommonSense/
// DomainSpecific evaluators.
type Verdict struct {
	Decision string                 `json:"decision"`
	Reason   string                 `json:"reason"`
	Flags    map[string]interface{} `json:"flags,omitempty"`
}

// Input is the common payload handed to every evaluator: the thought under
// consideration plus whatever context was built for it.
type Input struct {
	Thought *types.Thought
	Context types.ThoughtContext
}

// EthicalEvaluator judges a thought's alignment with the agent's ethical
// principles.
type EthicalEvaluator interface {
	Evaluate(ctx context.Context, in Input) (Verdict, error)
}

// CommonSenseEvaluator judges plausibility/coherence of the proposed
// reasoning.
type CommonSenseEvaluator interface {
	Evaluate(ctx context.Context, in Input) (Verdict, error)
}

// DomainSpecificEvaluator applies profile-specific domain judgment; not
// every agent profile registers one.
type DomainSpecificEvaluator interface {
	Evaluate(ctx context.Context, in Input) (Verdict, error)
}

// ActionSelectionInput is the triaged payload action-selection sees after
// the three initial DMAs have run.
type ActionSelectionInput struct {
	Thought          *types.Thought
	Context          types.ThoughtContext
	Ethical          *Verdict
	CommonSense      *Verdict
	DomainSpecific   *Verdict
	Errors           []string
	PermittedActions []types.ActionKind
	AgentProfile     string
}

// ActionSelectionEvaluator chooses the final action and its parameters.
type ActionSelectionEvaluator interface {
	Evaluate(ctx context.Context, in ActionSelectionInput) (types.ActionSelectionResult, error)
}

// LLMActionSelector is the default ActionSelectionEvaluator, backed by the
// Bus's LLMService. The two hard-coded special cases from spec.md §4.4 are
// applied here, before any LLM call.
type LLMActionSelector struct {
	Bus         *bus.Bus
	HandlerName string
	RetryConfig resilience.RetryConfig
}

// NewLLMActionSelector constructs a selector with the default retry config.
func NewLLMActionSelector(b *bus.Bus, handlerName string) *LLMActionSelector {
	return &LLMActionSelector{Bus: b, HandlerName: handlerName, RetryConfig: resilience.DefaultRetryConfig()}
}

func pondQuestions(seed string) []string {
	return []string{"Forced ponder: message was the literal command \"ponder\": " + seed}
}

// forcedPonder is spec.md §4.4(a): the literal external message "ponder"
// (case-insensitive) always forces PONDER, regardless of DMA output.
func forcedPonder(in ActionSelectionInput) (types.ActionSelectionResult, bool) {
	original := strings.TrimSpace(in.Context.TaskDescription)
	if !strings.EqualFold(original, "ponder") {
		return types.ActionSelectionResult{}, false
	}
	return types.ActionSelectionResult{
		SelectedAction: types.ActionPonder,
		ActionParameters: map[string]interface{}{
			"questions": pondQuestions(original),
		},
		Rationale: "literal ponder command",
	}, true
}

// fallbackPonder is spec.md §4.4(b): any LLM/parse failure degrades to
// PONDER with the error surfaced as a question, so the loop never crashes.
func fallbackPonder(err error) types.ActionSelectionResult {
	return types.ActionSelectionResult{
		SelectedAction: types.ActionPonder,
		ActionParameters: map[string]interface{}{
			"questions": []string{"action selection failed: " + err.Error()},
		},
		Rationale: "action selection escalated after exhausting retries",
	}
}

// Evaluate implements ActionSelectionEvaluator.
func (s *LLMActionSelector) Evaluate(ctx context.Context, in ActionSelectionInput) (types.ActionSelectionResult, error) {
	if forced, ok := forcedPonder(in); ok {
		return forced, nil
	}

	prompt := buildActionSelectionPrompt(in)
	result := resilience.WithRetries(ctx, s.RetryConfig, func() (types.ActionSelectionResult, error) {
		raw, err := s.Bus.Complete(ctx, s.HandlerName, prompt, actionSelectionSchema)
		if err != nil {
			return types.ActionSelectionResult{}, err
		}
		return parseActionSelection(raw)
	}, fallbackPonder)

	return result, nil
}

func buildActionSelectionPrompt(in ActionSelectionInput) string {
	var b strings.Builder
	b.WriteString("select one action for thought: ")
	if in.Thought != nil {
		b.WriteString(in.Thought.Content)
	}
	if in.Context.HasSpeakCorrelate {
		b.WriteString(" | has_speak_correlate=true")
	}
	if len(in.Context.PonderNotes) > 0 {
		b.WriteString(" | ponder_notes=" + strings.Join(in.Context.PonderNotes, ";"))
	}
	if in.Ethical != nil {
		b.WriteString(" | ethical=" + in.Ethical.Decision)
	}
	if in.CommonSense != nil {
		b.WriteString(" | commonsense=" + in.CommonSense.Decision)
	}
	if in.DomainSpecific != nil {
		b.WriteString(" | domain=" + in.DomainSpecific.Decision)
	}
	for _, e := range in.Errors {
		b.WriteString(" | evaluator_error=" + e)
	}
	return b.String()
}

// actionSelectionSchema is a placeholder JSON-schema-shaped value passed
// through to the LLMService; the real schema lives alongside the prompt
// templates wired into a concrete LLMService implementation.
var actionSelectionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"selected_action":   map[string]interface{}{"type": "string"},
		"action_parameters": map[string]interface{}{"type": "object"},
		"rationale":         map[string]interface{}{"type": "string"},
	},
	"required": []string{"selected_action", "action_parameters"},
}

func parseActionSelection(raw map[string]interface{}) (types.ActionSelectionResult, error) {
	action, _ := raw["selected_action"].(string)
	params, _ := raw["action_parameters"].(map[string]interface{})
	rationale, _ := raw["rationale"].(string)
	if action == "" {
		return types.ActionSelectionResult{}, errInvalidActionSelection
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return types.ActionSelectionResult{
		SelectedAction:   types.ActionKind(action),
		ActionParameters: params,
		Rationale:        rationale,
	}, nil
}
