package types

// ActionKind is the closed sum type over the 10 dispatchable actions.
type ActionKind string

const (
	ActionObserve      ActionKind = "OBSERVE"
	ActionSpeak        ActionKind = "SPEAK"
	ActionTool         ActionKind = "TOOL"
	ActionPonder       ActionKind = "PONDER"
	ActionReject       ActionKind = "REJECT"
	ActionDefer        ActionKind = "DEFER"
	ActionMemorize     ActionKind = "MEMORIZE"
	ActionRecall       ActionKind = "RECALL"
	ActionForget       ActionKind = "FORGET"
	ActionTaskComplete ActionKind = "TASK_COMPLETE"
)

// AllActionKinds enumerates the closed set, used by the dispatcher and by
// tests asserting handler coverage.
var AllActionKinds = []ActionKind{
	ActionObserve, ActionSpeak, ActionTool, ActionPonder, ActionReject,
	ActionDefer, ActionMemorize, ActionRecall, ActionForget, ActionTaskComplete,
}

// TerminalActionKinds bypass guardrails per spec.md §4.5.
var TerminalActionKinds = map[ActionKind]bool{
	ActionDefer:        true,
	ActionReject:       true,
	ActionTaskComplete: true,
}

// ResourceUsage mirrors the optional resource_usage field of an
// ActionSelectionResult.
type ResourceUsage struct {
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// ActionSelectionResult is the output of the ActionSelection DMA (and the
// final_action recorded on a Thought).
type ActionSelectionResult struct {
	SelectedAction   ActionKind             `json:"selected_action"`
	ActionParameters map[string]interface{} `json:"action_parameters"`
	Rationale        string                 `json:"rationale"`
	Confidence       *float64               `json:"confidence,omitempty"`
	ResourceUsage    *ResourceUsage         `json:"resource_usage,omitempty"`
}

// GuardrailResult wraps the original and (possibly overridden) final action.
type GuardrailResult struct {
	OriginalAction *ActionSelectionResult `json:"original_action"`
	FinalAction    *ActionSelectionResult `json:"final_action"`
	Overridden     bool                   `json:"overridden"`
	OverrideReason string                 `json:"override_reason,omitempty"`
	EpistemicData  map[string]interface{} `json:"epistemic_data,omitempty"`
}

// DispatchContext is the fully typed record carried from guardrails to the
// dispatcher and into every handler. GuardrailResult is nil only for
// terminal actions that bypass guardrails (spec.md §4.5).
type DispatchContext struct {
	Channel         string
	Author          string
	OriginService   string
	HandlerName     string
	ActionKind      ActionKind
	ThoughtID       string
	TaskID          string
	CorrelationID   string
	RoundNumber     int
	GuardrailResult *GuardrailResult
}
