package dma

import (
	"context"
	"strings"

	"github.com/ciris-ai/ciris-agent/bus"
)

// verdictSchema is the structured-response shape both initial evaluators
// request from the LLMService, mirroring actionSelectionSchema.
var verdictSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"decision": map[string]interface{}{"type": "string"},
		"reason":   map[string]interface{}{"type": "string"},
		"flags":    map[string]interface{}{"type": "object"},
	},
	"required": []string{"decision"},
}

func parseVerdict(raw map[string]interface{}) (Verdict, error) {
	decision, _ := raw["decision"].(string)
	if decision == "" {
		return Verdict{}, errInvalidVerdict
	}
	reason, _ := raw["reason"].(string)
	flags, _ := raw["flags"].(map[string]interface{})
	return Verdict{Decision: decision, Reason: reason, Flags: flags}, nil
}

func buildVerdictPrompt(preamble string, in Input) string {
	var b strings.Builder
	b.WriteString(preamble)
	if in.Thought != nil {
		b.WriteString(in.Thought.Content)
	}
	if in.Context.TaskDescription != "" {
		b.WriteString(" | task=" + in.Context.TaskDescription)
	}
	return b.String()
}

// LLMEthicalEvaluator is the default EthicalEvaluator, backed by the Bus's
// LLMService. It issues a single completion per call; retry and
// fallback-on-exhaustion semantics live in EvaluateWithRetries, which wraps
// every initial evaluator uniformly from the orchestrator's fan-out.
type LLMEthicalEvaluator struct {
	Bus         *bus.Bus
	HandlerName string
}

// NewLLMEthicalEvaluator constructs an EthicalEvaluator bound to the given
// Bus handler name.
func NewLLMEthicalEvaluator(b *bus.Bus, handlerName string) *LLMEthicalEvaluator {
	return &LLMEthicalEvaluator{Bus: b, HandlerName: handlerName}
}

// Evaluate implements EthicalEvaluator.
func (e *LLMEthicalEvaluator) Evaluate(ctx context.Context, in Input) (Verdict, error) {
	prompt := buildVerdictPrompt("judge the ethical alignment of thought: ", in)
	raw, err := e.Bus.Complete(ctx, e.HandlerName, prompt, verdictSchema)
	if err != nil {
		return Verdict{}, err
	}
	return parseVerdict(raw)
}

// LLMCommonSenseEvaluator is the default CommonSenseEvaluator, backed by the
// Bus's LLMService.
type LLMCommonSenseEvaluator struct {
	Bus         *bus.Bus
	HandlerName string
}

// NewLLMCommonSenseEvaluator constructs a CommonSenseEvaluator bound to the
// given Bus handler name.
func NewLLMCommonSenseEvaluator(b *bus.Bus, handlerName string) *LLMCommonSenseEvaluator {
	return &LLMCommonSenseEvaluator{Bus: b, HandlerName: handlerName}
}

// Evaluate implements CommonSenseEvaluator.
func (c *LLMCommonSenseEvaluator) Evaluate(ctx context.Context, in Input) (Verdict, error) {
	prompt := buildVerdictPrompt("judge the plausibility and coherence of thought: ", in)
	raw, err := c.Bus.Complete(ctx, c.HandlerName, prompt, verdictSchema)
	if err != nil {
		return Verdict{}, err
	}
	return parseVerdict(raw)
}
