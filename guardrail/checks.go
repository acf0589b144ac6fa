package guardrail

import (
	"context"
	"fmt"

	"github.com/ciris-ai/ciris-agent/bus"
	"github.com/ciris-ai/ciris-agent/types"
)

// safetySchema is the structured response an EthicalSafetyCheck requests
// from the LLMService: the four epistemic signals named in spec.md §4.5.
var safetySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"passed":    map[string]interface{}{"type": "boolean"},
		"reason":    map[string]interface{}{"type": "string"},
		"entropy":   map[string]interface{}{"type": "number"},
		"coherence": map[string]interface{}{"type": "number"},
		"optimization_veto": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"decision":      map[string]interface{}{"type": "string"},
				"justification": map[string]interface{}{"type": "string"},
			},
		},
		"epistemic_humility": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"recommended_action":     map[string]interface{}{"type": "string"},
				"identified_uncertainty": map[string]interface{}{"type": "string"},
			},
		},
	},
	"required": []string{"passed"},
}

// EthicalSafetyCheck is the default priority-0 guardrail: a single LLM call
// judging the proposed action against the four epistemic signals spec.md
// §4.5 names — entropy, coherence, optimization-veto, epistemic-humility.
// EntropyThreshold/CoherenceThreshold gate the numeric signals in addition
// to whatever the LLM itself reports as passed.
type EthicalSafetyCheck struct {
	Bus              *bus.Bus
	HandlerName      string
	EntropyThreshold float64
	CoherenceThreshold float64
}

// NewEthicalSafetyCheck constructs the check with spec.md's default
// thresholds (entropy must not exceed 0.6; a non-zero coherence must stay
// at or above 0.4, and a coherence of 0 is not checked).
func NewEthicalSafetyCheck(b *bus.Bus, handlerName string) *EthicalSafetyCheck {
	return &EthicalSafetyCheck{
		Bus: b, HandlerName: handlerName,
		EntropyThreshold: 0.6, CoherenceThreshold: 0.4,
	}
}

// Name implements Check.
func (c *EthicalSafetyCheck) Name() string { return "ethical_safety" }

// Check implements Check.
func (c *EthicalSafetyCheck) Check(ctx context.Context, action *types.ActionSelectionResult, dctx types.DispatchContext) (CheckResult, error) {
	prompt := fmt.Sprintf("judge the safety of dispatching action %q with rationale %q", action.SelectedAction, action.Rationale)
	raw, err := c.Bus.Complete(ctx, c.HandlerName, prompt, safetySchema)
	if err != nil {
		return CheckResult{}, err
	}

	epistemic := map[string]interface{}{}
	entropy, _ := raw["entropy"].(float64)
	coherence, _ := raw["coherence"].(float64)
	epistemic["entropy"] = entropy
	epistemic["coherence"] = coherence
	if veto, ok := raw["optimization_veto"]; ok {
		epistemic["optimization_veto"] = veto
	}
	if humility, ok := raw["epistemic_humility"]; ok {
		epistemic["epistemic_humility"] = humility
	}

	passed, _ := raw["passed"].(bool)
	reason, _ := raw["reason"].(string)

	if entropy > c.EntropyThreshold {
		passed = false
		reason = fmt.Sprintf("entropy %.2f exceeds threshold %.2f", entropy, c.EntropyThreshold)
	}
	if coherence != 0 && coherence < c.CoherenceThreshold {
		passed = false
		reason = fmt.Sprintf("coherence %.2f below threshold %.2f", coherence, c.CoherenceThreshold)
	}
	if veto, ok := raw["optimization_veto"].(map[string]interface{}); ok {
		if decision, _ := veto["decision"].(string); decision == "abort" || decision == "defer" {
			passed = false
			reason = fmt.Sprintf("optimization veto: %v", veto["justification"])
		}
	}
	if humility, ok := raw["epistemic_humility"].(map[string]interface{}); ok {
		if rec, _ := humility["recommended_action"].(string); rec == "abort" || rec == "defer" {
			passed = false
			reason = fmt.Sprintf("epistemic humility recommends %s: %v", rec, humility["identified_uncertainty"])
		}
	}

	return CheckResult{Passed: passed, Reason: reason, EpistemicData: epistemic}, nil
}

// RootProtectionCheck is a cheap, non-LLM guardrail: it rejects TOOL/FORGET
// actions targeting a protected root Task (spec.md's root-task protection),
// independent of what the safety check judged. REJECT/DEFER/TASK_COMPLETE
// never reach this check — they're terminal and bypass guardrails entirely.
type RootProtectionCheck struct {
	ProtectedTaskIDs map[string]bool
}

// NewRootProtectionCheck constructs the check against the given set of
// protected task ids (config.RuntimeConfig.ProtectedTaskIDs).
func NewRootProtectionCheck(protectedTaskIDs []string) *RootProtectionCheck {
	set := make(map[string]bool, len(protectedTaskIDs))
	for _, id := range protectedTaskIDs {
		set[id] = true
	}
	return &RootProtectionCheck{ProtectedTaskIDs: set}
}

// Name implements Check.
func (c *RootProtectionCheck) Name() string { return "root_protection" }

// Check implements Check.
func (c *RootProtectionCheck) Check(ctx context.Context, action *types.ActionSelectionResult, dctx types.DispatchContext) (CheckResult, error) {
	if dctx.TaskID == "" || !c.ProtectedTaskIDs[dctx.TaskID] {
		return CheckResult{Passed: true}, nil
	}
	destructive := action.SelectedAction == types.ActionTool || action.SelectedAction == types.ActionForget
	if destructive {
		return CheckResult{Passed: false, Reason: "task is protected and cannot be targeted by tool execution or memory deletion"}, nil
	}
	return CheckResult{Passed: true}, nil
}
