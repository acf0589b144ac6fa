package action

import (
	"context"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// DeferHandler builds a DeferralPackage and escalates to the WiseAuthority
// provider, then marks the Thought DEFERRED and — unless the parent Task is
// a protected root — cascades DEFERRED to the Task. Creates no follow-up
// (spec.md §4.6).
type DeferHandler struct {
	base
	HandlerName string
	RootPolicy  RootPolicy
}

// NewDeferHandler constructs a DeferHandler.
func NewDeferHandler(s store.Store, b busFacade, logger telemetry.Logger, roots RootPolicy) *DeferHandler {
	return &DeferHandler{base: newBase(s, b, logger), HandlerName: "defer_handler", RootPolicy: roots}
}

// Handle implements Handler.
func (h *DeferHandler) Handle(ctx context.Context, req Request) error {
	h.audit(ctx, h.HandlerName, req, "start", nil)

	reason, _ := stringParam(req.Action.ActionParameters, "reason")
	if reason == "" {
		reason = req.Action.Rationale
	}

	taskDescription := ""
	if req.Task != nil {
		taskDescription = req.Task.Description
	}

	pkg := types.DeferralPackage{
		ThoughtID:       req.Thought.ID,
		TaskID:          req.Thought.SourceTaskID,
		Reason:          reason,
		ThoughtContent:  req.Thought.Content,
		TaskDescription: taskDescription,
		DMASummaries:    dmaSummariesFrom(req.Dctx),
	}

	// A missing/unconfigured WiseAuthority provider is not fatal: the
	// deferral still lands as a terminal Thought status even if no human
	// escalation channel is wired up.
	sendErr := h.Bus.SendDeferral(ctx, h.HandlerName, pkg)

	if err := h.finish(ctx, req.Thought.ID, types.ThoughtStatusDeferred, &req.Action); err != nil {
		return err
	}

	if req.Task != nil && !h.RootPolicy.IsProtected(req.Task) {
		if _, err := h.Store.UpdateTaskStatus(ctx, req.Task.ID, types.TaskStatusDeferred); err != nil {
			return err
		}
	}

	outcome := "deferred"
	detail := map[string]interface{}{"reason": reason}
	if sendErr != nil {
		detail["wise_authority_error"] = sendErr.Error()
	}
	h.audit(ctx, h.HandlerName, req, outcome, detail)
	return nil
}

func dmaSummariesFrom(dctx types.DispatchContext) []types.DMASummary {
	if dctx.GuardrailResult == nil {
		return nil
	}
	var summaries []types.DMASummary
	if dctx.GuardrailResult.Overridden {
		summaries = append(summaries, types.DMASummary{
			Evaluator: "guardrail",
			Verdict:   "overridden",
			Detail:    dctx.GuardrailResult.OverrideReason,
		})
	}
	return summaries
}
