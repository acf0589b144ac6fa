package action

import (
	"context"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// TaskCompleteHandler enforces the wakeup-sequence domain rule from
// spec.md §4.6: a wakeup step cannot complete without a recorded SPEAK
// correlation. Otherwise it completes the Thought and cascades COMPLETED
// to the parent Task (unless persistent), deleting remaining
// PENDING/PROCESSING sibling Thoughts. Creates no follow-up.
type TaskCompleteHandler struct {
	base
	HandlerName string
	RootPolicy  RootPolicy
	// IsWakeupStep identifies tasks that are steps of the wakeup sequence,
	// where a SPEAK correlation is mandatory before completion.
	IsWakeupStep func(task *types.Task) bool
}

// NewTaskCompleteHandler constructs a TaskCompleteHandler.
func NewTaskCompleteHandler(s store.Store, b busFacade, logger telemetry.Logger, roots RootPolicy, isWakeupStep func(*types.Task) bool) *TaskCompleteHandler {
	if isWakeupStep == nil {
		isWakeupStep = func(*types.Task) bool { return false }
	}
	return &TaskCompleteHandler{base: newBase(s, b, logger), HandlerName: "task_complete_handler", RootPolicy: roots, IsWakeupStep: isWakeupStep}
}

// Handle implements Handler.
func (h *TaskCompleteHandler) Handle(ctx context.Context, req Request) error {
	h.audit(ctx, h.HandlerName, req, "start", nil)

	if req.Task != nil && h.IsWakeupStep(req.Task) {
		hasSpeak, err := h.hasSpeakCorrelation(ctx, req.Task.ID)
		if err != nil {
			return err
		}
		if !hasSpeak {
			return h.rewriteToPonder(ctx, req)
		}
	}

	if err := h.finish(ctx, req.Thought.ID, types.ThoughtStatusCompleted, &req.Action); err != nil {
		return err
	}

	if req.Task != nil {
		if !h.RootPolicy.IsProtected(req.Task) {
			if _, err := h.Store.UpdateTaskStatus(ctx, req.Task.ID, types.TaskStatusCompleted); err != nil {
				return err
			}
		}
		if err := h.deleteIncompleteSiblings(ctx, req.Task.ID, req.Thought.ID); err != nil {
			return err
		}
	}

	h.audit(ctx, h.HandlerName, req, "success", nil)
	return nil
}

func (h *TaskCompleteHandler) hasSpeakCorrelation(ctx context.Context, taskID string) (bool, error) {
	correlations, err := h.Store.GetCorrelationsByTaskAndAction(ctx, taskID, "speak", types.CorrelationCompleted)
	if err != nil {
		return false, err
	}
	return len(correlations) > 0, nil
}

// rewriteToPonder rewrites the final_action to PONDER with a guidance
// message, written back via Store, instead of completing (spec.md §4.6).
// The step Task stays ACTIVE.
func (h *TaskCompleteHandler) rewriteToPonder(ctx context.Context, req Request) error {
	rewritten := types.ActionSelectionResult{
		SelectedAction: types.ActionPonder,
		ActionParameters: map[string]interface{}{
			"questions": []string{"wakeup step attempted TASK_COMPLETE before speaking — speak first, then complete"},
		},
		Rationale: "rewritten from TASK_COMPLETE: wakeup step has no recorded SPEAK correlation",
	}
	// Re-queue by writing the thought back to PENDING with the rewritten
	// final_action so the step Task stays ACTIVE; TASK_COMPLETE itself
	// creates no follow-up per the handler contract.
	if err := h.Store.UpdateThoughtStatus(ctx, store.ThoughtStatusUpdate{
		ThoughtID:   req.Thought.ID,
		NewStatus:   types.ThoughtStatusPending,
		FinalAction: &rewritten,
	}); err != nil {
		return err
	}
	h.audit(ctx, h.HandlerName, req, "rewritten_to_ponder", map[string]interface{}{"task_id": req.Task.ID})
	return nil
}

func (h *TaskCompleteHandler) deleteIncompleteSiblings(ctx context.Context, taskID, excludeID string) error {
	siblings, err := h.Store.GetThoughtsByTaskID(ctx, taskID)
	if err != nil {
		return err
	}
	var toDelete []string
	for _, s := range siblings {
		if s.ID == excludeID {
			continue
		}
		if s.Status == types.ThoughtStatusPending || s.Status == types.ThoughtStatusProcessing {
			toDelete = append(toDelete, s.ID)
		}
	}
	if len(toDelete) == 0 {
		return nil
	}
	return h.Store.DeleteThoughtsByIDs(ctx, toDelete)
}
