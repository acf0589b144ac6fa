package action

import (
	"context"

	"github.com/ciris-ai/ciris-agent/ponder"
	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// PonderHandler delegates to the PonderManager (spec.md §4.6/§4.7). When the
// manager defers the thought (round budget exhausted) the handler cascades
// that DEFER to the parent Task unless it is a protected root.
type PonderHandler struct {
	base
	HandlerName string
	Manager     *ponder.Manager
	RootPolicy  RootPolicy
}

// NewPonderHandler constructs a PonderHandler.
func NewPonderHandler(s store.Store, b busFacade, logger telemetry.Logger, manager *ponder.Manager, roots RootPolicy) *PonderHandler {
	return &PonderHandler{base: newBase(s, b, logger), HandlerName: "ponder_handler", Manager: manager, RootPolicy: roots}
}

// Handle implements Handler.
func (h *PonderHandler) Handle(ctx context.Context, req Request) error {
	h.audit(ctx, h.HandlerName, req, "start", nil)

	questions := stringsParam(req.Action.ActionParameters, "questions")
	outcome, err := h.Manager.Process(ctx, req.Thought, questions)
	if err != nil {
		return err
	}

	if outcome.Deferred {
		if req.Task != nil && !h.RootPolicy.IsProtected(req.Task) {
			if _, err := h.Store.UpdateTaskStatus(ctx, req.Task.ID, types.TaskStatusDeferred); err != nil {
				return err
			}
		}
		h.audit(ctx, h.HandlerName, req, "deferred", map[string]interface{}{"ponder_count": req.Thought.PonderCount})
		return nil
	}

	h.audit(ctx, h.HandlerName, req, "requeued", map[string]interface{}{"ponder_count": req.Thought.PonderCount})
	return nil
}

func stringsParam(params map[string]interface{}, key string) []string {
	raw, ok := params[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
