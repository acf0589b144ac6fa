package action

import (
	"context"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// Filter is the optional suppression rule REJECT may request to avoid
// repeating the same unwanted request (spec.md §4.6: "pattern + type +
// priority").
type Filter struct {
	Pattern  string
	Type     string
	Priority int
}

// FilterRegistrar persists a requested suppression Filter. A nil
// registrar is valid: filter creation is optional policy, not a hard
// requirement of REJECT.
type FilterRegistrar interface {
	RegisterFilter(ctx context.Context, f Filter) error
}

// RejectHandler marks the Thought FAILED and optionally registers a
// suppression filter. Creates no follow-up unless FollowUpPolicy demands
// one.
type RejectHandler struct {
	base
	HandlerName     string
	Filters         FilterRegistrar
	FollowUpPolicy  func(req Request) (string, bool)
}

// NewRejectHandler constructs a RejectHandler.
func NewRejectHandler(s store.Store, b busFacade, logger telemetry.Logger, filters FilterRegistrar) *RejectHandler {
	return &RejectHandler{base: newBase(s, b, logger), HandlerName: "reject_handler", Filters: filters}
}

// Handle implements Handler.
func (h *RejectHandler) Handle(ctx context.Context, req Request) error {
	h.audit(ctx, h.HandlerName, req, "start", nil)

	if h.Filters != nil {
		if filterParams, ok := req.Action.ActionParameters["create_filter"].(map[string]interface{}); ok {
			pattern, _ := stringParam(filterParams, "pattern")
			ftype, _ := stringParam(filterParams, "type")
			priority := intParam(filterParams, "priority", 0)
			if pattern != "" {
				if err := h.Filters.RegisterFilter(ctx, Filter{Pattern: pattern, Type: ftype, Priority: priority}); err != nil {
					h.Logger.WarnWithContext(ctx, "reject: filter registration failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	}

	if err := h.finish(ctx, req.Thought.ID, types.ThoughtStatusFailed, &req.Action); err != nil {
		return err
	}

	if h.FollowUpPolicy != nil {
		if content, create := h.FollowUpPolicy(req); create {
			if _, err := h.writeFollowUp(ctx, req.Thought, types.ThoughtTypeFollowUp, content); err != nil {
				return err
			}
		}
	}

	h.audit(ctx, h.HandlerName, req, "rejected", map[string]interface{}{"rationale": req.Action.Rationale})
	return nil
}
