package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// ObserveHandler supports two modes (spec.md §4.6): passive, which simply
// notes that an observation Task/Thought already exists, and active, which
// fetches recent channel history via the Communication provider and
// produces a synthesizing follow-up.
type ObserveHandler struct {
	base
	HandlerName  string
	DefaultLimit int
}

// NewObserveHandler constructs an ObserveHandler.
func NewObserveHandler(s store.Store, b busFacade, logger telemetry.Logger) *ObserveHandler {
	return &ObserveHandler{base: newBase(s, b, logger), HandlerName: "observe_handler", DefaultLimit: 10}
}

// Handle implements Handler.
func (h *ObserveHandler) Handle(ctx context.Context, req Request) error {
	h.audit(ctx, h.HandlerName, req, "start", nil)

	active, _ := req.Action.ActionParameters["active"].(bool)
	if !active {
		return h.handlePassive(ctx, req)
	}
	return h.handleActive(ctx, req)
}

func (h *ObserveHandler) handlePassive(ctx context.Context, req Request) error {
	existing, err := h.Store.TaskExists(ctx, req.Thought.SourceTaskID)
	if err != nil {
		return err
	}
	outcome := "already present"
	if !existing {
		outcome = "task missing at observation time"
	}
	if err := h.finish(ctx, req.Thought.ID, types.ThoughtStatusCompleted, &req.Action); err != nil {
		return err
	}
	_, err = h.writeFollowUp(ctx, req.Thought, types.ThoughtTypeObservation, "passive observation: "+outcome)
	h.audit(ctx, h.HandlerName, req, "success", map[string]interface{}{"mode": "passive"})
	return err
}

func (h *ObserveHandler) handleActive(ctx context.Context, req Request) error {
	channel, ok := stringParam(req.Action.ActionParameters, "channel_id")
	if !ok || strings.TrimSpace(channel) == "" {
		channel = req.Dctx.Channel
	}
	limit := intParam(req.Action.ActionParameters, "limit", h.DefaultLimit)

	messages, err := h.Bus.FetchMessages(ctx, h.HandlerName, channel, limit)
	if err != nil {
		if ferr := h.finish(ctx, req.Thought.ID, types.ThoughtStatusFailed, &req.Action); ferr != nil {
			return ferr
		}
		_, werr := h.writeFollowUp(ctx, req.Thought, types.ThoughtTypeError, "active observation failed: "+err.Error())
		h.audit(ctx, h.HandlerName, req, "failed", map[string]interface{}{"reason": err.Error()})
		return werr
	}

	if err := h.finish(ctx, req.Thought.ID, types.ThoughtStatusCompleted, &req.Action); err != nil {
		return err
	}
	summary := fmt.Sprintf("observed %d message(s) on channel %s", len(messages), channel)
	_, werr := h.writeFollowUp(ctx, req.Thought, types.ThoughtTypeObservation, summary)
	h.audit(ctx, h.HandlerName, req, "success", map[string]interface{}{"mode": "active", "count": len(messages)})
	return werr
}
