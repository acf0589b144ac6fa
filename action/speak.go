package action

import (
	"context"
	"strings"
	"time"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// SpeakHandler resolves a communication provider and sends a reply,
// recording a ServiceCorrelation and a follow-up that nudges toward
// TASK_COMPLETE next, per spec.md §4.6.
type SpeakHandler struct {
	base
	HandlerName string
	Shutdown    ShutdownRequester
}

// NewSpeakHandler constructs a SpeakHandler.
func NewSpeakHandler(s store.Store, b busFacade, logger telemetry.Logger, shutdown ShutdownRequester) *SpeakHandler {
	return &SpeakHandler{base: newBase(s, b, logger), HandlerName: "speak_handler", Shutdown: shutdown}
}

// Handle implements Handler.
func (h *SpeakHandler) Handle(ctx context.Context, req Request) error {
	h.audit(ctx, h.HandlerName, req, "start", nil)

	channel, ok := stringParam(req.Action.ActionParameters, "channel_id")
	if !ok || strings.TrimSpace(channel) == "" {
		channel = req.Dctx.Channel
	}
	content, ok := stringParam(req.Action.ActionParameters, "content")
	if !ok {
		return h.validationFollowUp(ctx, req, h.HandlerName, errMissingParam("content"))
	}

	corrID := newID()
	sendErr := h.Bus.SendMessage(ctx, h.HandlerName, channel, content)

	status := types.CorrelationCompleted
	if sendErr != nil {
		status = types.CorrelationFailed
	}
	_ = h.Store.AddCorrelation(ctx, &types.ServiceCorrelation{
		ID:          corrID,
		TaskID:      req.Thought.SourceTaskID,
		ServiceType: "communication",
		HandlerName: h.HandlerName,
		ActionType:  "speak",
		RequestData: map[string]interface{}{"channel": channel, "content": content},
		Status:      status,
		CreatedAt:   time.Now(),
	})

	if sendErr != nil {
		if h.Shutdown != nil && isNoProviderError(sendErr) {
			h.Shutdown.RequestGlobalShutdown("no communication provider available for SPEAK")
		}
		if err := h.finish(ctx, req.Thought.ID, types.ThoughtStatusFailed, &req.Action); err != nil {
			return err
		}
		_, err := h.writeFollowUp(ctx, req.Thought, types.ThoughtTypeError, "speak failed: "+sendErr.Error())
		h.audit(ctx, h.HandlerName, req, "failed", map[string]interface{}{"reason": sendErr.Error()})
		return err
	}

	if err := h.finish(ctx, req.Thought.ID, types.ThoughtStatusCompleted, &req.Action); err != nil {
		return err
	}
	_, err := h.writeFollowUp(ctx, req.Thought, types.ThoughtTypeFollowUp,
		"message was sent; this step is done, consider TASK_COMPLETE next")
	h.audit(ctx, h.HandlerName, req, "success", map[string]interface{}{"channel": channel})
	return err
}

func errMissingParam(name string) error {
	return &missingParamError{name: name}
}

type missingParamError struct{ name string }

func (e *missingParamError) Error() string { return "missing required parameter: " + e.name }

func isNoProviderError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no healthy provider")
}
