package action

import (
	"context"
	"errors"
	"time"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// DefaultToolResultTimeout matches spec.md §6's TOOL_RESULT_TIMEOUT_SECONDS
// default.
const DefaultToolResultTimeout = 30 * time.Second

// ToolHandler validates the tool name and parameters, executes with a
// correlation id, and bounds the wait on the result (spec.md §4.6).
type ToolHandler struct {
	base
	HandlerName string
	Timeout     time.Duration
	Validator   ParameterValidator
}

// NewToolHandler constructs a ToolHandler with the default timeout.
func NewToolHandler(s store.Store, b busFacade, logger telemetry.Logger, validator ParameterValidator) *ToolHandler {
	return &ToolHandler{base: newBase(s, b, logger), HandlerName: "tool_handler", Timeout: DefaultToolResultTimeout, Validator: validator}
}

// Handle implements Handler.
func (h *ToolHandler) Handle(ctx context.Context, req Request) error {
	h.audit(ctx, h.HandlerName, req, "start", nil)

	toolName, ok := stringParam(req.Action.ActionParameters, "tool_name")
	if !ok || toolName == "" {
		return h.validationFollowUp(ctx, req, h.HandlerName, errMissingParam("tool_name"))
	}
	if h.Validator != nil {
		if err := h.Validator.Validate(toolName, req.Action.ActionParameters); err != nil {
			return h.validationFollowUp(ctx, req, h.HandlerName, err)
		}
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultToolResultTimeout
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := make(map[string]interface{}, len(req.Action.ActionParameters)+1)
	for k, v := range req.Action.ActionParameters {
		params[k] = v
	}
	params["correlation_id"] = newID()

	result, err := h.Bus.ExecuteTool(toolCtx, h.HandlerName, toolName, params)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "tool result timed out after " + timeout.String()
		}
		if ferr := h.finish(ctx, req.Thought.ID, types.ThoughtStatusFailed, &req.Action); ferr != nil {
			return ferr
		}
		_, werr := h.writeFollowUp(ctx, req.Thought, types.ThoughtTypeError, "tool "+toolName+" failed: "+reason)
		h.audit(ctx, h.HandlerName, req, "failed", map[string]interface{}{"reason": reason})
		return werr
	}

	if !result.Success {
		if ferr := h.finish(ctx, req.Thought.ID, types.ThoughtStatusFailed, &req.Action); ferr != nil {
			return ferr
		}
		_, werr := h.writeFollowUp(ctx, req.Thought, types.ThoughtTypeError, "tool "+toolName+" reported failure: "+result.Error)
		h.audit(ctx, h.HandlerName, req, "failed", map[string]interface{}{"reason": result.Error})
		return werr
	}

	if err := h.finish(ctx, req.Thought.ID, types.ThoughtStatusCompleted, &req.Action); err != nil {
		return err
	}
	_, werr := h.writeFollowUp(ctx, req.Thought, types.ThoughtTypeFollowUp, "tool "+toolName+" completed successfully")
	h.audit(ctx, h.HandlerName, req, "success", map[string]interface{}{"tool": toolName})
	return werr
}
