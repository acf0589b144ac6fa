package action

import (
	"context"
	"errors"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// errForgetDenied is returned by the permission predicate when FORGET is
// not allowed for the target node.
var errForgetDenied = errors.New("action: forget denied by permission predicate")

// ForgetPermission gates FORGET per spec.md §4.6: "FORGET checks a
// permission predicate first."
type ForgetPermission func(node types.GraphNode, req Request) bool

func nodeFromParams(params map[string]interface{}) (types.GraphNode, error) {
	id, ok := stringParam(params, "node_id")
	if !ok || id == "" {
		return types.GraphNode{}, errMissingParam("node_id")
	}
	typ, _ := stringParam(params, "node_type")
	scope, _ := stringParam(params, "scope")
	attrs, _ := params["attributes"].(map[string]interface{})

	node := types.GraphNode{ID: id, Type: types.GraphNodeType(typ), Scope: types.GraphNodeScope(scope), Attributes: attrs}
	if node.Type == "" {
		node.Type = types.GraphNodeConcept
	}
	if node.Scope == "" {
		node.Scope = types.ScopeLocal
	}
	return node, nil
}

// MemorizeHandler writes a GraphNode via the Memory provider.
type MemorizeHandler struct {
	base
	HandlerName string
}

// NewMemorizeHandler constructs a MemorizeHandler.
func NewMemorizeHandler(s store.Store, b busFacade, logger telemetry.Logger) *MemorizeHandler {
	return &MemorizeHandler{base: newBase(s, b, logger), HandlerName: "memorize_handler"}
}

// Handle implements Handler.
func (h *MemorizeHandler) Handle(ctx context.Context, req Request) error {
	h.audit(ctx, h.HandlerName, req, "start", nil)
	node, err := nodeFromParams(req.Action.ActionParameters)
	if err != nil {
		return h.validationFollowUp(ctx, req, h.HandlerName, err)
	}
	if err := h.Bus.Memorize(ctx, h.HandlerName, node); err != nil {
		return h.fail(ctx, h.HandlerName, req, "memorize failed: "+err.Error())
	}
	return h.succeed(ctx, h.HandlerName, req, "memorized node "+node.ID)
}

// RecallHandler fetches a GraphNode via the Memory provider.
type RecallHandler struct {
	base
	HandlerName string
}

// NewRecallHandler constructs a RecallHandler.
func NewRecallHandler(s store.Store, b busFacade, logger telemetry.Logger) *RecallHandler {
	return &RecallHandler{base: newBase(s, b, logger), HandlerName: "recall_handler"}
}

// Handle implements Handler.
func (h *RecallHandler) Handle(ctx context.Context, req Request) error {
	h.audit(ctx, h.HandlerName, req, "start", nil)
	id, ok := stringParam(req.Action.ActionParameters, "node_id")
	if !ok || id == "" {
		return h.validationFollowUp(ctx, req, h.HandlerName, errMissingParam("node_id"))
	}
	node, err := h.Bus.Recall(ctx, h.HandlerName, id)
	if err != nil {
		return h.fail(ctx, h.HandlerName, req, "recall failed: "+err.Error())
	}
	return h.succeed(ctx, h.HandlerName, req, "recalled node "+node.ID)
}

// AllowAllForget is the default FORGET permission predicate: allow
// unless a caller supplies a stricter one.
func AllowAllForget(types.GraphNode, Request) bool { return true }

// ForgetHandler deletes a GraphNode via the Memory provider, after
// checking a permission predicate.
type ForgetHandler struct {
	base
	HandlerName string
	Permission  ForgetPermission
}

// NewForgetHandler constructs a ForgetHandler. permission defaults to
// AllowAllForget when nil.
func NewForgetHandler(s store.Store, b busFacade, logger telemetry.Logger, permission ForgetPermission) *ForgetHandler {
	if permission == nil {
		permission = AllowAllForget
	}
	return &ForgetHandler{base: newBase(s, b, logger), HandlerName: "forget_handler", Permission: permission}
}

// Handle implements Handler.
func (h *ForgetHandler) Handle(ctx context.Context, req Request) error {
	h.audit(ctx, h.HandlerName, req, "start", nil)
	node, err := nodeFromParams(req.Action.ActionParameters)
	if err != nil {
		return h.validationFollowUp(ctx, req, h.HandlerName, err)
	}
	if !h.Permission(node, req) {
		return h.validationFollowUp(ctx, req, h.HandlerName, errForgetDenied)
	}
	if err := h.Bus.Forget(ctx, h.HandlerName, node.ID); err != nil {
		return h.fail(ctx, h.HandlerName, req, "forget failed: "+err.Error())
	}
	return h.succeed(ctx, h.HandlerName, req, "forgot node "+node.ID)
}

// fail/succeed are the shared terminal-write + follow-up + audit sequence
// common to MEMORIZE/RECALL/FORGET.
func (b base) fail(ctx context.Context, handlerName string, req Request, message string) error {
	if err := b.finish(ctx, req.Thought.ID, types.ThoughtStatusFailed, &req.Action); err != nil {
		return err
	}
	_, err := b.writeFollowUp(ctx, req.Thought, types.ThoughtTypeError, message)
	b.audit(ctx, handlerName, req, "failed", map[string]interface{}{"reason": message})
	return err
}

func (b base) succeed(ctx context.Context, handlerName string, req Request, message string) error {
	if err := b.finish(ctx, req.Thought.ID, types.ThoughtStatusCompleted, &req.Action); err != nil {
		return err
	}
	_, err := b.writeFollowUp(ctx, req.Thought, types.ThoughtTypeFollowUp, message)
	b.audit(ctx, handlerName, req, "success", nil)
	return err
}
