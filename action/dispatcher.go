// Package action implements the ActionDispatcher and its ten handlers
// (spec.md §4.6): the terminal stage of the pipeline that performs side
// effects via the Bus, writes Thought status, and produces at most one
// follow-up. Grounded on an orchestration handler-registry
// dispatch pattern (map of action kind to handler, invoked after
// guardrails) in orchestration/executor.go.
package action

import (
	"context"
	"fmt"

	"github.com/ciris-ai/ciris-agent/bus"
	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// Handler implements the six-point contract from spec.md §4.6 for one
// ActionKind.
type Handler interface {
	Handle(ctx context.Context, req Request) error
}

// Request bundles everything a handler needs: the action to perform (the
// dispatcher looks this up via final_action, not the original), the
// thought/task it is acting on, and the dispatch context carrying the
// guardrail result (nil for terminal actions that bypassed guardrails).
type Request struct {
	Action  types.ActionSelectionResult
	Thought *types.Thought
	Task    *types.Task
	Dctx    types.DispatchContext
}

// ShutdownRequester lets a handler trigger process-wide graceful shutdown
// on a critical unrecoverable failure (spec.md §4.6 point 6), without the
// action package importing the shutdown package (which depends on it for
// the wakeup/shutdown sequencing).
type ShutdownRequester interface {
	RequestGlobalShutdown(reason string)
}

// Dispatcher holds the ActionKind -> Handler map and performs the lookup
// named in spec.md §4.6.
type Dispatcher struct {
	handlers map[types.ActionKind]Handler
	store    store.Store
	logger   telemetry.Logger
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher(s store.Store, logger telemetry.Logger) *Dispatcher {
	if logger == nil {
		logger = telemetry.NoOpLogger{}
	}
	return &Dispatcher{handlers: make(map[types.ActionKind]Handler), store: s, logger: logger}
}

// Register binds a handler to an action kind.
func (d *Dispatcher) Register(kind types.ActionKind, h Handler) {
	d.handlers[kind] = h
}

// Dispatch looks up the handler for action.SelectedAction (the final
// action, never the original) and invokes it. A missing handler is
// recorded as an error and the Thought is marked FAILED rather than
// panicking the pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, action types.ActionSelectionResult, thought *types.Thought, task *types.Task, dctx types.DispatchContext) error {
	h, ok := d.handlers[action.SelectedAction]
	if !ok {
		err := fmt.Errorf("action: no handler registered for %s", action.SelectedAction)
		d.logger.ErrorWithContext(ctx, "dispatch failed: no handler", map[string]interface{}{
			"thought_id": thought.ID, "action": string(action.SelectedAction),
		})
		_ = d.store.UpdateThoughtStatus(ctx, store.ThoughtStatusUpdate{
			ThoughtID: thought.ID,
			NewStatus: types.ThoughtStatusFailed,
			FinalAction: &action,
		})
		return err
	}
	return h.Handle(ctx, Request{Action: action, Thought: thought, Task: task, Dctx: dctx})
}

// busFacade is the subset of *bus.Bus every handler calls through; kept as
// an interface so handlers are testable against fakes without standing up
// a real registry.
type busFacade interface {
	SendMessage(ctx context.Context, handler, channel, content string) error
	FetchMessages(ctx context.Context, handler, channel string, limit int) ([]types.ServiceCorrelation, error)
	Memorize(ctx context.Context, handler string, node types.GraphNode) error
	Recall(ctx context.Context, handler, id string) (*types.GraphNode, error)
	Forget(ctx context.Context, handler, id string) error
	ExecuteTool(ctx context.Context, handler, toolName string, params map[string]interface{}) (bus.ToolResult, error)
	LogAudit(ctx context.Context, handler string, event bus.AuditEvent)
	SendDeferral(ctx context.Context, handler string, pkg types.DeferralPackage) error
}

var _ busFacade = (*bus.Bus)(nil)
