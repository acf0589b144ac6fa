package action

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ciris-ai/ciris-agent/bus"
	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// newID generates an id for a follow-up Thought or correlation, grounded
// on core/tool.go's use of google/uuid for every generated
// identifier.
func newID() string { return uuid.NewString() }

// base gives every handler the collaborators it shares: the Store, the
// Bus facade, and a logger. Concrete handlers embed this.
type base struct {
	Store  store.Store
	Bus    busFacade
	Logger telemetry.Logger
}

func newBase(s store.Store, b busFacade, logger telemetry.Logger) base {
	if logger == nil {
		logger = telemetry.NoOpLogger{}
	}
	return base{Store: s, Bus: b, Logger: logger}
}

// audit emits the start/outcome audit events every handler must record
// (spec.md §4.6 point 5).
func (b base) audit(ctx context.Context, handlerName string, req Request, outcome string, detail map[string]interface{}) {
	b.Bus.LogAudit(ctx, handlerName, bus.AuditEvent{
		ThoughtID: req.Thought.ID,
		TaskID:    req.Thought.SourceTaskID,
		Action:    req.Action.SelectedAction,
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// writeFollowUp creates at most one follow-up Thought linked to parent via
// parent_thought_id (spec.md §4.6 point 4) and persists it.
func (b base) writeFollowUp(ctx context.Context, parent *types.Thought, thoughtType types.ThoughtType, content string) (*types.Thought, error) {
	follow := types.NewFollowUp(newID(), parent, thoughtType, content)
	if err := b.Store.AddThought(ctx, follow); err != nil {
		return nil, err
	}
	return follow, nil
}

// finish writes the Thought's terminal status and final_action via Store
// (spec.md §4.6 point 3).
func (b base) finish(ctx context.Context, thoughtID string, status types.ThoughtStatus, final *types.ActionSelectionResult) error {
	return b.Store.UpdateThoughtStatus(ctx, store.ThoughtStatusUpdate{
		ThoughtID:   thoughtID,
		NewStatus:   status,
		FinalAction: final,
	})
}

// validationFollowUp is the standard fail path for a handler whose
// action_parameters do not parse (spec.md §4.6 point 1): a follow-up
// describing the validation error, with the original Thought FAILED.
func (b base) validationFollowUp(ctx context.Context, req Request, handlerName string, validationErr error) error {
	if err := b.finish(ctx, req.Thought.ID, types.ThoughtStatusFailed, &req.Action); err != nil {
		return err
	}
	_, err := b.writeFollowUp(ctx, req.Thought, types.ThoughtTypeError,
		"parameter validation failed for "+string(req.Action.SelectedAction)+": "+validationErr.Error())
	b.audit(ctx, handlerName, req, "failed", map[string]interface{}{"reason": validationErr.Error()})
	return err
}

func stringParam(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intParam(params map[string]interface{}, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}
