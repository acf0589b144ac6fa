// Package store defines the persisted Task/Thought/ServiceCorrelation model
// (spec.md §4.1) and provides an in-memory implementation plus an optional
// Redis-backed one for multi-process durability.
package store

import (
	"context"
	"errors"

	"github.com/ciris-ai/ciris-agent/types"
)

// ErrNotFound is returned by Get*/Update* operations when the id does not
// exist, distinguishing "not found" from other failures per spec.md §4.1.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary for Tasks, Thoughts and
// ServiceCorrelations. All status-mutating operations are single-statement
// atomic and safe under concurrent writers; a concurrent write loser observes
// a no-op, never a torn state.
type Store interface {
	AddTask(ctx context.Context, task *types.Task) error
	GetTask(ctx context.Context, id string) (*types.Task, error)
	// UpdateTaskStatus is idempotent: applying the same transition twice
	// makes no second mutation, and the second call returns the
	// already-applied status as its prior. It returns the status the task
	// held immediately before this call.
	UpdateTaskStatus(ctx context.Context, id string, newStatus types.TaskStatus) (prior types.TaskStatus, err error)
	CountActiveTasks(ctx context.Context) (int, error)
	GetPendingTasksForActivation(ctx context.Context, limit int) ([]*types.Task, error)
	TaskExists(ctx context.Context, id string) (bool, error)
	GetActiveTasks(ctx context.Context) ([]*types.Task, error)

	AddThought(ctx context.Context, thought *types.Thought) error
	GetThought(ctx context.Context, id string) (*types.Thought, error)
	UpdateThoughtStatus(ctx context.Context, update ThoughtStatusUpdate) error
	GetThoughtsByTaskID(ctx context.Context, taskID string) ([]*types.Thought, error)
	DeleteThoughtsByIDs(ctx context.Context, ids []string) error

	AddCorrelation(ctx context.Context, c *types.ServiceCorrelation) error
	GetCorrelationsByTaskAndAction(ctx context.Context, taskID, actionType string, status types.CorrelationStatus) ([]*types.ServiceCorrelation, error)
}

// ThoughtStatusUpdate bundles the optional fields update_thought_status may
// set, matching spec.md §4.1's signature without resorting to a long
// positional parameter list.
type ThoughtStatusUpdate struct {
	ThoughtID   string
	NewStatus   types.ThoughtStatus
	FinalAction *types.ActionSelectionResult
	// PonderCount and PonderNotes are pointers so callers can distinguish
	// "leave unchanged" (nil) from "set to zero value".
	PonderCount *int
	PonderNotes []string
	SetNotes    bool
}
