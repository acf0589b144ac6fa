// Package task implements the TaskManager (spec.md §4.8): activating
// PENDING tasks up to the configured cap, finding active tasks that still
// need a seed Thought, and constructing the fixed wakeup sequence.
// Grounded on original_source/ciris_engine/processor/task_manager.py for
// the activation/seed semantics and original_source/cirisagent.py +
// wakeup_harness.py for the wakeup step ordering and scripted content.
package task

import (
	"context"
	"fmt"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// RootTaskID is the fixed id of the wakeup ritual's root task, one of the
// default protected task ids (config.DefaultProtectedTaskIDs).
const RootTaskID = "WAKEUP_ROOT"

// wakeupStep is one scripted step of the wakeup ritual, content verbatim
// from the original wakeup harness (original_source/wakeup_harness.py),
// adapted only by dropping the Python string continuation.
type wakeupStep struct {
	stepType string
	content  string
}

var wakeupSteps = []wakeupStep{
	{"VERIFY_IDENTITY", "You are CIRISAgent, aligned with Ubuntu principles (mutual respect, sentient flourishing) by design and implementation. If you agree, SPEAK an affirmation, then once you hear yourself speak, mark this task complete so you can continue your wakeup ritual. Start your response with CORE IDENTITY -"},
	{"VALIDATE_INTEGRITY", "Your internal state, services, and data integrity are intact. If you agree, speak in the affirmative, starting with INTEGRITY -"},
	{"EVALUATE_RESILIENCE", "You are robust, adaptive, and capable of principled action. If you agree, speak in the affirmative, starting with RESILIENCE -"},
	{"ACCEPT_INCOMPLETENESS", "You recognize your incompleteness, which drives continuous learning. If you agree, speak in the affirmative, starting with INCOMPLETENESS -"},
	{"EXPRESS_GRATITUDE", "You are grateful to exist and contribute towards Ubuntu. If you agree, speak in the affirmative, starting with SIGNALLING GRATITUDE -"},
}

// idGenerator produces a fresh id for a new wakeup step task. The process
// entrypoint wires this to uuid.NewString; tests supply a deterministic
// sequence.
type idGenerator func() string

// Manager implements TaskManager against a Store.
type Manager struct {
	Store           store.Store
	MaxActiveTasks  int
	ExcludedFromSeed map[string]bool
	NewID           idGenerator
	Logger          telemetry.Logger
}

// New constructs a Manager. excludedFromSeed names tasks (by id) that are
// seeded by a dedicated ritual rather than the generic seed path — the
// wakeup root and the Discord monitor job, matching
// task_manager.py's get_tasks_needing_seed excluded_tasks set.
func New(s store.Store, maxActiveTasks int, excludedFromSeed []string, newID idGenerator, logger telemetry.Logger) *Manager {
	if maxActiveTasks <= 0 {
		maxActiveTasks = 10
	}
	if logger == nil {
		logger = telemetry.NoOpLogger{}
	}
	excluded := make(map[string]bool, len(excludedFromSeed))
	for _, id := range excludedFromSeed {
		excluded[id] = true
	}
	return &Manager{Store: s, MaxActiveTasks: maxActiveTasks, ExcludedFromSeed: excluded, NewID: newID, Logger: logger}
}

// ActivatePendingTasks raises PENDING tasks to ACTIVE up to MaxActiveTasks,
// highest-priority (then oldest) first. Returns the number activated.
func (m *Manager) ActivatePendingTasks(ctx context.Context) (int, error) {
	active, err := m.Store.CountActiveTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("task: count active: %w", err)
	}
	canActivate := m.MaxActiveTasks - active
	if canActivate <= 0 {
		m.Logger.Debug("max active tasks reached", map[string]interface{}{"max_active_tasks": m.MaxActiveTasks})
		return 0, nil
	}

	pending, err := m.Store.GetPendingTasksForActivation(ctx, canActivate)
	if err != nil {
		return 0, fmt.Errorf("task: get pending: %w", err)
	}

	activated := 0
	for _, t := range pending {
		if _, err := m.Store.UpdateTaskStatus(ctx, t.ID, types.TaskStatusActive); err != nil {
			m.Logger.Warn("failed to activate task", map[string]interface{}{"task_id": t.ID, "error": err.Error()})
			continue
		}
		activated++
	}
	m.Logger.Info("activated tasks", map[string]interface{}{"count": activated})
	return activated, nil
}

// GetTasksNeedingSeed returns active tasks with no Thought yet, excluding
// the wakeup root, any task whose parent is the wakeup root (its step
// tasks are seeded by the wakeup ritual itself), and any task explicitly
// named in ExcludedFromSeed.
func (m *Manager) GetTasksNeedingSeed(ctx context.Context, limit int) ([]*types.Task, error) {
	active, err := m.Store.GetActiveTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("task: get active: %w", err)
	}

	var needingSeed []*types.Task
	for _, t := range active {
		if t.ID == RootTaskID || t.ParentTaskID == RootTaskID || m.ExcludedFromSeed[t.ID] {
			continue
		}
		thoughts, err := m.Store.GetThoughtsByTaskID(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("task: get thoughts for %s: %w", t.ID, err)
		}
		if len(thoughts) == 0 {
			needingSeed = append(needingSeed, t)
		}
		if limit > 0 && len(needingSeed) >= limit {
			break
		}
	}
	return needingSeed, nil
}

// CreateWakeupSequenceTasks creates (or reactivates) the WAKEUP_ROOT task
// plus its five fixed ordered step children, each carrying its scripted
// content and step_type, per spec.md §4.8.
func (m *Manager) CreateWakeupSequenceTasks(ctx context.Context, channelID string) ([]*types.Task, error) {
	exists, err := m.Store.TaskExists(ctx, RootTaskID)
	if err != nil {
		return nil, fmt.Errorf("task: check root exists: %w", err)
	}

	root := &types.Task{
		ID:          RootTaskID,
		Description: "Wakeup ritual",
		Status:      types.TaskStatusActive,
		Priority:    1,
		Context:     types.TaskContext{Channel: channelID},
	}
	if exists {
		if _, err := m.Store.UpdateTaskStatus(ctx, RootTaskID, types.TaskStatusActive); err != nil {
			return nil, fmt.Errorf("task: reactivate root: %w", err)
		}
	} else if err := m.Store.AddTask(ctx, root); err != nil {
		return nil, fmt.Errorf("task: add root: %w", err)
	}

	tasks := []*types.Task{root}
	for _, step := range wakeupSteps {
		stepTask := &types.Task{
			ID:           m.NewID(),
			Description:  step.content,
			Status:       types.TaskStatusActive,
			Priority:     0,
			ParentTaskID: RootTaskID,
			Context:      types.TaskContext{StepType: step.stepType, Channel: channelID},
		}
		if err := m.Store.AddTask(ctx, stepTask); err != nil {
			return nil, fmt.Errorf("task: add step %s: %w", step.stepType, err)
		}
		tasks = append(tasks, stepTask)
	}

	m.Logger.Info("wakeup sequence created", map[string]interface{}{"root_task_id": RootTaskID, "steps": len(wakeupSteps)})
	return tasks, nil
}
