package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// MemStore is an in-memory, mutex-guarded Store, grounded on a
// core.MemoryStore: a single RWMutex-protected map per entity, with every
// mutating operation atomic from the caller's perspective. Task and
// Thought additions and status changes are logged; thought deletions and
// correlation writes are not.
type MemStore struct {
	mu sync.RWMutex

	tasks        map[string]*types.Task
	thoughts     map[string]*types.Thought
	correlations map[string]*types.ServiceCorrelation

	logger telemetry.Logger
}

// NewMemStore creates an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{
		tasks:        make(map[string]*types.Task),
		thoughts:     make(map[string]*types.Thought),
		correlations: make(map[string]*types.ServiceCorrelation),
		logger:       telemetry.NoOpLogger{},
	}
}

// SetLogger configures the logger used for store operations.
func (s *MemStore) SetLogger(l telemetry.Logger) {
	if l == nil {
		l = telemetry.NoOpLogger{}
	}
	if cal, ok := l.(telemetry.ComponentLogger); ok {
		s.logger = cal.WithComponent("store")
		return
	}
	s.logger = l
}

func (s *MemStore) AddTask(ctx context.Context, task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	s.tasks[task.ID] = task.Clone()

	s.logger.Debug("task added", map[string]interface{}{"task_id": task.ID, "status": string(task.Status)})
	return nil
}

func (s *MemStore) GetTask(ctx context.Context, id string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// UpdateTaskStatus is a single critical-section read-modify-write: it reads
// the current status under the same lock it writes with, so concurrent
// callers never interleave, and applying the same target status twice is a
// no-op on the second call (idempotence, spec.md §8).
func (s *MemStore) UpdateTaskStatus(ctx context.Context, id string, newStatus types.TaskStatus) (types.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return "", ErrNotFound
	}

	prior := t.Status
	if prior == newStatus {
		return prior, nil
	}

	t.Status = newStatus
	t.UpdatedAt = time.Now()

	s.logger.Debug("task status transition", map[string]interface{}{
		"task_id": id, "from": string(prior), "to": string(newStatus),
	})
	return prior, nil
}

func (s *MemStore) CountActiveTasks(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, t := range s.tasks {
		if t.Status == types.TaskStatusActive {
			count++
		}
	}
	return count, nil
}

func (s *MemStore) GetPendingTasksForActivation(ctx context.Context, limit int) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*types.Task
	for _, t := range s.tasks {
		if t.Status == types.TaskStatusPending {
			pending = append(pending, t.Clone())
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// GetActiveTasks returns every ACTIVE task, used by TaskManager.
// GetTasksNeedingSeed to find tasks without a seed Thought yet.
func (s *MemStore) GetActiveTasks(ctx context.Context) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*types.Task
	for _, t := range s.tasks {
		if t.Status == types.TaskStatusActive {
			active = append(active, t.Clone())
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })
	return active, nil
}

func (s *MemStore) TaskExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tasks[id]
	return ok, nil
}

func (s *MemStore) AddThought(ctx context.Context, thought *types.Thought) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if thought.CreatedAt.IsZero() {
		thought.CreatedAt = now
	}
	thought.UpdatedAt = now
	s.thoughts[thought.ID] = thought.Clone()

	s.logger.Debug("thought added", map[string]interface{}{
		"thought_id": thought.ID, "task_id": thought.SourceTaskID, "type": string(thought.ThoughtType),
	})
	return nil
}

func (s *MemStore) GetThought(ctx context.Context, id string) (*types.Thought, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.thoughts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemStore) UpdateThoughtStatus(ctx context.Context, u ThoughtStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.thoughts[u.ThoughtID]
	if !ok {
		return ErrNotFound
	}

	t.Status = u.NewStatus
	if u.FinalAction != nil {
		fa := *u.FinalAction
		t.FinalAction = &fa
	}
	if u.PonderCount != nil {
		t.PonderCount = *u.PonderCount
	}
	if u.SetNotes {
		t.PonderNotes = append([]string(nil), u.PonderNotes...)
	}
	t.UpdatedAt = time.Now()

	s.logger.Debug("thought status transition", map[string]interface{}{
		"thought_id": u.ThoughtID, "to": string(u.NewStatus),
	})
	return nil
}

func (s *MemStore) GetThoughtsByTaskID(ctx context.Context, taskID string) ([]*types.Thought, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Thought
	for _, t := range s.thoughts {
		if t.SourceTaskID == taskID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) DeleteThoughtsByIDs(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.thoughts, id)
	}
	return nil
}

func (s *MemStore) AddCorrelation(ctx context.Context, c *types.ServiceCorrelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	cp := *c
	s.correlations[c.ID] = &cp
	return nil
}

func (s *MemStore) GetCorrelationsByTaskAndAction(ctx context.Context, taskID, actionType string, status types.CorrelationStatus) ([]*types.ServiceCorrelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.ServiceCorrelation
	for _, c := range s.correlations {
		if c.TaskID != taskID || c.ActionType != actionType {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ Store = (*MemStore)(nil)
