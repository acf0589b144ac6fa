package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/types"
)

func sequentialIDs(prefix string) idGenerator {
	n := 0
	return func() string {
		n++
		return prefix + string(rune('0'+n))
	}
}

func TestActivatePendingTasks_RespectsMaxActiveCap(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddTask(ctx, &types.Task{ID: string(rune('a' + i)), Status: types.TaskStatusPending, Priority: i}))
	}

	m := New(s, 2, nil, sequentialIDs("w"), nil)
	activated, err := m.ActivatePendingTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, activated)

	count, err := s.CountActiveTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestActivatePendingTasks_NoOpWhenAtCap(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.AddTask(ctx, &types.Task{ID: "a", Status: types.TaskStatusActive}))
	require.NoError(t, s.AddTask(ctx, &types.Task{ID: "b", Status: types.TaskStatusPending}))

	m := New(s, 1, nil, sequentialIDs("w"), nil)
	activated, err := m.ActivatePendingTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, activated)
}

func TestGetTasksNeedingSeed_ExcludesRootAndItsChildren(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.AddTask(ctx, &types.Task{ID: RootTaskID, Status: types.TaskStatusActive}))
	require.NoError(t, s.AddTask(ctx, &types.Task{ID: "step1", ParentTaskID: RootTaskID, Status: types.TaskStatusActive}))
	require.NoError(t, s.AddTask(ctx, &types.Task{ID: "normal", Status: types.TaskStatusActive}))

	m := New(s, 10, nil, sequentialIDs("w"), nil)
	needing, err := m.GetTasksNeedingSeed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, needing, 1)
	assert.Equal(t, "normal", needing[0].ID)
}

func TestGetTasksNeedingSeed_ExcludesTasksThatAlreadyHaveAThought(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.AddTask(ctx, &types.Task{ID: "t1", Status: types.TaskStatusActive}))
	require.NoError(t, s.AddThought(ctx, &types.Thought{ID: "th1", SourceTaskID: "t1"}))

	m := New(s, 10, nil, sequentialIDs("w"), nil)
	needing, err := m.GetTasksNeedingSeed(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, needing)
}

func TestGetTasksNeedingSeed_HonorsExplicitExclusionSet(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.AddTask(ctx, &types.Task{ID: "job-discord-monitor", Status: types.TaskStatusActive}))

	m := New(s, 10, []string{"job-discord-monitor"}, sequentialIDs("w"), nil)
	needing, err := m.GetTasksNeedingSeed(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, needing)
}

func TestCreateWakeupSequenceTasks_CreatesRootPlusFiveSteps(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()

	m := New(s, 10, nil, sequentialIDs("step"), nil)
	tasks, err := m.CreateWakeupSequenceTasks(ctx, "general")
	require.NoError(t, err)
	require.Len(t, tasks, 6)
	assert.Equal(t, RootTaskID, tasks[0].ID)

	stepTypes := make([]string, 0, 5)
	for _, st := range tasks[1:] {
		assert.Equal(t, RootTaskID, st.ParentTaskID)
		assert.Equal(t, types.TaskStatusActive, st.Status)
		assert.NotEmpty(t, st.Description)
		stepTypes = append(stepTypes, st.Context.StepType)
	}
	assert.Equal(t, []string{"VERIFY_IDENTITY", "VALIDATE_INTEGRITY", "EVALUATE_RESILIENCE", "ACCEPT_INCOMPLETENESS", "EXPRESS_GRATITUDE"}, stepTypes)
}

func TestCreateWakeupSequenceTasks_ReactivatesExistingRoot(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.AddTask(ctx, &types.Task{ID: RootTaskID, Status: types.TaskStatusCompleted}))

	m := New(s, 10, nil, sequentialIDs("step"), nil)
	_, err := m.CreateWakeupSequenceTasks(ctx, "")
	require.NoError(t, err)

	root, err := s.GetTask(ctx, RootTaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusActive, root.Status)
}
