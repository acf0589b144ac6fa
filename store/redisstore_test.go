package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-agent/types"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, "test")
}

func TestRedisStore_TaskLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	require.NoError(t, s.AddTask(ctx, &types.Task{ID: "t-1", Status: types.TaskStatusPending, Priority: 3}))

	pending, err := s.GetPendingTasksForActivation(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	prior, err := s.UpdateTaskStatus(ctx, "t-1", types.TaskStatusActive)
	require.NoError(t, err)
	require.Equal(t, types.TaskStatusPending, prior)

	pending, err = s.GetPendingTasksForActivation(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	count, err := s.CountActiveTasks(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRedisStore_UpdateTaskStatus_NotFound(t *testing.T) {
	s := newTestRedisStore(t)
	_, err := s.UpdateTaskStatus(context.Background(), "missing", types.TaskStatusActive)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ThoughtsAndCorrelations(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	require.NoError(t, s.AddThought(ctx, &types.Thought{ID: "th-1", SourceTaskID: "t-1", Status: types.ThoughtStatusPending}))
	require.NoError(t, s.UpdateThoughtStatus(ctx, ThoughtStatusUpdate{
		ThoughtID: "th-1", NewStatus: types.ThoughtStatusCompleted,
		FinalAction: &types.ActionSelectionResult{SelectedAction: types.ActionTaskComplete},
	}))

	got, err := s.GetThought(ctx, "th-1")
	require.NoError(t, err)
	require.Equal(t, types.ThoughtStatusCompleted, got.Status)
	require.Equal(t, types.ActionTaskComplete, got.FinalAction.SelectedAction)

	require.NoError(t, s.AddCorrelation(ctx, &types.ServiceCorrelation{
		ID: "c-1", TaskID: "t-1", ActionType: "speak", Status: types.CorrelationCompleted,
	}))
	corrs, err := s.GetCorrelationsByTaskAndAction(ctx, "t-1", "speak", types.CorrelationCompleted)
	require.NoError(t, err)
	require.Len(t, corrs, 1)

	require.NoError(t, s.DeleteThoughtsByIDs(ctx, []string{"th-1"}))
	_, err = s.GetThought(ctx, "th-1")
	require.ErrorIs(t, err, ErrNotFound)
}
