package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/types"
)

func TestScheduler_TickActivatesPendingTasksAndReportsSeedBacklog(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.AddTask(ctx, &types.Task{ID: "pending1", Status: types.TaskStatusPending}))

	m := New(s, 10, nil, sequentialIDs("w"), nil)

	ticks := make(chan struct{ activated, needingSeed int }, 4)
	sched := NewScheduler(SchedulerConfig{
		Manager:  m,
		Schedule: "@every 20ms",
		OnTick: func(_ context.Context, activated, needingSeed int) {
			select {
			case ticks <- struct{ activated, needingSeed int }{activated, needingSeed}:
			default:
			}
		},
	})

	sched.Start()
	defer sched.Stop()

	select {
	case tick := <-ticks:
		assert.Equal(t, 1, tick.activated)
		assert.Equal(t, 1, tick.needingSeed)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never ticked")
	}
}

func TestScheduler_InvalidScheduleDisablesTickWithoutPanicking(t *testing.T) {
	s := store.NewMemStore()
	m := New(s, 10, nil, sequentialIDs("w"), nil)

	sched := NewScheduler(SchedulerConfig{Manager: m, Schedule: "not a cron expression"})
	sched.Start()
	sched.Stop()
}
