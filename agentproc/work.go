package agentproc

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ciris-ai/ciris-agent/types"
)

// RunWorkCycle executes one WORK-state tick (spec.md §4.9): activate
// pending tasks up to the cap, seed a Thought for every active task that
// still needs one, then drain whatever the Processing Queue is currently
// holding through a bounded worker pool. Returns the number of Thoughts
// processed this tick.
func (p *Processor) RunWorkCycle(ctx context.Context) (int, error) {
	if _, err := p.Tasks.ActivatePendingTasks(ctx); err != nil {
		return 0, err
	}

	batch := p.BatchSize
	if batch <= 0 {
		batch = p.MaxInflightThoughts
	}
	needingSeed, err := p.Tasks.GetTasksNeedingSeed(ctx, batch)
	if err != nil {
		return 0, err
	}

	q := p.ensureQueue()
	for _, t := range needingSeed {
		th := &types.Thought{
			ID:           uuid.NewString(),
			SourceTaskID: t.ID,
			ThoughtType:  types.ThoughtTypeStandard,
			Status:       types.ThoughtStatusPending,
			Content:      t.Description,
			Context:      types.ThoughtContext{Channel: t.Context.Channel},
		}
		if err := p.Store.AddThought(ctx, th); err != nil {
			p.Logger.ErrorWithContext(ctx, "failed to seed thought", map[string]interface{}{"task_id": t.ID, "error": err.Error()})
			continue
		}
		item := types.ProcessingQueueItem{
			ThoughtID:    th.ID,
			SourceTaskID: t.ID,
			Type:         th.ThoughtType,
			Priority:     t.Priority,
		}
		if err := q.Push(ctx, item); err != nil {
			return 0, err
		}
	}

	return p.drainQueue(ctx)
}

// drainQueue pops every item currently buffered in the Processing Queue
// and processes it through a semaphore-bounded worker pool, panic-safe per
// worker, mirroring orchestration/executor.go's fan-out.
func (p *Processor) drainQueue(ctx context.Context) (int, error) {
	q := p.ensureQueue()
	capacity := p.MaxInflightThoughts
	if capacity <= 0 {
		capacity = 10
	}
	semaphore := make(chan struct{}, capacity)

	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0

	for {
		item, ok := q.TryPop()
		if !ok {
			wg.Wait()
			return processed, nil
		}

		semaphore <- struct{}{}
		wg.Add(1)
		go func(item types.ProcessingQueueItem) {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					p.Logger.ErrorWithContext(ctx, "panic processing thought", map[string]interface{}{
						"thought_id": item.ThoughtID, "panic": r,
					})
				}
			}()
			if err := p.ProcessThought(ctx, item.ThoughtID); err != nil {
				p.Logger.ErrorWithContext(ctx, "failed to process thought", map[string]interface{}{
					"thought_id": item.ThoughtID, "error": err.Error(),
				})
				return
			}
			mu.Lock()
			processed++
			mu.Unlock()
		}(item)
	}
}
