package agentproc

import (
	"context"

	"github.com/ciris-ai/ciris-agent/types"
)

// Queue is the Processing Queue (spec.md §3/§4.9): a bounded buffered
// channel of lightweight handles, so pushing a thought that is already
// at capacity blocks the feeder rather than growing memory without bound.
// Grounded on orchestration/executor.go's semaphore channel used the same
// way — a fixed-size channel as the concurrency/backpressure primitive
// instead of an unbounded slice.
type Queue struct {
	items chan types.ProcessingQueueItem
}

// NewQueue builds a Queue with the given capacity (config.MaxInflightThoughts).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 10
	}
	return &Queue{items: make(chan types.ProcessingQueueItem, capacity)}
}

// Push enqueues item, blocking until there is room or ctx is canceled.
func (q *Queue) Push(ctx context.Context, item types.ProcessingQueueItem) error {
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes and returns one item, blocking until one is available or ctx
// is canceled.
func (q *Queue) Pop(ctx context.Context) (types.ProcessingQueueItem, bool) {
	select {
	case item := <-q.items:
		return item, true
	case <-ctx.Done():
		return types.ProcessingQueueItem{}, false
	}
}

// TryPop removes and returns one item without blocking, reporting false if
// the queue is currently empty.
func (q *Queue) TryPop() (types.ProcessingQueueItem, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
		return types.ProcessingQueueItem{}, false
	}
}

// Len reports the number of items currently buffered.
func (q *Queue) Len() int { return len(q.items) }
