// Package contextbuilder assembles the structured ThoughtContext snapshot
// handed to DMA evaluators and guardrails (spec.md §4.11, an expansion of
// the component list implied by §3's "context (structured snapshot)"
// field). Grounded on orchestration/executor.go
// buildStepContext, which assembles a step's execution context from its
// task, prior results, and workflow-level metadata the same way this
// assembles a thought's context from its task and lineage.
package contextbuilder

import (
	"context"

	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/types"
)

// Builder assembles ThoughtContext from a Task and its Thought, including
// the Thought's own ponder notes (notes of parent Thoughts are not
// collected) and the has_speak_correlate flag used by the TASK_COMPLETE
// wakeup rule.
type Builder struct {
	Store store.Store
}

// New constructs a Builder.
func New(s store.Store) *Builder {
	return &Builder{Store: s}
}

// Build returns the ThoughtContext for thought, enriched with task origin
// fields and whether a COMPLETED speak correlation already exists for the
// task (spec.md §4.6's wakeup-step rule consults this).
func (b *Builder) Build(ctx context.Context, thought *types.Thought, task *types.Task) (types.ThoughtContext, error) {
	tc := thought.Context
	if task != nil {
		if tc.Channel == "" {
			tc.Channel = task.Context.Channel
		}
		if tc.Author == "" {
			tc.Author = task.Context.Author
		}
		if tc.AuthorName == "" {
			tc.AuthorName = task.Context.AuthorName
		}
		if tc.OriginService == "" {
			tc.OriginService = task.Context.OriginService
		}
		if tc.TaskDescription == "" {
			tc.TaskDescription = task.Description
		}
	}
	tc.RoundNumber = thought.RoundNumber
	tc.PonderNotes = append([]string(nil), thought.PonderNotes...)

	correlations, err := b.Store.GetCorrelationsByTaskAndAction(ctx, thought.SourceTaskID, "speak", types.CorrelationCompleted)
	if err != nil {
		return tc, err
	}
	tc.HasSpeakCorrelate = len(correlations) > 0

	return tc, nil
}
