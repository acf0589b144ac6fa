package agentproc

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ciris-ai/ciris-agent/task"
	"github.com/ciris-ai/ciris-agent/types"
)

// RunWakeupRitual drives the fixed five-step wakeup sequence (spec.md
// §4.8/§4.9): each step's Task must reach COMPLETED — via a SPEAK
// correlation followed by TASK_COMPLETE — before the next step is seeded.
// A DEFER on any step, or a step that exhausts MaxRounds without
// completing, escalates to global shutdown and stops the ritual. Grounded
// on the original wakeup-then-work runtime loop's "one ordered step at a
// time, advance only on success" shape.
func (p *Processor) RunWakeupRitual(ctx context.Context, channelID string) (shutdownTriggered bool, err error) {
	tasks, err := p.Tasks.CreateWakeupSequenceTasks(ctx, channelID)
	if err != nil {
		return false, fmt.Errorf("agentproc: create wakeup sequence: %w", err)
	}
	if len(tasks) < 2 {
		return false, fmt.Errorf("agentproc: wakeup sequence produced no steps")
	}
	steps := tasks[1:]

	maxRounds := p.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 5
	}

	for _, stepTask := range steps {
		completed := false
		for round := 0; round < maxRounds; round++ {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			default:
			}

			thought, err := p.seedOrResumeStepThought(ctx, stepTask)
			if err != nil {
				return false, fmt.Errorf("agentproc: seed wakeup step %s: %w", stepTask.Context.StepType, err)
			}

			if err := p.ProcessThought(ctx, thought.ID); err != nil {
				p.Logger.ErrorWithContext(ctx, "wakeup step processing failed", map[string]interface{}{
					"step": stepTask.Context.StepType, "round": round, "error": err.Error(),
				})
				continue
			}

			refreshed, err := p.Store.GetTask(ctx, stepTask.ID)
			if err != nil {
				return false, fmt.Errorf("agentproc: refetch wakeup step task: %w", err)
			}

			switch refreshed.Status {
			case types.TaskStatusDeferred:
				p.Shutdown.RequestGlobalShutdown(fmt.Sprintf("wakeup step %s deferred", stepTask.Context.StepType))
				return true, nil
			case types.TaskStatusCompleted:
				completed = true
			}
			if completed {
				break
			}
			// Still ACTIVE: either the step's thought was rewritten to
			// PONDER-then-PENDING by TaskCompleteHandler (spoke not yet
			// recorded) or genuinely pondered. Either way the next round
			// re-resumes the same open thought rather than seeding a new
			// one, via seedOrResumeStepThought.
		}
		if !completed {
			p.Shutdown.RequestGlobalShutdown(fmt.Sprintf("wakeup step %s exhausted %d rounds without completing", stepTask.Context.StepType, maxRounds))
			return true, nil
		}
	}

	if _, err := p.Store.UpdateTaskStatus(ctx, task.RootTaskID, types.TaskStatusCompleted); err != nil {
		return false, fmt.Errorf("agentproc: complete wakeup root: %w", err)
	}
	return false, nil
}

// seedOrResumeStepThought returns the step task's still-open Thought if one
// exists (created by a prior round, possibly rewritten to PONDER by
// TaskCompleteHandler's wakeup rule), or seeds a fresh one from the step's
// scripted content.
func (p *Processor) seedOrResumeStepThought(ctx context.Context, stepTask *types.Task) (*types.Thought, error) {
	existing, err := p.Store.GetThoughtsByTaskID(ctx, stepTask.ID)
	if err != nil {
		return nil, err
	}
	for _, th := range existing {
		if !th.Status.IsTerminal() {
			return th, nil
		}
	}

	th := &types.Thought{
		ID:           uuid.NewString(),
		SourceTaskID: stepTask.ID,
		ThoughtType:  types.ThoughtTypeStandard,
		Status:       types.ThoughtStatusPending,
		Content:      stepTask.Description,
		Context:      types.ThoughtContext{Channel: stepTask.Context.Channel},
	}
	if err := p.Store.AddThought(ctx, th); err != nil {
		return nil, err
	}
	return th, nil
}
