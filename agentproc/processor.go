// Package agentproc implements the AgentProcessor (spec.md §4.9): the
// WAKEUP/WORK/DREAM/SHUTDOWN state machine that drains the Processing
// Queue, running each Thought through DMA evaluation, guardrails, and
// dispatch. Grounded on orchestration/executor.go's semaphore-bounded
// worker pool (panic-recovered, WaitGroup-tracked) for queue draining, and
// on the original wakeup-then-work runtime loop for the state machine
// shape.
package agentproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/ciris-ai/ciris-agent/action"
	"github.com/ciris-ai/ciris-agent/contextbuilder"
	"github.com/ciris-ai/ciris-agent/dma"
	"github.com/ciris-ai/ciris-agent/guardrail"
	"github.com/ciris-ai/ciris-agent/orchestrator"
	"github.com/ciris-ai/ciris-agent/shutdown"
	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/task"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// Processor wires every pipeline stage together and drives the top-level
// state machine.
type Processor struct {
	Store          store.Store
	ContextBuilder *contextbuilder.Builder
	Orchestrator   *orchestrator.Orchestrator
	Guardrails     *guardrail.Orchestrator
	Dispatcher     *action.Dispatcher
	Tasks          *task.Manager
	Shutdown       *shutdown.Manager
	Logger         telemetry.Logger

	// MaxInflightThoughts bounds the Processing Queue's capacity and the
	// worker pool draining it (config.RuntimeConfig.MaxInflightThoughts).
	MaxInflightThoughts int
	// BatchSize bounds how many tasks are seeded per WORK tick
	// (defaults to MaxInflightThoughts).
	BatchSize int
	// MaxRounds bounds the wakeup ritual's per-step retry count
	// (config.RuntimeConfig.MaxRounds).
	MaxRounds int

	queue   *Queue
	stateMu sync.Mutex
	state   State
}

// New constructs a Processor. Call Queue lazily via ensureQueue so zero-value
// construction in tests doesn't require a queue unless Run/RunWorkCycle is
// exercised.
func New(s store.Store, cb *contextbuilder.Builder, orch *orchestrator.Orchestrator, gr *guardrail.Orchestrator, disp *action.Dispatcher, tasks *task.Manager, sd *shutdown.Manager, logger telemetry.Logger) *Processor {
	if logger == nil {
		logger = telemetry.NoOpLogger{}
	}
	return &Processor{
		Store: s, ContextBuilder: cb, Orchestrator: orch, Guardrails: gr,
		Dispatcher: disp, Tasks: tasks, Shutdown: sd, Logger: logger,
		MaxInflightThoughts: 10, BatchSize: 10, MaxRounds: 5,
	}
}

func (p *Processor) ensureQueue() *Queue {
	if p.queue == nil {
		p.queue = NewQueue(p.MaxInflightThoughts)
	}
	return p.queue
}

// ProcessThought runs one Thought through the full pipeline: context
// assembly, the three initial DMAs fanned out concurrently, sequential
// action selection, guardrail vetting (skipped for terminal actions per
// spec.md §4.5), and dispatch. The Thought's terminal status is written by
// the handler it dispatches to, except when action selection returns an
// error: then this method marks the Thought FAILED itself.
func (p *Processor) ProcessThought(ctx context.Context, thoughtID string) error {
	thought, err := p.Store.GetThought(ctx, thoughtID)
	if err != nil {
		return fmt.Errorf("agentproc: get thought %s: %w", thoughtID, err)
	}

	var sourceTask *types.Task
	if thought.SourceTaskID != "" {
		t, err := p.Store.GetTask(ctx, thought.SourceTaskID)
		if err != nil && err != store.ErrNotFound {
			return fmt.Errorf("agentproc: get task %s: %w", thought.SourceTaskID, err)
		}
		sourceTask = t
	}

	if err := p.Store.UpdateThoughtStatus(ctx, store.ThoughtStatusUpdate{
		ThoughtID: thoughtID, NewStatus: types.ThoughtStatusProcessing,
	}); err != nil {
		return fmt.Errorf("agentproc: mark processing: %w", err)
	}

	thoughtCtx, err := p.ContextBuilder.Build(ctx, thought, sourceTask)
	if err != nil {
		return fmt.Errorf("agentproc: build context: %w", err)
	}

	in := dma.Input{Thought: thought, Context: thoughtCtx}
	dmaResults := p.Orchestrator.RunInitialDMAs(ctx, in)

	selection, err := p.Orchestrator.RunActionSelection(ctx, dmaResults, in)
	if err != nil {
		p.Logger.ErrorWithContext(ctx, "action selection failed", map[string]interface{}{
			"thought_id": thoughtID, "error": err.Error(),
		})
		_ = p.Store.UpdateThoughtStatus(ctx, store.ThoughtStatusUpdate{
			ThoughtID: thoughtID, NewStatus: types.ThoughtStatusFailed,
		})
		return fmt.Errorf("agentproc: action selection: %w", err)
	}

	dctx := types.DispatchContext{
		Channel:       thoughtCtx.Channel,
		Author:        thoughtCtx.Author,
		OriginService: thoughtCtx.OriginService,
		ActionKind:    selection.SelectedAction,
		ThoughtID:     thought.ID,
		RoundNumber:   thought.RoundNumber,
	}
	if sourceTask != nil {
		dctx.TaskID = sourceTask.ID
	}

	final := selection
	if !types.TerminalActionKinds[selection.SelectedAction] {
		gr := p.Guardrails.Vet(ctx, selection, dctx)
		dctx.GuardrailResult = &gr
		if gr.FinalAction != nil {
			final = *gr.FinalAction
		}
	}

	if err := p.Dispatcher.Dispatch(ctx, final, thought, sourceTask, dctx); err != nil {
		return fmt.Errorf("agentproc: dispatch %s: %w", final.SelectedAction, err)
	}
	return nil
}
