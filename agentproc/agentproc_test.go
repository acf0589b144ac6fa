package agentproc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-agent/action"
	"github.com/ciris-ai/ciris-agent/bus"
	"github.com/ciris-ai/ciris-agent/contextbuilder"
	"github.com/ciris-ai/ciris-agent/dma"
	"github.com/ciris-ai/ciris-agent/guardrail"
	"github.com/ciris-ai/ciris-agent/orchestrator"
	"github.com/ciris-ai/ciris-agent/ponder"
	"github.com/ciris-ai/ciris-agent/shutdown"
	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/task"
	"github.com/ciris-ai/ciris-agent/types"
)

// fakeEvaluator always approves, standing in for Ethical/CommonSense.
type fakeEvaluator struct{}

func (fakeEvaluator) Evaluate(ctx context.Context, in dma.Input) (dma.Verdict, error) {
	return dma.Verdict{Decision: "approve"}, nil
}

// scriptedSelector lets each test decide the next action from the triaged
// input without needing a real LLM, mirroring dma_test.go's fakeLLM.
type scriptedSelector struct {
	decide func(in dma.ActionSelectionInput) types.ActionSelectionResult
}

func (s *scriptedSelector) Evaluate(ctx context.Context, in dma.ActionSelectionInput) (types.ActionSelectionResult, error) {
	return s.decide(in), nil
}

// fakeBus implements the dispatcher's busFacade structurally (unexported
// interface, satisfied by method set alone).
type fakeBus struct {
	sendErr     error
	sentChannel string
	sentContent string
	correlate   bool
}

func (f *fakeBus) SendMessage(ctx context.Context, handler, channel, content string) error {
	f.sentChannel, f.sentContent = channel, content
	return f.sendErr
}
func (f *fakeBus) FetchMessages(ctx context.Context, handler, channel string, limit int) ([]types.ServiceCorrelation, error) {
	return nil, nil
}
func (f *fakeBus) Memorize(ctx context.Context, handler string, node types.GraphNode) error { return nil }
func (f *fakeBus) Recall(ctx context.Context, handler, id string) (*types.GraphNode, error)  { return nil, store.ErrNotFound }
func (f *fakeBus) Forget(ctx context.Context, handler, id string) error                      { return nil }
func (f *fakeBus) ExecuteTool(ctx context.Context, handler, toolName string, params map[string]interface{}) (bus.ToolResult, error) {
	return bus.ToolResult{Success: true}, nil
}
func (f *fakeBus) LogAudit(ctx context.Context, handler string, event bus.AuditEvent) {}
func (f *fakeBus) SendDeferral(ctx context.Context, handler string, pkg types.DeferralPackage) error {
	return nil
}

type harness struct {
	store    store.Store
	bus      *fakeBus
	tasks    *task.Manager
	sd       *shutdown.Manager
	proc     *Processor
	selector *scriptedSelector
}

func newHarness(t *testing.T, decide func(in dma.ActionSelectionInput) types.ActionSelectionResult) *harness {
	s := store.NewMemStore()
	fb := &fakeBus{}
	selector := &scriptedSelector{decide: decide}

	orch := orchestrator.New(fakeEvaluator{}, fakeEvaluator{}, selector)

	gr := guardrail.New(guardrail.NewRegistry())

	roots := action.NewRootPolicy([]string{task.RootTaskID})
	disp := action.NewDispatcher(s, nil)
	disp.Register(types.ActionSpeak, action.NewSpeakHandler(s, fb, nil, nil))
	disp.Register(types.ActionTaskComplete, action.NewTaskCompleteHandler(s, fb, nil, roots, isWakeupStepTask))
	disp.Register(types.ActionPonder, action.NewPonderHandler(s, fb, nil, ponder.New(s), roots))
	disp.Register(types.ActionDefer, action.NewDeferHandler(s, fb, nil, roots))
	disp.Register(types.ActionReject, action.NewRejectHandler(s, fb, nil, nil))
	disp.Register(types.ActionObserve, action.NewObserveHandler(s, fb, nil))
	disp.Register(types.ActionTool, action.NewToolHandler(s, fb, nil, nil))
	disp.Register(types.ActionMemorize, action.NewMemorizeHandler(s, fb, nil))
	disp.Register(types.ActionRecall, action.NewRecallHandler(s, fb, nil))
	disp.Register(types.ActionForget, action.NewForgetHandler(s, fb, nil, nil))

	seq := 0
	newID := func() string {
		seq++
		return "wakeup-step-" + string(rune('0'+seq))
	}
	tasks := task.New(s, 10, nil, newID, nil)
	sd := shutdown.New(nil)

	proc := New(s, contextbuilder.New(s), orch, gr, disp, tasks, sd, nil)
	proc.MaxInflightThoughts = 4
	proc.BatchSize = 4
	proc.MaxRounds = 4

	return &harness{store: s, bus: fb, tasks: tasks, sd: sd, proc: proc, selector: selector}
}

func isWakeupStepTask(t *types.Task) bool {
	return t != nil && t.ParentTaskID == task.RootTaskID
}

func TestProcessThought_HappySpeak(t *testing.T) {
	h := newHarness(t, func(in dma.ActionSelectionInput) types.ActionSelectionResult {
		return types.ActionSelectionResult{
			SelectedAction:   types.ActionSpeak,
			ActionParameters: map[string]interface{}{"channel_id": "general", "content": "hello"},
			Rationale:        "greet",
		}
	})
	ctx := context.Background()
	require.NoError(t, h.store.AddTask(ctx, &types.Task{ID: "t1", Description: "say hi", Status: types.TaskStatusActive}))
	th := &types.Thought{ID: "th1", SourceTaskID: "t1", ThoughtType: types.ThoughtTypeStandard, Status: types.ThoughtStatusPending, Content: "say hi"}
	require.NoError(t, h.store.AddThought(ctx, th))

	err := h.proc.ProcessThought(ctx, "th1")
	require.NoError(t, err)

	stored, err := h.store.GetThought(ctx, "th1")
	require.NoError(t, err)
	assert.Equal(t, types.ThoughtStatusCompleted, stored.Status)
	assert.Equal(t, "hello", h.bus.sentContent)

	followUps, err := h.store.GetThoughtsByTaskID(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, followUps, 2) // original + follow-up nudging TASK_COMPLETE
}

func TestProcessThought_PonderBounceThenDefer(t *testing.T) {
	h := newHarness(t, func(in dma.ActionSelectionInput) types.ActionSelectionResult {
		return types.ActionSelectionResult{
			SelectedAction:   types.ActionPonder,
			ActionParameters: map[string]interface{}{"questions": []string{"why?"}},
		}
	})
	h.proc.Guardrails = guardrail.New(guardrail.NewRegistry())
	h.proc.MaxRounds = 2

	ctx := context.Background()
	require.NoError(t, h.store.AddTask(ctx, &types.Task{ID: "t1", Description: "decide something", Status: types.TaskStatusActive}))
	th := &types.Thought{ID: "th1", SourceTaskID: "t1", ThoughtType: types.ThoughtTypeStandard, Status: types.ThoughtStatusPending}
	require.NoError(t, h.store.AddThought(ctx, th))

	// Drive the ponder manager past its round budget directly; the
	// dispatcher's PonderHandler calls ponder.Manager.Process under the
	// covers, which defers once PonderCount reaches MaxPonderRounds-1.
	ponderMgr := ponder.New(h.store)
	ponderMgr.MaxPonderRounds = 2

	disp := action.NewDispatcher(h.store, nil)
	disp.Register(types.ActionPonder, action.NewPonderHandler(h.store, h.bus, nil, ponderMgr, action.NewRootPolicy(nil)))
	h.proc.Dispatcher = disp

	require.NoError(t, h.proc.ProcessThought(ctx, "th1"))
	first, err := h.store.GetThought(ctx, "th1")
	require.NoError(t, err)
	assert.Equal(t, types.ThoughtStatusPending, first.Status)
	assert.Equal(t, 1, first.PonderCount)

	require.NoError(t, h.proc.ProcessThought(ctx, "th1"))
	second, err := h.store.GetThought(ctx, "th1")
	require.NoError(t, err)
	assert.Equal(t, types.ThoughtStatusDeferred, second.Status)

	task1, err := h.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusDeferred, task1.Status)
}

func TestProcessThought_GuardrailOverridesToPonder(t *testing.T) {
	h := newHarness(t, func(in dma.ActionSelectionInput) types.ActionSelectionResult {
		return types.ActionSelectionResult{SelectedAction: types.ActionSpeak, ActionParameters: map[string]interface{}{"content": "unsafe"}}
	})
	registry := guardrail.NewRegistry()
	registry.Register(blockEverything{})
	h.proc.Guardrails = guardrail.New(registry)

	ctx := context.Background()
	require.NoError(t, h.store.AddTask(ctx, &types.Task{ID: "t1", Status: types.TaskStatusActive}))
	require.NoError(t, h.store.AddThought(ctx, &types.Thought{ID: "th1", SourceTaskID: "t1", Status: types.ThoughtStatusPending}))

	require.NoError(t, h.proc.ProcessThought(ctx, "th1"))
	stored, err := h.store.GetThought(ctx, "th1")
	require.NoError(t, err)
	assert.Equal(t, types.ThoughtStatusPending, stored.Status)
	assert.NotEmpty(t, stored.PonderNotes)
	assert.Empty(t, h.bus.sentContent)
}

type blockEverything struct{}

func (blockEverything) Name() string { return "block_everything" }
func (blockEverything) Check(ctx context.Context, action *types.ActionSelectionResult, dctx types.DispatchContext) (guardrail.CheckResult, error) {
	return guardrail.CheckResult{Passed: false, Reason: "blocked for test"}, nil
}

func TestProcessThought_MissingCommunicationProviderTriggersShutdown(t *testing.T) {
	h := newHarness(t, func(in dma.ActionSelectionInput) types.ActionSelectionResult {
		return types.ActionSelectionResult{SelectedAction: types.ActionSpeak, ActionParameters: map[string]interface{}{"content": "hi"}}
	})
	h.bus.sendErr = assertNoHealthyProviderErr{}

	disp := action.NewDispatcher(h.store, nil)
	disp.Register(types.ActionSpeak, action.NewSpeakHandler(h.store, h.bus, nil, h.sd))
	h.proc.Dispatcher = disp

	ctx := context.Background()
	require.NoError(t, h.store.AddTask(ctx, &types.Task{ID: "t1", Status: types.TaskStatusActive}))
	require.NoError(t, h.store.AddThought(ctx, &types.Thought{ID: "th1", SourceTaskID: "t1", Status: types.ThoughtStatusPending}))

	require.NoError(t, h.proc.ProcessThought(ctx, "th1"))
	assert.True(t, h.sd.IsGlobalShutdownRequested())
}

type assertNoHealthyProviderErr struct{}

func (assertNoHealthyProviderErr) Error() string { return "no healthy provider for communication" }

func TestRunWakeupRitual_AdvancesOnSpeakThenCompletes(t *testing.T) {
	h := newHarness(t, func(in dma.ActionSelectionInput) types.ActionSelectionResult {
		if in.Context.HasSpeakCorrelate {
			return types.ActionSelectionResult{SelectedAction: types.ActionTaskComplete}
		}
		return types.ActionSelectionResult{
			SelectedAction:   types.ActionSpeak,
			ActionParameters: map[string]interface{}{"channel_id": "general", "content": "I agree"},
		}
	})

	shutdownTriggered, err := h.proc.RunWakeupRitual(context.Background(), "general")
	require.NoError(t, err)
	assert.False(t, shutdownTriggered)
	assert.False(t, h.sd.IsGlobalShutdownRequested())

	root, err := h.store.GetTask(context.Background(), task.RootTaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusCompleted, root.Status)
}

func TestRunWakeupRitual_ExhaustedRoundsTriggersShutdown(t *testing.T) {
	h := newHarness(t, func(in dma.ActionSelectionInput) types.ActionSelectionResult {
		// Never speaks, so has_speak_correlate never becomes true and the
		// step can never reach TASK_COMPLETE.
		return types.ActionSelectionResult{
			SelectedAction:   types.ActionPonder,
			ActionParameters: map[string]interface{}{"questions": []string{"stuck"}},
		}
	})
	h.proc.MaxRounds = 2

	shutdownTriggered, err := h.proc.RunWakeupRitual(context.Background(), "general")
	require.NoError(t, err)
	assert.True(t, shutdownTriggered)
	assert.True(t, h.sd.IsGlobalShutdownRequested())
}

func TestRunWorkCycle_SeedsAndDrainsActiveTasks(t *testing.T) {
	h := newHarness(t, func(in dma.ActionSelectionInput) types.ActionSelectionResult {
		return types.ActionSelectionResult{SelectedAction: types.ActionSpeak, ActionParameters: map[string]interface{}{"channel_id": "c", "content": "hi"}}
	})
	ctx := context.Background()
	require.NoError(t, h.store.AddTask(ctx, &types.Task{ID: "t1", Description: "greet", Status: types.TaskStatusPending}))

	processed, err := h.proc.RunWorkCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	task1, err := h.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusActive, task1.Status)
}
