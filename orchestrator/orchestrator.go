// Package orchestrator implements the DMAOrchestrator (spec.md §4.4): fans
// the three initial evaluators out concurrently, tolerates partial
// failure, then runs ActionSelection sequentially against the triaged
// result. Grounded on orchestration/executor.go "wait all,
// collect errors" fan-out shape.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/ciris-ai/ciris-agent/dma"
	"github.com/ciris-ai/ciris-agent/resilience"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// DMAResults is the outcome of run_initial_dmas: missing evaluators are
// represented as nil pointers rather than causing the orchestrator to
// fail, so ActionSelection always sees a (possibly degraded) input.
type DMAResults struct {
	Ethical        *dma.Verdict
	CommonSense    *dma.Verdict
	DomainSpecific *dma.Verdict
	Errors         []string
}

// Orchestrator wires the four evaluator slots together. DomainSpecific is
// optional: agent profiles that don't register one simply leave it nil.
type Orchestrator struct {
	Ethical        dma.EthicalEvaluator
	CommonSense    dma.CommonSenseEvaluator
	DomainSpecific dma.DomainSpecificEvaluator
	ActionSelector dma.ActionSelectionEvaluator

	RetryConfig      resilience.RetryConfig
	PermittedActions []types.ActionKind
	AgentProfile     string
	Logger           telemetry.Logger
}

// New constructs an Orchestrator with default retry settings.
func New(ethical dma.EthicalEvaluator, commonSense dma.CommonSenseEvaluator, actionSelector dma.ActionSelectionEvaluator) *Orchestrator {
	return &Orchestrator{
		Ethical:        ethical,
		CommonSense:    commonSense,
		ActionSelector: actionSelector,
		RetryConfig:    resilience.DefaultRetryConfig(),
		Logger:         telemetry.NoOpLogger{},
	}
}

// RunInitialDMAs launches Ethical, CommonSense, and (if registered)
// DomainSpecific concurrently, awaits all, and collects successes and
// per-evaluator errors into a DMAResults. A panic inside one evaluator is
// recovered and recorded as an error rather than crashing the whole fan-out.
func (o *Orchestrator) RunInitialDMAs(ctx context.Context, in dma.Input) DMAResults {
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := DMAResults{}

	run := func(name string, evaluate func(context.Context) (dma.Verdict, error), assign func(*dma.Verdict)) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				mu.Lock()
				results.Errors = append(results.Errors, name+": panic: "+panicString(r))
				mu.Unlock()
			}
		}()
		verdict, err := dma.EvaluateWithRetries(ctx, o.RetryConfig, evaluate)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			results.Errors = append(results.Errors, name+": "+err.Error())
			return
		}
		assign(verdict)
	}

	wg.Add(1)
	go run("ethical", func(ctx context.Context) (dma.Verdict, error) { return o.Ethical.Evaluate(ctx, in) },
		func(v *dma.Verdict) { results.Ethical = v })

	wg.Add(1)
	go run("commonsense", func(ctx context.Context) (dma.Verdict, error) { return o.CommonSense.Evaluate(ctx, in) },
		func(v *dma.Verdict) { results.CommonSense = v })

	if o.DomainSpecific != nil {
		wg.Add(1)
		go run("domain_specific", func(ctx context.Context) (dma.Verdict, error) { return o.DomainSpecific.Evaluate(ctx, in) },
			func(v *dma.Verdict) { results.DomainSpecific = v })
	}

	wg.Wait()

	if len(results.Errors) > 0 {
		o.Logger.WarnWithContext(ctx, "dma fan-out had partial failures", map[string]interface{}{
			"thought_id": in.Thought.ID, "errors": results.Errors,
		})
	}
	return results
}

// RunActionSelection assembles the triaged input from a DMAResults and runs
// ActionSelection sequentially after the fan-out.
func (o *Orchestrator) RunActionSelection(ctx context.Context, results DMAResults, in dma.Input) (types.ActionSelectionResult, error) {
	asInput := dma.ActionSelectionInput{
		Thought:          in.Thought,
		Context:          in.Context,
		Ethical:          results.Ethical,
		CommonSense:      results.CommonSense,
		DomainSpecific:   results.DomainSpecific,
		Errors:           results.Errors,
		PermittedActions: o.PermittedActions,
		AgentProfile:     o.AgentProfile,
	}
	return o.ActionSelector.Evaluate(ctx, asInput)
}

func panicString(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", r)
}
