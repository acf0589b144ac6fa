// Command ciris-agentd is the process entrypoint: it loads RuntimeConfig,
// wires every pipeline stage (store, registry, bus, DMA, guardrails,
// dispatcher, task manager, agent processor), registers the default
// console collaborator providers, and runs the AgentProcessor's
// WAKEUP/WORK/DREAM state machine until shutdown is requested. Configuration
// is read first, then every collaborator is constructed in dependency
// order. The process exits early with status 1 if the config or the store
// cannot be loaded, and otherwise when the top-level run call fails.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/ciris-ai/ciris-agent/action"
	"github.com/ciris-ai/ciris-agent/agentproc"
	"github.com/ciris-ai/ciris-agent/bus"
	"github.com/ciris-ai/ciris-agent/config"
	"github.com/ciris-ai/ciris-agent/console"
	"github.com/ciris-ai/ciris-agent/contextbuilder"
	"github.com/ciris-ai/ciris-agent/dma"
	"github.com/ciris-ai/ciris-agent/guardrail"
	"github.com/ciris-ai/ciris-agent/orchestrator"
	"github.com/ciris-ai/ciris-agent/ponder"
	"github.com/ciris-ai/ciris-agent/registry"
	"github.com/ciris-ai/ciris-agent/resilience"
	"github.com/ciris-ai/ciris-agent/shutdown"
	"github.com/ciris-ai/ciris-agent/store"
	"github.com/ciris-ai/ciris-agent/task"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

const handlerName = "core"

func main() {
	configPath := flag.String("config", "", "path to a JSON or YAML RuntimeConfig file (optional)")
	wakeupChannel := flag.String("channel", "console", "channel id the wakeup ritual speaks into")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ciris-agentd: config:", err)
		os.Exit(1)
	}

	logger := telemetry.NewProductionLogger()
	tel := telemetry.NewOtelTelemetry("ciris-agentd")

	s, err := newStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	reg := registry.New(cfg.RegistryCacheSize)
	reg.SetLogger(logger.WithComponent("registry"))
	reg.SetCircuitBreakerDefaults(cfg.CircuitBreakerFailureThreshold, cfg.CircuitBreakerCooldown)
	registerConsoleProviders(reg)
	logUnresolvedDeclaredServices(cfg, logger)

	b := bus.New(reg, logger.WithComponent("bus"))
	b.SetToolTimeout(cfg.ToolResultTimeout)

	dmaRetry := resilience.DefaultRetryConfig()
	dmaRetry.MaxAttempts = cfg.DMARetryLimit

	orch := orchestrator.New(
		dma.NewLLMEthicalEvaluator(b, handlerName),
		dma.NewLLMCommonSenseEvaluator(b, handlerName),
		dma.NewLLMActionSelector(b, handlerName),
	)
	orch.RetryConfig = dmaRetry
	orch.PermittedActions = types.AllActionKinds
	orch.Logger = logger.WithComponent("orchestrator")

	gReg := guardrail.NewRegistry()
	gReg.Register(guardrail.NewEthicalSafetyCheck(b, handlerName))
	gReg.Register(guardrail.NewRootProtectionCheck(cfg.ProtectedTaskIDs))
	gOrch := guardrail.New(gReg)
	gOrch.RetryLimit = cfg.GuardrailRetryLimit
	gOrch.Logger = logger.WithComponent("guardrail")

	rootPolicy := action.NewRootPolicy(cfg.ProtectedTaskIDs)
	sd := shutdown.New(logger.WithComponent("shutdown"))
	ponderMgr := ponder.New(s)
	ponderMgr.MaxPonderRounds = cfg.MaxPonderRounds

	dispatcher := buildDispatcher(s, b, logger, rootPolicy, ponderMgr, sd)

	taskMgr := task.New(s, cfg.MaxActiveTasks, []string{task.RootTaskID}, uuid.NewString, logger.WithComponent("task"))
	cb := contextbuilder.New(s)

	proc := agentproc.New(s, cb, orch, gOrch, dispatcher, taskMgr, sd, logger.WithComponent("agentproc"))
	proc.MaxInflightThoughts = cfg.MaxInflightThoughts
	proc.MaxRounds = cfg.MaxRounds

	scheduler := task.NewScheduler(task.SchedulerConfig{
		Manager: taskMgr,
		Logger:  logger.WithComponent("scheduler"),
		OnTick: func(ctx context.Context, activated, needingSeedCount int) {
			if activated > 0 || needingSeedCount > 0 {
				logger.Debug("scheduler tick", map[string]interface{}{
					"activated": activated, "needing_seed": needingSeedCount,
				})
			}
		},
	})
	scheduler.Start()
	defer scheduler.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sd.RegisterSyncHook(func(context.Context) { cancel() })

	go consoleInputLoop(ctx, s, logger.WithComponent("console"))

	runCtx, span := tel.StartSpan(ctx, "agentproc.run")
	defer span.End()

	logger.Info("ciris-agentd starting", map[string]interface{}{
		"store_provider": cfg.StoreProvider, "wakeup_channel": *wakeupChannel,
	})
	if err := proc.Run(runCtx, *wakeupChannel); err != nil && err != context.Canceled {
		span.RecordError(err)
		logger.Error("agent processor exited with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info("ciris-agentd stopped", map[string]interface{}{"reason": sd.Reason()})
}

func loadConfig(path string) (*config.RuntimeConfig, error) {
	var cfg *config.RuntimeConfig
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newStore(cfg *config.RuntimeConfig, logger telemetry.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "redis":
		opts, err := redis.ParseURL(cfg.StoreRedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		rs := store.NewRedisStore(client, "ciris")
		rs.SetLogger(logger.WithComponent("store"))
		return rs, nil
	default:
		return store.NewMemStore(), nil
	}
}

// registerConsoleProviders binds the dependency-free stand-ins at
// PriorityFallback, so any real collaborator declared via cfg.Services
// and resolved at a higher priority is preferred automatically.
func registerConsoleProviders(reg *registry.Registry) {
	reg.Register(registry.Registration{
		ServiceType: "communication", Provider: console.NewCommunication(),
		Priority: registry.PriorityFallback, Scope: registry.GlobalScope(),
	})
	reg.Register(registry.Registration{
		ServiceType: "audit", Provider: console.NewAudit(),
		Priority: registry.PriorityFallback, Scope: registry.GlobalScope(),
	})
	reg.Register(registry.Registration{
		ServiceType: "memory", Provider: console.NewMemory(),
		Priority: registry.PriorityFallback, Scope: registry.GlobalScope(),
	})
	reg.Register(registry.Registration{
		ServiceType: "wise_authority", Provider: console.NewWiseAuthority(),
		Priority: registry.PriorityFallback, Scope: registry.GlobalScope(),
	})
	reg.Register(registry.Registration{
		ServiceType: "llm", Provider: console.NewLocalLLM(),
		Priority: registry.PriorityFallback, Scope: registry.GlobalScope(),
	})
}

// logUnresolvedDeclaredServices logs the static service declarations a
// config file names; resolving "provider" to a concrete external
// collaborator (a real chat platform, vector store, or model endpoint) is
// outside this binary's scope, so an unresolvable entry is a warning, not
// a fatal error.
func logUnresolvedDeclaredServices(cfg *config.RuntimeConfig, logger telemetry.Logger) {
	for _, svc := range cfg.Services {
		logger.Warn("declared service has no concrete provider wired into this binary", map[string]interface{}{
			"service_type": svc.ServiceType, "provider": svc.Provider, "handler": svc.Handler,
		})
	}
}

func isWakeupStepTask(t *types.Task) bool {
	return t != nil && t.ParentTaskID == task.RootTaskID
}

// allowAllForgetExceptIdentity is the default FORGET permission predicate:
// identity-scoped nodes (the agent's own core identity graph) are never
// forgettable by an ordinary FORGET action.
func allowAllForgetExceptIdentity(node types.GraphNode, req action.Request) bool {
	return node.Scope != types.ScopeIdentity
}

func buildDispatcher(s store.Store, b *bus.Bus, logger telemetry.Logger, roots action.RootPolicy, ponderMgr *ponder.Manager, sd *shutdown.Manager) *action.Dispatcher {
	d := action.NewDispatcher(s, logger.WithComponent("dispatcher"))
	validator := action.NewSchemaValidator()
	filters := console.NewFilters()

	d.Register(types.ActionSpeak, action.NewSpeakHandler(s, b, logger.WithComponent("speak"), sd))
	d.Register(types.ActionObserve, action.NewObserveHandler(s, b, logger.WithComponent("observe")))
	d.Register(types.ActionTool, action.NewToolHandler(s, b, logger.WithComponent("tool"), validator))
	d.Register(types.ActionPonder, action.NewPonderHandler(s, b, logger.WithComponent("ponder"), ponderMgr, roots))
	d.Register(types.ActionReject, action.NewRejectHandler(s, b, logger.WithComponent("reject"), filters))
	d.Register(types.ActionDefer, action.NewDeferHandler(s, b, logger.WithComponent("defer"), roots))
	d.Register(types.ActionMemorize, action.NewMemorizeHandler(s, b, logger.WithComponent("memorize")))
	d.Register(types.ActionRecall, action.NewRecallHandler(s, b, logger.WithComponent("recall")))
	d.Register(types.ActionForget, action.NewForgetHandler(s, b, logger.WithComponent("forget"), allowAllForgetExceptIdentity))
	d.Register(types.ActionTaskComplete, action.NewTaskCompleteHandler(s, b, logger.WithComponent("task_complete"), roots, isWakeupStepTask))

	return d
}

// consoleInputLoop reads lines from stdin and turns each into a PENDING
// Task, grounded on original_source/ciris_engine/services/cli_service.py's
// input loop. It exits when ctx is canceled or stdin closes.
func consoleInputLoop(ctx context.Context, s store.Store, logger telemetry.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			now := time.Now()
			t := &types.Task{
				ID:          "cli_" + uuid.NewString(),
				Description: line,
				Status:      types.TaskStatusPending,
				Priority:    1,
				CreatedAt:   now,
				UpdatedAt:   now,
				Context:     types.TaskContext{Channel: "console", OriginService: "cli"},
			}
			if err := s.AddTask(ctx, t); err != nil {
				logger.Error("failed to add console task", map[string]interface{}{"error": err.Error()})
				continue
			}
			logger.Info("console task added", map[string]interface{}{"task_id": t.ID})
		}
	}
}
