// Package bus is the thin façade (spec.md §6) between the cognitive
// pipeline (dma, action) and the external collaborator services
// (communication, memory, tool, audit, wise authority, LLM). Every call
// goes through the ServiceRegistry for provider selection and through that
// provider's circuit breaker, grounded on
// orchestration/executor.go dispatch-with-circuit-breaker pattern.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/ciris-ai/ciris-agent/registry"
	"github.com/ciris-ai/ciris-agent/telemetry"
	"github.com/ciris-ai/ciris-agent/types"
)

// CommunicationService sends/fetches channel messages.
type CommunicationService interface {
	SendMessage(ctx context.Context, channel, content string) error
	FetchMessages(ctx context.Context, channel string, limit int) ([]types.ServiceCorrelation, error)
}

// MemoryService is the graph-memory collaborator (MEMORIZE/RECALL/FORGET).
type MemoryService interface {
	Memorize(ctx context.Context, node types.GraphNode) error
	Recall(ctx context.Context, id string) (*types.GraphNode, error)
	Forget(ctx context.Context, id string) error
}

// ToolService executes a named tool with parameters and returns a result
// payload. ToolResult carries whatever the tool reports back.
type ToolService interface {
	Execute(ctx context.Context, toolName string, params map[string]interface{}) (ToolResult, error)
}

// ToolResult is the outcome of a tool invocation.
type ToolResult struct {
	Success bool
	Output  map[string]interface{}
	Error   string
}

// WiseAuthorityService handles deferrals and guidance requests.
type WiseAuthorityService interface {
	SendDeferral(ctx context.Context, pkg types.DeferralPackage) error
	FetchGuidance(ctx context.Context, taskID string) (string, bool, error)
}

// AuditService records an audit trail entry for a dispatched action.
type AuditService interface {
	LogAudit(ctx context.Context, event AuditEvent) error
}

// AuditEvent is one audit trail record. Handlers emit one when they start
// and another carrying the success or failure outcome.
type AuditEvent struct {
	ThoughtID string
	TaskID    string
	Action    types.ActionKind
	Outcome   string
	Detail    map[string]interface{}
	Timestamp time.Time
}

// LLMService produces structured completions for the DMA evaluators.
type LLMService interface {
	Complete(ctx context.Context, prompt string, schema interface{}) (map[string]interface{}, error)
}

// DefaultToolTimeout bounds how long a TOOL handler waits for ToolService.Execute,
// matching spec.md §6's TOOL_RESULT_TIMEOUT_SECONDS.
const DefaultToolTimeout = 30 * time.Second

// Bus resolves each call through the registry so service selection,
// priority ordering and circuit breaking stay centralized rather than
// duplicated at every call site.
type Bus struct {
	registry    *registry.Registry
	logger      telemetry.Logger
	toolTimeout time.Duration
}

// New constructs a Bus bound to reg.
func New(reg *registry.Registry, logger telemetry.Logger) *Bus {
	if logger == nil {
		logger = telemetry.NoOpLogger{}
	}
	return &Bus{registry: reg, logger: logger, toolTimeout: DefaultToolTimeout}
}

// SetToolTimeout overrides the default TOOL_RESULT_TIMEOUT_SECONDS.
func (b *Bus) SetToolTimeout(d time.Duration) { b.toolTimeout = d }

func (b *Bus) resolve(handler, serviceType string, caps []string) (interface{}, *registryEntryCB, error) {
	svc, err := b.registry.GetService(handler, serviceType, caps)
	if err != nil {
		return nil, nil, err
	}
	cb := b.registry.CircuitBreakerFor(svc)
	return svc, &registryEntryCB{cb: cb}, nil
}

type registryEntryCB struct {
	cb interface {
		Execute(ctx context.Context, fn func() error) error
	}
}

func (r *registryEntryCB) run(ctx context.Context, fn func() error) error {
	if r == nil || r.cb == nil {
		return fn()
	}
	return r.cb.Execute(ctx, fn)
}

// SendMessage dispatches to the highest-priority CommunicationService
// registered for handler.
func (b *Bus) SendMessage(ctx context.Context, handler, channel, content string) error {
	svc, cb, err := b.resolve(handler, "communication", nil)
	if err != nil {
		return fmt.Errorf("bus: send_message: %w", err)
	}
	comm, ok := svc.(CommunicationService)
	if !ok {
		return fmt.Errorf("bus: provider for communication does not implement CommunicationService")
	}
	return cb.run(ctx, func() error { return comm.SendMessage(ctx, channel, content) })
}

// FetchMessages retrieves recent correlations for channel.
func (b *Bus) FetchMessages(ctx context.Context, handler, channel string, limit int) ([]types.ServiceCorrelation, error) {
	svc, cb, err := b.resolve(handler, "communication", nil)
	if err != nil {
		return nil, fmt.Errorf("bus: fetch_messages: %w", err)
	}
	comm, ok := svc.(CommunicationService)
	if !ok {
		return nil, fmt.Errorf("bus: provider for communication does not implement CommunicationService")
	}
	var out []types.ServiceCorrelation
	err = cb.run(ctx, func() error {
		var innerErr error
		out, innerErr = comm.FetchMessages(ctx, channel, limit)
		return innerErr
	})
	return out, err
}

// Memorize stores a graph node via the handler's MemoryService.
func (b *Bus) Memorize(ctx context.Context, handler string, node types.GraphNode) error {
	svc, cb, err := b.resolve(handler, "memory", nil)
	if err != nil {
		return fmt.Errorf("bus: memorize: %w", err)
	}
	mem, ok := svc.(MemoryService)
	if !ok {
		return fmt.Errorf("bus: provider for memory does not implement MemoryService")
	}
	return cb.run(ctx, func() error { return mem.Memorize(ctx, node) })
}

// Recall fetches a graph node by id.
func (b *Bus) Recall(ctx context.Context, handler, id string) (*types.GraphNode, error) {
	svc, cb, err := b.resolve(handler, "memory", nil)
	if err != nil {
		return nil, fmt.Errorf("bus: recall: %w", err)
	}
	mem, ok := svc.(MemoryService)
	if !ok {
		return nil, fmt.Errorf("bus: provider for memory does not implement MemoryService")
	}
	var node *types.GraphNode
	err = cb.run(ctx, func() error {
		var innerErr error
		node, innerErr = mem.Recall(ctx, id)
		return innerErr
	})
	return node, err
}

// Forget deletes a graph node by id.
func (b *Bus) Forget(ctx context.Context, handler, id string) error {
	svc, cb, err := b.resolve(handler, "memory", nil)
	if err != nil {
		return fmt.Errorf("bus: forget: %w", err)
	}
	mem, ok := svc.(MemoryService)
	if !ok {
		return fmt.Errorf("bus: provider for memory does not implement MemoryService")
	}
	return cb.run(ctx, func() error { return mem.Forget(ctx, id) })
}

// ExecuteTool runs toolName against the handler's ToolService, bounded by
// the configured tool timeout.
func (b *Bus) ExecuteTool(ctx context.Context, handler, toolName string, params map[string]interface{}) (ToolResult, error) {
	svc, cb, err := b.resolve(handler, "tool", []string{toolName})
	if err != nil {
		return ToolResult{}, fmt.Errorf("bus: execute_tool: %w", err)
	}
	tool, ok := svc.(ToolService)
	if !ok {
		return ToolResult{}, fmt.Errorf("bus: provider for tool does not implement ToolService")
	}

	ctx, cancel := context.WithTimeout(ctx, b.toolTimeout)
	defer cancel()

	var result ToolResult
	err = cb.run(ctx, func() error {
		var innerErr error
		result, innerErr = tool.Execute(ctx, toolName, params)
		return innerErr
	})
	return result, err
}

// LogAudit records an audit event. Audit failures are logged but never
// escalated — an unavailable audit trail must not block action dispatch.
func (b *Bus) LogAudit(ctx context.Context, handler string, event AuditEvent) {
	svc, cb, err := b.resolve(handler, "audit", nil)
	if err != nil {
		b.logger.WarnWithContext(ctx, "no audit provider available", map[string]interface{}{"error": err.Error()})
		return
	}
	audit, ok := svc.(AuditService)
	if !ok {
		b.logger.WarnWithContext(ctx, "audit provider has wrong type", nil)
		return
	}
	if err := cb.run(ctx, func() error { return audit.LogAudit(ctx, event) }); err != nil {
		b.logger.WarnWithContext(ctx, "audit log failed", map[string]interface{}{"error": err.Error()})
	}
}

// SendDeferral hands a deferral package to the WiseAuthorityService.
func (b *Bus) SendDeferral(ctx context.Context, handler string, pkg types.DeferralPackage) error {
	svc, cb, err := b.resolve(handler, "wise_authority", nil)
	if err != nil {
		return fmt.Errorf("bus: send_deferral: %w", err)
	}
	wa, ok := svc.(WiseAuthorityService)
	if !ok {
		return fmt.Errorf("bus: provider for wise_authority does not implement WiseAuthorityService")
	}
	return cb.run(ctx, func() error { return wa.SendDeferral(ctx, pkg) })
}

// FetchGuidance polls for human guidance on a deferred task.
func (b *Bus) FetchGuidance(ctx context.Context, handler, taskID string) (string, bool, error) {
	svc, cb, err := b.resolve(handler, "wise_authority", nil)
	if err != nil {
		return "", false, fmt.Errorf("bus: fetch_guidance: %w", err)
	}
	wa, ok := svc.(WiseAuthorityService)
	if !ok {
		return "", false, fmt.Errorf("bus: provider for wise_authority does not implement WiseAuthorityService")
	}
	var guidance string
	var found bool
	err = cb.run(ctx, func() error {
		var innerErr error
		guidance, found, innerErr = wa.FetchGuidance(ctx, taskID)
		return innerErr
	})
	return guidance, found, err
}

// Complete dispatches a prompt to the handler's LLMService.
func (b *Bus) Complete(ctx context.Context, handler, prompt string, schema interface{}) (map[string]interface{}, error) {
	svc, cb, err := b.resolve(handler, "llm", nil)
	if err != nil {
		return nil, fmt.Errorf("bus: complete: %w", err)
	}
	llm, ok := svc.(LLMService)
	if !ok {
		return nil, fmt.Errorf("bus: provider for llm does not implement LLMService")
	}
	var out map[string]interface{}
	err = cb.run(ctx, func() error {
		var innerErr error
		out, innerErr = llm.Complete(ctx, prompt, schema)
		return innerErr
	})
	return out, err
}
