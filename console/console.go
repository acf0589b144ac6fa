// Package console provides the default, dependency-free collaborator
// providers cmd/ciris-agentd registers when no external communication,
// memory, wise-authority, or LLM backend is configured — stdout/stdin
// instead of a chat platform, an in-process map instead of a graph
// database, and a canned structured response instead of a model call.
// These exist purely so the binary is runnable out of the box. They are
// registered at registry.PriorityFallback, so a provider registered at any
// higher priority (a lower numeric value) is preferred over them.
package console

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ciris-ai/ciris-agent/bus"
	"github.com/ciris-ai/ciris-agent/types"
)

// Communication is a stdout/stdin CommunicationService: SendMessage prints
// to stdout, FetchMessages replays whatever it has printed (there is no
// inbound channel to poll without a real transport, so it serves its own
// sent history — enough to exercise the fetch path end to end).
type Communication struct {
	mu  sync.Mutex
	out *bufio.Writer
	log []types.ServiceCorrelation
}

// NewCommunication constructs a stdout-backed CommunicationService.
func NewCommunication() *Communication {
	return &Communication{out: bufio.NewWriter(os.Stdout)}
}

// SendMessage implements bus.CommunicationService.
func (c *Communication) SendMessage(ctx context.Context, channel, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.out, "[%s] %s\n", channel, content); err != nil {
		return err
	}
	if err := c.out.Flush(); err != nil {
		return err
	}
	c.log = append(c.log, types.ServiceCorrelation{
		ServiceType: "communication",
		ActionType:  "speak",
		Status:      types.CorrelationCompleted,
		ResponseData: map[string]interface{}{
			"channel": channel, "content": content,
		},
	})
	return nil
}

// FetchMessages implements bus.CommunicationService.
func (c *Communication) FetchMessages(ctx context.Context, channel string, limit int) ([]types.ServiceCorrelation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.ServiceCorrelation
	for _, entry := range c.log {
		if ch, _ := entry.ResponseData["channel"].(string); ch == channel {
			out = append(out, entry)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Audit writes every audit event as a log line to stderr.
type Audit struct {
	mu  sync.Mutex
	out *bufio.Writer
}

// NewAudit constructs a stderr-backed AuditService.
func NewAudit() *Audit {
	return &Audit{out: bufio.NewWriter(os.Stderr)}
}

// LogAudit implements bus.AuditService.
func (a *Audit) LogAudit(ctx context.Context, event bus.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := fmt.Fprintf(a.out, "audit thought=%s task=%s action=%s outcome=%s\n",
		event.ThoughtID, event.TaskID, event.Action, event.Outcome); err != nil {
		return err
	}
	return a.out.Flush()
}

// Memory is an in-process, non-durable MemoryService backing
// MEMORIZE/RECALL/FORGET when no graph database is configured.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]types.GraphNode
}

// NewMemory constructs an empty in-process MemoryService.
func NewMemory() *Memory {
	return &Memory{nodes: make(map[string]types.GraphNode)}
}

// Memorize implements bus.MemoryService.
func (m *Memory) Memorize(ctx context.Context, node types.GraphNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.ID] = node
	return nil
}

// Recall implements bus.MemoryService.
func (m *Memory) Recall(ctx context.Context, id string) (*types.GraphNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("console: node %s not found", id)
	}
	return &node, nil
}

// Forget implements bus.MemoryService.
func (m *Memory) Forget(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, id)
	return nil
}

// WiseAuthority prints deferrals to stdout and never has guidance waiting,
// standing in for a human-in-the-loop escalation channel.
type WiseAuthority struct {
	mu  sync.Mutex
	out *bufio.Writer
}

// NewWiseAuthority constructs a stdout-backed WiseAuthorityService.
func NewWiseAuthority() *WiseAuthority {
	return &WiseAuthority{out: bufio.NewWriter(os.Stdout)}
}

// SendDeferral implements bus.WiseAuthorityService.
func (w *WiseAuthority) SendDeferral(ctx context.Context, pkg types.DeferralPackage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.out, "DEFERRAL task=%s reason=%s thought=%q\n", pkg.TaskID, pkg.Reason, pkg.ThoughtContent); err != nil {
		return err
	}
	return w.out.Flush()
}

// FetchGuidance implements bus.WiseAuthorityService. The console provider
// never has standing guidance; a real Wise Authority backend (ticketing
// system, Slack approval flow) would poll its own store here.
func (w *WiseAuthority) FetchGuidance(ctx context.Context, taskID string) (string, bool, error) {
	return "", false, nil
}
