// Package shutdown implements the ShutdownManager (spec.md §4.10):
// idempotent, first-reason-wins global shutdown signaling with ordered
// hook execution. Grounded on core/agent.go lifecycle
// pattern — a sync.Once-guarded Stop — generalized to also run
// registered synchronous and asynchronous hooks in registration order.
package shutdown

import (
	"context"
	"sync"

	"github.com/ciris-ai/ciris-agent/telemetry"
)

// Hook is a cleanup or escalation action run once when global shutdown is
// first requested.
type Hook func(ctx context.Context)

// Manager tracks whether global shutdown has been requested and runs
// registered hooks exactly once, in registration order.
type Manager struct {
	mu        sync.Mutex
	requested bool
	reason    string
	done      chan struct{}

	syncHooks  []Hook
	asyncHooks []Hook

	logger telemetry.Logger
}

// New constructs a Manager.
func New(logger telemetry.Logger) *Manager {
	if logger == nil {
		logger = telemetry.NoOpLogger{}
	}
	return &Manager{done: make(chan struct{}), logger: logger}
}

// RegisterSyncHook adds a hook run synchronously, in order, before
// RequestGlobalShutdown returns.
func (m *Manager) RegisterSyncHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncHooks = append(m.syncHooks, h)
}

// RegisterAsyncHook adds a hook run in its own goroutine after the
// synchronous hooks complete.
func (m *Manager) RegisterAsyncHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asyncHooks = append(m.asyncHooks, h)
}

// RequestGlobalShutdown signals shutdown. Only the first call's reason is
// recorded and only the first call runs the hooks; subsequent calls are a
// no-op (idempotent, first-reason-wins).
func (m *Manager) RequestGlobalShutdown(reason string) {
	m.mu.Lock()
	if m.requested {
		m.mu.Unlock()
		return
	}
	m.requested = true
	m.reason = reason
	syncHooks := append([]Hook(nil), m.syncHooks...)
	asyncHooks := append([]Hook(nil), m.asyncHooks...)
	m.mu.Unlock()

	m.logger.Warn("global shutdown requested", map[string]interface{}{"reason": reason})

	ctx := context.Background()
	for _, h := range syncHooks {
		h(ctx)
	}
	for _, h := range asyncHooks {
		go h(ctx)
	}

	close(m.done)
}

// IsGlobalShutdownRequested reports whether shutdown has been requested.
func (m *Manager) IsGlobalShutdownRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requested
}

// Reason returns the first-recorded shutdown reason, or "" if no shutdown
// has been requested.
func (m *Manager) Reason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Done returns a channel closed once shutdown has been requested, for
// callers (the AgentProcessor's main loop) to select on.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
