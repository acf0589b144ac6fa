// Package registry implements the ServiceRegistry (spec.md §4.2): a mapping
// from (handler, service-type, required-capabilities) to the
// highest-priority healthy provider, each provider wrapped in a circuit
// breaker. Grounded on core.Discovery/DiscoveryFilter shape
// and resilience.CircuitBreaker wrapping.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ciris-ai/ciris-agent/resilience"
	"github.com/ciris-ai/ciris-agent/telemetry"
)

// ErrNoProvider is returned when no registered provider satisfies a lookup.
var ErrNoProvider = errors.New("registry: no healthy provider satisfies the request")

// Priority orders providers for the same service type; among the visible,
// healthy providers whose capabilities cover the request, the lowest
// numeric value wins.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityFallback
)

// Scope restricts a provider's visibility to one handler or to every caller.
type Scope struct {
	Global      bool
	HandlerName string
}

// GlobalScope is visible to every handler.
func GlobalScope() Scope { return Scope{Global: true} }

// HandlerScope restricts visibility to a single named handler.
func HandlerScope(handler string) Scope { return Scope{HandlerName: handler} }

func (s Scope) visibleTo(handler string) bool {
	return s.Global || s.HandlerName == handler
}

// Registration describes one provider bound into the registry.
type Registration struct {
	ServiceType  string
	Provider     interface{}
	Priority     Priority
	Capabilities map[string]bool
	Scope        Scope
	// HealthCheck reports liveness; nil means always healthy unless the
	// circuit breaker says otherwise.
	HealthCheck func() bool
}

type entry struct {
	reg Registration
	cb  *resilience.CircuitBreaker
}

func (e *entry) healthy() bool {
	if e.cb.State() == resilience.StateOpen {
		return false
	}
	if e.reg.HealthCheck != nil {
		return e.reg.HealthCheck()
	}
	return true
}

func (e *entry) hasCapabilities(required []string) bool {
	for _, c := range required {
		if !e.reg.Capabilities[c] {
			return false
		}
	}
	return true
}

// Registry is the ServiceRegistry. Registration is rare and takes a short
// exclusive section; lookups are read-mostly and cached.
type Registry struct {
	mu                sync.RWMutex
	byType            map[string][]*entry
	logger            telemetry.Logger
	cache             *lru.Cache[string, *entry]
	cacheSize         int
	cbFailureThreshold int
	cbCooldown        time.Duration
}

// New creates an empty Registry. cacheSize bounds the capability-lookup LRU
// (0 disables caching). Circuit breakers created by Register fall back to
// resilience.NewCircuitBreaker's own defaults until SetCircuitBreakerDefaults
// is called.
func New(cacheSize int) *Registry {
	r := &Registry{
		byType: make(map[string][]*entry),
		logger: telemetry.NoOpLogger{},
	}
	if cacheSize > 0 {
		c, err := lru.New[string, *entry](cacheSize)
		if err == nil {
			r.cache = c
			r.cacheSize = cacheSize
		}
	}
	return r
}

// SetCircuitBreakerDefaults configures the failure threshold and cooldown
// every circuit breaker Register creates afterward uses
// (config.RuntimeConfig.CircuitBreakerFailureThreshold/CircuitBreakerCooldown).
// Breakers already created by a prior Register call are unaffected.
func (r *Registry) SetCircuitBreakerDefaults(failureThreshold int, cooldown time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cbFailureThreshold = failureThreshold
	r.cbCooldown = cooldown
}

// SetLogger configures the logger used for registration/circuit events.
func (r *Registry) SetLogger(l telemetry.Logger) {
	if l == nil {
		l = telemetry.NoOpLogger{}
	}
	r.logger = l
}

// Register binds a provider into the registry under a fresh circuit
// breaker.
func (r *Registry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb := resilience.NewCircuitBreaker(resilience.Config{
		Name:             fmt.Sprintf("%s-provider-%d", reg.ServiceType, len(r.byType[reg.ServiceType])),
		Logger:           r.logger,
		FailureThreshold: r.cbFailureThreshold,
		CooldownPeriod:   r.cbCooldown,
	})
	r.byType[reg.ServiceType] = append(r.byType[reg.ServiceType], &entry{reg: reg, cb: cb})
	if r.cache != nil {
		r.cache.Purge()
	}

	r.logger.Info("service registered", map[string]interface{}{
		"service_type": reg.ServiceType, "priority": int(reg.Priority),
	})
}

// CircuitBreakerFor returns the circuit breaker guarding provider, so
// callers (the Bus) can report success/failure after invoking it.
func (r *Registry) CircuitBreakerFor(provider interface{}) *resilience.CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entries := range r.byType {
		for _, e := range entries {
			if e.reg.Provider == provider {
				return e.cb
			}
		}
	}
	return nil
}

func cacheKey(handler, serviceType string, required []string) string {
	sorted := append([]string(nil), required...)
	sort.Strings(sorted)
	return handler + "|" + serviceType + "|" + strings.Join(sorted, ",")
}

// GetService returns the highest-priority healthy provider registered for
// serviceType, visible to handler, whose capability set is a superset of
// required.
func (r *Registry) GetService(handler, serviceType string, required []string) (interface{}, error) {
	key := cacheKey(handler, serviceType, required)
	if r.cache != nil {
		if e, ok := r.cache.Get(key); ok && e.healthy() {
			return e.reg.Provider, nil
		}
	}

	r.mu.RLock()
	candidates := append([]*entry(nil), r.byType[serviceType]...)
	r.mu.RUnlock()

	var best *entry
	for _, e := range candidates {
		if !e.reg.Scope.visibleTo(handler) {
			continue
		}
		if !e.hasCapabilities(required) {
			continue
		}
		if !e.healthy() {
			continue
		}
		if best == nil || e.reg.Priority < best.reg.Priority {
			best = e
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: type=%s handler=%s capabilities=%v", ErrNoProvider, serviceType, handler, required)
	}
	if r.cache != nil {
		r.cache.Add(key, best)
	}
	return best.reg.Provider, nil
}

// WaitReady blocks until at least one provider per named service type is
// healthy, or timeout elapses.
func (r *Registry) WaitReady(ctx context.Context, timeout time.Duration, serviceTypes []string) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	check := func() bool {
		for _, st := range serviceTypes {
			if _, err := r.GetService("", st, nil); err != nil {
				return false
			}
		}
		return true
	}

	if check() {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if check() {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("registry: wait_ready timed out after %s waiting for %v", timeout, serviceTypes)
			}
		}
	}
}
