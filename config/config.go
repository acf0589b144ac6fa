// Package config loads the RuntimeConfig that governs the agent's bounds
// (spec.md §6's "Configuration" list): activation/in-flight caps, ponder
// and retry limits, tool timeouts, circuit breaker thresholds, protected
// task ids, and static service registration entries. Grounded on the
// teacher's core/config.go format-by-extension file loader and layered
// precedence, applied here as defaults, then the config file, then
// environment variables, generalized to also support YAML via gopkg.in/yaml.v3 where
// a minimal predecessor stubbed YAML out as "not yet supported".
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ciris-ai/ciris-agent/registry"
)

// ErrInvalidConfiguration is wrapped by validation and parse failures.
var ErrInvalidConfiguration = fmt.Errorf("config: invalid configuration")

// ServiceRegistration is a single static (service_type, provider) →
// {priority, capabilities, scope} entry, the shape named in spec.md §6's
// last configuration bullet. The provider named here is resolved and
// registered against the ServiceRegistry by the process entrypoint; this
// struct only carries the declaration.
type ServiceRegistration struct {
	ServiceType  string   `json:"service_type" yaml:"service_type"`
	Provider     string   `json:"provider" yaml:"provider"`
	Priority     string   `json:"priority" yaml:"priority"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	Handler      string   `json:"handler" yaml:"handler"`
}

// RegistryPriority maps the declared priority name to a registry.Priority,
// defaulting to PriorityNormal for an unrecognized or empty name.
func (r ServiceRegistration) RegistryPriority() registry.Priority {
	switch strings.ToLower(r.Priority) {
	case "critical":
		return registry.PriorityCritical
	case "high":
		return registry.PriorityHigh
	case "low":
		return registry.PriorityLow
	case "fallback":
		return registry.PriorityFallback
	default:
		return registry.PriorityNormal
	}
}

// RegistryScope returns the registry.Scope the entry should be registered
// under: handler-restricted when Handler is set, global otherwise.
func (r ServiceRegistration) RegistryScope() registry.Scope {
	if r.Handler == "" {
		return registry.GlobalScope()
	}
	return registry.HandlerScope(r.Handler)
}

// RuntimeConfig holds every bound and limit named in spec.md §6, plus the
// resolved Open Question (b) list of protected task ids.
type RuntimeConfig struct {
	MaxActiveTasks     int `json:"max_active_tasks" yaml:"max_active_tasks" env:"CIRIS_MAX_ACTIVE_TASKS" default:"10"`
	MaxInflightThoughts int `json:"max_inflight_thoughts" yaml:"max_inflight_thoughts" env:"CIRIS_MAX_INFLIGHT_THOUGHTS" default:"10"`
	MaxPonderRounds    int `json:"max_ponder_rounds" yaml:"max_ponder_rounds" env:"CIRIS_MAX_PONDER_ROUNDS" default:"5"`
	MaxRounds          int `json:"max_rounds" yaml:"max_rounds" env:"CIRIS_MAX_ROUNDS" default:"5"`

	ToolResultTimeout time.Duration `json:"-" yaml:"-"`
	ToolResultTimeoutSeconds int    `json:"tool_result_timeout_seconds" yaml:"tool_result_timeout_seconds" env:"CIRIS_TOOL_RESULT_TIMEOUT_SECONDS" default:"30"`

	DMARetryLimit       int `json:"dma_retry_limit" yaml:"dma_retry_limit" env:"CIRIS_DMA_RETRY_LIMIT" default:"3"`
	GuardrailRetryLimit int `json:"guardrail_retry_limit" yaml:"guardrail_retry_limit" env:"CIRIS_GUARDRAIL_RETRY_LIMIT" default:"3"`

	CircuitBreakerFailureThreshold int           `json:"circuit_breaker_failure_threshold" yaml:"circuit_breaker_failure_threshold" env:"CIRIS_CB_FAILURE_THRESHOLD" default:"5"`
	CircuitBreakerCooldownSeconds  int           `json:"circuit_breaker_cooldown_seconds" yaml:"circuit_breaker_cooldown_seconds" env:"CIRIS_CB_COOLDOWN_SECONDS" default:"30"`
	CircuitBreakerCooldown         time.Duration `json:"-" yaml:"-"`

	RegistryCacheSize int `json:"registry_cache_size" yaml:"registry_cache_size" env:"CIRIS_REGISTRY_CACHE_SIZE" default:"256"`

	// ProtectedTaskIDs resolves Open Question (b): task ids exempt from
	// child-driven terminal (DEFER/COMPLETE) cascades.
	ProtectedTaskIDs []string `json:"protected_task_ids" yaml:"protected_task_ids" env:"CIRIS_PROTECTED_TASK_IDS"`

	Services []ServiceRegistration `json:"services" yaml:"services"`

	StoreProvider string `json:"store_provider" yaml:"store_provider" env:"CIRIS_STORE_PROVIDER" default:"inmemory"`
	StoreRedisURL string `json:"store_redis_url" yaml:"store_redis_url" env:"CIRIS_STORE_REDIS_URL,REDIS_URL"`

	LogLevel  string `json:"log_level" yaml:"log_level" env:"CIRIS_LOG_LEVEL" default:"info"`
	LogFormat string `json:"log_format" yaml:"log_format" env:"CIRIS_LOG_FORMAT" default:"json"`
}

// DefaultProtectedTaskIDs are the root/system tasks exempt from cascading
// terminal status from a child thought's DEFER or TASK_COMPLETE, per the
// wakeup sequence (spec.md §4.8) and the resolved Open Question (b).
func DefaultProtectedTaskIDs() []string {
	return []string{"WAKEUP_ROOT", "SYSTEM_TASK", "job-discord-monitor", "DREAM_TASK"}
}

// Default returns a RuntimeConfig with every documented default applied.
func Default() *RuntimeConfig {
	return &RuntimeConfig{
		MaxActiveTasks:                 10,
		MaxInflightThoughts:            10,
		MaxPonderRounds:                5,
		MaxRounds:                      5,
		ToolResultTimeoutSeconds:       30,
		ToolResultTimeout:              30 * time.Second,
		DMARetryLimit:                  3,
		GuardrailRetryLimit:            3,
		CircuitBreakerFailureThreshold: 5,
		CircuitBreakerCooldownSeconds:  30,
		CircuitBreakerCooldown:         30 * time.Second,
		RegistryCacheSize:              256,
		ProtectedTaskIDs:               DefaultProtectedTaskIDs(),
		StoreProvider:                  "inmemory",
		LogLevel:                       "info",
		LogFormat:                      "json",
	}
}

// LoadFromFile loads a RuntimeConfig from a JSON or YAML file, detected by
// extension, following a LoadFromFile pattern (path cleaning,
// extension allowlist) but supporting YAML rather than rejecting it.
func LoadFromFile(path string) (*RuntimeConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config: unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	if !filepath.IsAbs(cleanPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: failed to get working directory: %w", err)
		}
		cleanPath = filepath.Join(wd, cleanPath)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- path is cleaned and extension-checked above
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file %s: %w", cleanPath, err)
	}

	cfg := Default()
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse JSON config file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse YAML config file: %w", err)
		}
	}

	cfg.resolveDurations()
	if len(cfg.ProtectedTaskIDs) == 0 {
		cfg.ProtectedTaskIDs = DefaultProtectedTaskIDs()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides on top of cfg,
// following an "only overwrite if the variable is set"
// LoadFromEnv pattern.
func (c *RuntimeConfig) LoadFromEnv() error {
	if v := os.Getenv("CIRIS_MAX_ACTIVE_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxActiveTasks = n
		}
	}
	if v := os.Getenv("CIRIS_MAX_INFLIGHT_THOUGHTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxInflightThoughts = n
		}
	}
	if v := os.Getenv("CIRIS_MAX_PONDER_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxPonderRounds = n
		}
	}
	if v := os.Getenv("CIRIS_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRounds = n
		}
	}
	if v := os.Getenv("CIRIS_TOOL_RESULT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ToolResultTimeoutSeconds = n
		}
	}
	if v := os.Getenv("CIRIS_DMA_RETRY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DMARetryLimit = n
		}
	}
	if v := os.Getenv("CIRIS_GUARDRAIL_RETRY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GuardrailRetryLimit = n
		}
	}
	if v := os.Getenv("CIRIS_CB_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CircuitBreakerFailureThreshold = n
		}
	}
	if v := os.Getenv("CIRIS_CB_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CircuitBreakerCooldownSeconds = n
		}
	}
	if v := os.Getenv("CIRIS_REGISTRY_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RegistryCacheSize = n
		}
	}
	if v := os.Getenv("CIRIS_PROTECTED_TASK_IDS"); v != "" {
		c.ProtectedTaskIDs = parseStringList(v)
	}
	if v := os.Getenv("CIRIS_STORE_PROVIDER"); v != "" {
		c.StoreProvider = v
	}
	if v := os.Getenv("CIRIS_STORE_REDIS_URL"); v != "" {
		c.StoreRedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.StoreRedisURL = v
	}
	if v := os.Getenv("CIRIS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CIRIS_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}

	c.resolveDurations()
	return c.Validate()
}

// resolveDurations derives the time.Duration fields from their
// seconds-typed counterparts, applied after every load path so callers
// never have to remember to do it themselves.
func (c *RuntimeConfig) resolveDurations() {
	if c.ToolResultTimeoutSeconds <= 0 {
		c.ToolResultTimeoutSeconds = 30
	}
	c.ToolResultTimeout = time.Duration(c.ToolResultTimeoutSeconds) * time.Second

	if c.CircuitBreakerCooldownSeconds <= 0 {
		c.CircuitBreakerCooldownSeconds = 30
	}
	c.CircuitBreakerCooldown = time.Duration(c.CircuitBreakerCooldownSeconds) * time.Second
}

// Validate checks the invariants spec.md §8 relies on: max_active_tasks,
// max_ponder_rounds, dma_retry_limit and guardrail_retry_limit must be
// positive (the other bounds are not checked here), and the protected task
// id set must be non-empty
// (an agent with no protected roots would cascade DEFER onto its own
// wakeup sequence).
func (c *RuntimeConfig) Validate() error {
	if c.MaxActiveTasks <= 0 {
		return fmt.Errorf("config: max_active_tasks must be positive: %w", ErrInvalidConfiguration)
	}
	if c.MaxPonderRounds <= 0 {
		return fmt.Errorf("config: max_ponder_rounds must be positive: %w", ErrInvalidConfiguration)
	}
	if c.DMARetryLimit <= 0 {
		return fmt.Errorf("config: dma_retry_limit must be positive: %w", ErrInvalidConfiguration)
	}
	if c.GuardrailRetryLimit <= 0 {
		return fmt.Errorf("config: guardrail_retry_limit must be positive: %w", ErrInvalidConfiguration)
	}
	if len(c.ProtectedTaskIDs) == 0 {
		return fmt.Errorf("config: protected_task_ids must not be empty: %w", ErrInvalidConfiguration)
	}
	return nil
}

func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
