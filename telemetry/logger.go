package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log verbosity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func parseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ProductionLogger is a leveled, structured logger that emits JSON lines
// when the format is "json" (the default inside a Kubernetes pod, detected
// via KUBERNETES_SERVICE_HOST) and human-readable text otherwise. It mirrors
// a layered design: console output always works; component
// tagging lets operators filter by subsystem.
type ProductionLogger struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	format    string
	component string
}

// NewProductionLogger builds a logger honoring CIRIS_LOG_LEVEL and
// CIRIS_LOG_FORMAT, falling back to INFO/text (or JSON inside Kubernetes).
func NewProductionLogger() *ProductionLogger {
	format := os.Getenv("CIRIS_LOG_FORMAT")
	if format == "" {
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			format = "json"
		} else {
			format = "text"
		}
	}
	return &ProductionLogger{
		out:    os.Stderr,
		level:  parseLevel(os.Getenv("CIRIS_LOG_LEVEL")),
		format: format,
	}
}

// WithComponent returns a logger tagged with component, sharing the same
// sink and level.
func (l *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{out: l.out, level: l.level, format: l.format, component: component}
}

type logRecord struct {
	Time      string                 `json:"time"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *ProductionLogger) log(level Level, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		rec := logRecord{
			Time:      time.Now().UTC().Format(time.RFC3339Nano),
			Level:     level.String(),
			Component: l.component,
			Message:   msg,
			Fields:    fields,
		}
		enc := json.NewEncoder(l.out)
		_ = enc.Encode(rec)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", time.Now().Format(time.RFC3339), strings.ToUpper(level.String()))
	if l.component != "" {
		fmt.Fprintf(&b, " (%s)", l.component)
	}
	fmt.Fprintf(&b, " %s", msg)
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintln(l.out, b.String())
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{})  { l.log(LevelInfo, msg, fields) }
func (l *ProductionLogger) Warn(msg string, fields map[string]interface{})  { l.log(LevelWarn, msg, fields) }
func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) { l.log(LevelError, msg, fields) }
func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) { l.log(LevelDebug, msg, fields) }

func withCorrelation(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	id := CorrelationIDFromContext(ctx)
	if id == "" {
		return fields
	}
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["correlation_id"] = id
	return out
}

func (l *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(LevelInfo, msg, withCorrelation(ctx, fields))
}
func (l *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(LevelWarn, msg, withCorrelation(ctx, fields))
}
func (l *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(LevelError, msg, withCorrelation(ctx, fields))
}
func (l *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(LevelDebug, msg, withCorrelation(ctx, fields))
}
