package telemetry

import "context"

type correlationKeyType struct{}

var correlationKey = correlationKeyType{}

// WithCorrelationID attaches a correlation id (typically a Thought or Task
// id) to the context so every log line and span emitted underneath it can be
// joined back to the originating pipeline run.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationIDFromContext returns the correlation id previously attached
// with WithCorrelationID, or "" if none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey).(string)
	return id
}
