package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// OtelTelemetry bridges the runtime's minimal Telemetry interface onto a
// real OpenTelemetry TracerProvider/MeterProvider, matching the libraries
// the resilience and telemetry packages already depend on
// (go.opentelemetry.io/otel, .../metric, .../trace).
type OtelTelemetry struct {
	tracer  oteltrace.Tracer
	meter   otelmetric.Meter
	counter map[string]otelmetric.Float64Counter
}

// NewOtelTelemetry creates a Telemetry backed by the global OTel providers.
// Callers wire a concrete SDK (e.g. go.opentelemetry.io/otel/sdk with an
// OTLP or stdout exporter) via otel.SetTracerProvider/SetMeterProvider
// before constructing this; the runtime core never selects an exporter
// itself, keeping the telemetry collector an external collaborator.
func NewOtelTelemetry(instrumentationName string) *OtelTelemetry {
	return &OtelTelemetry{
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
		counter: make(map[string]otelmetric.Float64Counter),
	}
}

// StartSpan starts a span under the given name and returns a Span adapter.
func (t *OtelTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric records value against a lazily-created counter instrument
// named name, with labels flattened into OTel attributes.
func (t *OtelTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
	c, ok := t.counter[name]
	if !ok {
		var err error
		c, err = t.meter.Float64Counter(name)
		if err != nil {
			return
		}
		t.counter[name] = c
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	c.Add(context.Background(), value, otelmetric.WithAttributes(attrs...))
}

type otelSpan struct {
	span oteltrace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, toString(v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}
