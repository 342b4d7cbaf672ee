package observability

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// OTelTracer implements Tracer on top of OpenTelemetry.
type OTelTracer struct{ tracer trace.Tracer }

// NewOTelTracer returns a tracer backed by the global OpenTelemetry provider.
func NewOTelTracer(serviceName string) *OTelTracer {
	return &OTelTracer{tracer: otel.Tracer(serviceName)}
}

func (t *OTelTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	ctx, span := t.tracer.Start(ctx, name)
	return &otelSpan{span: span, ctx: ctx}, ctx
}

func (t *OTelTracer) SpanFromContext(ctx context.Context) Span {
	return &otelSpan{span: trace.SpanFromContext(ctx), ctx: ctx}
}

type otelSpan struct {
	span trace.Span
	ctx  context.Context
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(toAttribute(key, value))
}

func (s *otelSpan) SetStatus(code StatusCode, message string) {
	switch code {
	case StatusCodeOk:
		s.span.SetStatus(codes.Ok, message)
	case StatusCodeError:
		s.span.SetStatus(codes.Error, message)
	default:
		s.span.SetStatus(codes.Unset, message)
	}
}

func (s *otelSpan) AddEvent(name string, attrs map[string]interface{}) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, toAttribute(k, v))
	}
	s.span.AddEvent(name, trace.WithAttributes(kvs...))
}

func (s *otelSpan) End()                     { s.span.End() }
func (s *otelSpan) Context() context.Context { return s.ctx }

func toAttribute(key string, v interface{}) attribute.KeyValue {
	switch x := v.(type) {
	case string:
		return attribute.String(key, x)
	case bool:
		return attribute.Bool(key, x)
	case int:
		return attribute.Int(key, x)
	case int64:
		return attribute.Int64(key, x)
	case float64:
		return attribute.Float64(key, x)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// SetupStdoutTracing installs an SDK tracer provider exporting to w and swaps
// TracerImpl to an OTelTracer. The returned func flushes and shuts down.
func SetupStdoutTracing(serviceName string, w io.Writer) (func(context.Context) error, error) {
	opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	if w != nil {
		opts = append(opts, stdouttrace.WithWriter(w))
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	SetTracer(NewOTelTracer(serviceName))
	return tp.Shutdown, nil
}

var _ Tracer = (*OTelTracer)(nil)
var _ Span = (*otelSpan)(nil)
