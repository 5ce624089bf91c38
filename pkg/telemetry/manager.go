package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/cexll/clawbridge"

// Config wires the manager. TracerProvider and MeterProvider are
// injectable for tests; when both are nil and Endpoint is set, an OTLP
// HTTP trace exporter is constructed.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	Insecure       bool
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Filter         FilterConfig
}

// Manager owns the tracer, the counters, and the masking filter.
type Manager struct {
	tracer    trace.Tracer
	requests  metric.Int64Counter
	toolCalls metric.Int64Counter
	filter    *sensitiveFilter
	shutdown  []func(context.Context) error
}

// RequestData describes one completed pipeline request.
type RequestData struct {
	Kind      string
	AgentName string
	RequestID string
	Input     string
	Duration  time.Duration
	Error     error
}

// ToolData describes one tool call surfaced to the caller.
type ToolData struct {
	AgentName string
	Name      string
	Error     error
}

// NewManager builds a manager from the config.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{filter: newSensitiveFilter(cfg.Filter)}

	tp := cfg.TracerProvider
	if tp == nil {
		if cfg.Endpoint != "" {
			provider, err := newOTLPTracerProvider(cfg)
			if err != nil {
				return nil, err
			}
			m.shutdown = append(m.shutdown, provider.Shutdown)
			tp = provider
		} else {
			tp = otel.GetTracerProvider()
		}
	}
	m.tracer = tp.Tracer(instrumentationName)

	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	var err error
	if m.requests, err = meter.Int64Counter("agent.requests.total"); err != nil {
		return nil, fmt.Errorf("requests counter: %w", err)
	}
	if m.toolCalls, err = meter.Int64Counter("tool.calls.total"); err != nil {
		return nil, fmt.Errorf("tool calls counter: %w", err)
	}
	return m, nil
}

func newOTLPTracerProvider(cfg Config) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res := sdkresource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// Shutdown flushes any owned exporters.
func (m *Manager) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range m.shutdown {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StartSpan opens a span on the manager's tracer.
func (m *Manager) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, opts...)
}

// MaskText applies the sensitive-data filter to text.
func (m *Manager) MaskText(text string) string {
	return m.filter.mask(text)
}

// SanitizeAttributes masks string and string-slice attribute values.
func (m *Manager) SanitizeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	return m.filter.sanitize(attrs)
}

// RecordRequest increments the request counter with sanitized attributes.
func (m *Manager) RecordRequest(ctx context.Context, data RequestData) {
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent.kind", data.Kind),
		attribute.String("agent.name", data.AgentName),
		attribute.String("agent.request_id", data.RequestID),
		attribute.String("agent.input", m.filter.mask(data.Input)),
		attribute.Int64("agent.duration_ms", data.Duration.Milliseconds()),
		attribute.Bool("agent.request.error", data.Error != nil),
	))
}

// RecordToolCall increments the tool counter.
func (m *Manager) RecordToolCall(ctx context.Context, data ToolData) {
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent.name", data.AgentName),
		attribute.String("tool.name", data.Name),
		attribute.Bool("tool.error", data.Error != nil),
	))
}

var defaultManager atomic.Pointer[Manager]

// SetDefault installs the manager used by the package-level helpers.
// Passing nil clears it.
func SetDefault(m *Manager) {
	defaultManager.Store(m)
}

// Default returns the installed manager, or nil.
func Default() *Manager {
	return defaultManager.Load()
}

// StartSpan opens a span through the default manager, falling back to the
// global tracer provider when none is installed.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if m := Default(); m != nil {
		return m.StartSpan(ctx, name, opts...)
	}
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// EndSpan records err on the span, sets its status, and ends it.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// MaskText applies the default manager's filter, or the built-in patterns
// when no manager is installed.
func MaskText(text string) string {
	if m := Default(); m != nil {
		return m.MaskText(text)
	}
	return newSensitiveFilter(FilterConfig{}).mask(text)
}

// SanitizeAttributes routes through the default manager when present.
func SanitizeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	if m := Default(); m != nil {
		return m.SanitizeAttributes(attrs...)
	}
	return newSensitiveFilter(FilterConfig{}).sanitize(attrs)
}
