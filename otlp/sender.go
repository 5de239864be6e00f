// Package otlp exports finished hellotrace spans to an OpenTelemetry
// collector over OTLP/HTTP.
//
// The Sender plugs into a hellotrace.RemoteReporter, which owns batching
// and drop accounting:
//
//	sender, err := otlp.New(ctx, otlp.Config{ServiceName: "hello-world", Endpoint: "localhost:4318", Insecure: true})
//	reporter := hellotrace.NewRemoteReporter(sender)
package otlp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoobzio/hellotrace"
)

// ScopeName identifies spans exported by this package.
const ScopeName = "github.com/zoobzio/hellotrace"

// Config configures the OTLP/HTTP exporter.
type Config struct {
	Headers     map[string]string
	ServiceName string
	// Endpoint is host:port of the collector, e.g. "localhost:4318".
	Endpoint string
	URLPath  string
	Timeout  time.Duration
	Insecure bool
}

// Sender converts finished spans into OpenTelemetry read-only spans and
// hands them to a span exporter.
type Sender struct {
	exporter    sdktrace.SpanExporter
	resource    *resource.Resource
	serviceName string
	mu          sync.RWMutex
}

// New creates a Sender exporting through OTLP/HTTP.
func New(ctx context.Context, cfg Config) (*Sender, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if cfg.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracehttp.WithTimeout(cfg.Timeout))
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	return NewWithExporter(exporter, cfg.ServiceName), nil
}

// NewWithExporter creates a Sender on top of an existing exporter.
func NewWithExporter(exporter sdktrace.SpanExporter, serviceName string) *Sender {
	return &Sender{
		exporter:    exporter,
		resource:    resource.NewSchemaless(semconv.ServiceName(serviceName)),
		serviceName: serviceName,
	}
}

// SetProcess adds the tracer's process tags to the exported resource.
// A service name given at construction is kept.
func (s *Sender) SetProcess(p hellotrace.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serviceName == "" {
		s.serviceName = p.ServiceName
	}
	attrs := make([]attribute.KeyValue, 0, len(p.Tags)+1)
	for k, v := range p.Tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	attrs = append(attrs, semconv.ServiceName(s.serviceName))
	s.resource = resource.NewSchemaless(attrs...)
}

// Send exports spans in one call.
func (s *Sender) Send(ctx context.Context, spans []hellotrace.Span) error {
	s.mu.RLock()
	res := s.resource
	s.mu.RUnlock()

	out := make([]sdktrace.ReadOnlySpan, 0, len(spans))
	for i := range spans {
		out = append(out, convert(&spans[i], res).Snapshot())
	}
	if err := s.exporter.ExportSpans(ctx, out); err != nil {
		return fmt.Errorf("export %d spans: %w", len(out), err)
	}
	return nil
}

// Close shuts the exporter down.
func (s *Sender) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.exporter.Shutdown(ctx)
}

func convert(span *hellotrace.Span, res *resource.Resource) tracetest.SpanStub {
	flags := trace.TraceFlags(0)
	if span.Sampled {
		flags = trace.FlagsSampled
	}
	stub := tracetest.SpanStub{
		Name: span.Name,
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID(span.TraceID),
			SpanID:     trace.SpanID(span.SpanID),
			TraceFlags: flags,
		}),
		SpanKind:             spanKind(span.Tags),
		StartTime:            span.StartTime,
		EndTime:              span.EndTime,
		Resource:             res,
		InstrumentationScope: instrumentation.Scope{Name: ScopeName},
	}
	if !span.IsRoot() {
		stub.Parent = trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID(span.TraceID),
			SpanID:     trace.SpanID(span.ParentID),
			TraceFlags: flags,
			Remote:     true,
		})
	}

	for k, v := range span.Tags {
		if k == hellotrace.SpanKindTagKey {
			continue
		}
		stub.Attributes = append(stub.Attributes, attributeOf(k, v))
	}
	for k, v := range span.Baggage {
		stub.Attributes = append(stub.Attributes, attribute.String("baggage."+k, v))
	}
	if v, ok := span.Tags[hellotrace.ErrorTagKey]; ok && v.AsBool() {
		stub.Status = sdktrace.Status{Code: codes.Error}
	}

	for _, rec := range span.Logs {
		event := sdktrace.Event{Name: "log", Time: rec.Timestamp}
		for _, f := range rec.Fields {
			if f.Key == "event" && f.Value.Kind() == hellotrace.KindString {
				event.Name = f.Value.AsString()
				continue
			}
			event.Attributes = append(event.Attributes, attributeOf(f.Key, f.Value))
		}
		stub.Events = append(stub.Events, event)
	}
	return stub
}

func spanKind(tags map[hellotrace.Tag]hellotrace.Value) trace.SpanKind {
	switch tags[hellotrace.SpanKindTagKey].AsString() {
	case hellotrace.SpanKindServer:
		return trace.SpanKindServer
	case hellotrace.SpanKindClient:
		return trace.SpanKindClient
	default:
		return trace.SpanKindInternal
	}
}

func attributeOf(key string, v hellotrace.Value) attribute.KeyValue {
	switch v.Kind() {
	case hellotrace.KindBool:
		return attribute.Bool(key, v.AsBool())
	case hellotrace.KindInt64:
		return attribute.Int64(key, v.AsInt64())
	case hellotrace.KindFloat64:
		return attribute.Float64(key, v.AsFloat64())
	case hellotrace.KindTime:
		return attribute.String(key, v.AsTime().Format(time.RFC3339Nano))
	default:
		return attribute.String(key, v.String())
	}
}
