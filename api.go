// Package hellotrace provides a small span and tracer core with context
// propagation across process boundaries.
//
// Core Components:
//   - Tracer: Creates spans, tracks the active span and owns the Reporter.
//   - SpanContext: Immutable identity of a span (trace id, span id, sampled, baggage).
//   - ActiveSpan: Handle for an unfinished span (tags, logs, baggage, finish).
//   - Span: Finished record handed to a Reporter.
//   - Codec: Injects and extracts SpanContext into flat string carriers.
//   - Reporter: Receives finished spans (Collector, LoggingReporter, RemoteReporter).
//
// Basic Usage:
//
//	tracer := hellotrace.New("hello-world", hellotrace.WithReporter(reporter))
//	defer tracer.Close(context.Background())
//
//	ctx, span := tracer.StartSpan(ctx, "say-hello")
//	defer span.Finish()
//	span.SetTag("hello-to", "world")
//
//	// Children pick up the span carried in ctx.
//	_, child := tracer.StartSpan(ctx, "format-string")
//	child.LogKV("event", "string-format", "value", "Hello, world!")
//	child.Finish()
//
// Active spans:
//
// Two models are supported. Passing context.Context carries the active span
// per goroutine or request and is the default for concurrent code.
// StartActive also pushes the span onto the tracer's ScopeManager when one
// is set with WithScopeManager, which suits synchronous call chains that
// do not thread a context through. A tracer shared by concurrent requests
// should not be given one.
//
// Crossing process boundaries:
//
//	err := tracer.Inject(span.Context(), hellotrace.HTTPHeaders, hellotrace.HTTPHeadersCarrier(req.Header))
//
//	sc, ok, err := tracer.Extract(hellotrace.HTTPHeaders, hellotrace.HTTPHeadersCarrier(r.Header))
//	if ok {
//		ctx, span = tracer.StartSpan(ctx, "format", hellotrace.ChildOf(sc))
//	}
//
// Thread Safety:
//
// Tracer is safe for concurrent use. ActiveSpan mutation is single-writer:
// do not call SetTag, Log or SetBaggageItem on the same span from several
// goroutines. Finish may be called from any goroutine and more than once.
//
// Failure Model:
//
// Tracing never breaks application code. Mutating a finished span is a
// logged no-op, and reporter errors and panics stay inside the reporter.
// Only Inject and Extract return errors (ErrUnsupportedFormat,
// ErrMalformedContext, ErrInvalidCarrier).
package hellotrace

import "errors"

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string

var (
	// ErrUnsupportedFormat is returned when no codec is registered for a format.
	ErrUnsupportedFormat = errors.New("hellotrace: unsupported format")

	// ErrMalformedContext is returned when a carrier holds a trace header that cannot be parsed.
	ErrMalformedContext = errors.New("hellotrace: malformed span context")

	// ErrInvalidSpanContext is returned by Inject for a context without ids.
	ErrInvalidSpanContext = errors.New("hellotrace: invalid span context")

	// ErrInvalidCarrier is returned when a carrier does not implement the interface a codec needs.
	ErrInvalidCarrier = errors.New("hellotrace: invalid carrier")

	// ErrReporterClosed is returned by Close when a reporter was already closed.
	ErrReporterClosed = errors.New("hellotrace: reporter closed")
)
