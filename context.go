package hellotrace

import "context"

// SpanContext is the propagated identity of a span. It is immutable:
// WithBaggageItem returns a new value and never touches the receiver.
type SpanContext struct {
	baggage  map[string]string
	traceID  TraceID
	spanID   SpanID
	parentID SpanID
	sampled  bool
}

// NewSpanContext builds a SpanContext. The baggage map is copied.
func NewSpanContext(traceID TraceID, spanID, parentID SpanID, sampled bool, baggage map[string]string) SpanContext {
	sc := SpanContext{
		traceID:  traceID,
		spanID:   spanID,
		parentID: parentID,
		sampled:  sampled,
	}
	if len(baggage) > 0 {
		sc.baggage = make(map[string]string, len(baggage))
		for k, v := range baggage {
			sc.baggage[k] = v
		}
	}
	return sc
}

// TraceID returns the trace id.
func (c SpanContext) TraceID() TraceID { return c.traceID }

// SpanID returns the span id.
func (c SpanContext) SpanID() SpanID { return c.spanID }

// ParentID returns the parent span id, zero for roots.
func (c SpanContext) ParentID() SpanID { return c.parentID }

// IsSampled reports whether the trace is sampled.
func (c SpanContext) IsSampled() bool { return c.sampled }

// IsValid reports whether both ids are set.
func (c SpanContext) IsValid() bool { return c.traceID.IsValid() && c.spanID.IsValid() }

// BaggageItem returns the baggage value for key, or "".
func (c SpanContext) BaggageItem(key string) string { return c.baggage[key] }

// ForeachBaggageItem calls handler for each baggage item until it returns false.
func (c SpanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			break
		}
	}
}

// Baggage returns a copy of the baggage map.
func (c SpanContext) Baggage() map[string]string {
	if len(c.baggage) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.baggage))
	for k, v := range c.baggage {
		out[k] = v
	}
	return out
}

// WithBaggageItem returns a new SpanContext with key set to value.
// Contexts that shared the old baggage map do not see the change.
func (c SpanContext) WithBaggageItem(key, value string) SpanContext {
	baggage := make(map[string]string, len(c.baggage)+1)
	for k, v := range c.baggage {
		baggage[k] = v
	}
	baggage[key] = value
	c.baggage = baggage
	return c
}

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "hellotrace"
)

// ContextWithSpan returns a copy of ctx carrying span as the active span.
func ContextWithSpan(ctx context.Context, span *ActiveSpan) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bundleKey, span)
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}
	if span, ok := ctx.Value(bundleKey).(*ActiveSpan); ok {
		return span
	}
	return nil
}

// StartSpanFromContext starts a child of the span carried by ctx using
// that span's tracer, or the global tracer when ctx has no span.
func StartSpanFromContext(ctx context.Context, operation Key, opts ...StartOption) (context.Context, *ActiveSpan) {
	tracer := GlobalTracer()
	if parent := SpanFromContext(ctx); parent != nil {
		tracer = parent.Tracer()
	}
	return tracer.StartSpan(ctx, operation, opts...)
}
