package hellotrace

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/zoobzio/clockz"
)

// Option configures a Tracer.
type Option func(*Tracer)

// WithReporter sets the reporter that receives finished spans.
// The tracer owns it and closes it in Close.
func WithReporter(r Reporter) Option {
	return func(t *Tracer) {
		if r != nil {
			t.reporter = r
		}
	}
}

// WithSampler sets the sampler consulted for root spans.
func WithSampler(s Sampler) Option {
	return func(t *Tracer) {
		if s != nil {
			t.sampler = s
		}
	}
}

// WithClock sets the clock used for span timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger sets the logger for soft failures.
func WithLogger(logger logr.Logger) Option {
	return func(t *Tracer) {
		t.logger = logger
	}
}

// WithScopeManager makes m the fallback parent source for spans started
// without one in their context. Tracers have no scope manager by default,
// so concurrent requests never share an implicit parent.
func WithScopeManager(m ScopeManager) Option {
	return func(t *Tracer) {
		if m != nil {
			t.scopes = m
		}
	}
}

// WithCodec registers codec for format, replacing any built-in one.
func WithCodec(format Format, codec Codec) Option {
	return func(t *Tracer) {
		t.codecs[format] = codec
	}
}

// WithTag adds a process tag describing the tracer's service.
func WithTag(key Tag, value interface{}) Option {
	return func(t *Tracer) {
		t.tags[key] = ValueOf(value)
	}
}

// WithMetrics records tracer activity on m.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracer) {
		t.metrics = m
	}
}

// WithPanicHook sets a function called when the reporter panics.
func WithPanicHook(hook func(r interface{})) Option {
	return func(t *Tracer) {
		t.panicHook = hook
	}
}

// WithCloseTimeout bounds how long Close waits for the reporter to flush.
func WithCloseTimeout(d time.Duration) Option {
	return func(t *Tracer) {
		if d > 0 {
			t.closeTimeout = d
		}
	}
}

// WithIDPoolSize sets how many ids are pre-generated per id kind.
// Zero or less generates every id on demand.
func WithIDPoolSize(n int) Option {
	return func(t *Tracer) {
		t.idPoolSize = n
	}
}

// StartOption configures a single StartSpan call.
type StartOption func(*startOptions)

type startOptions struct {
	startTime    time.Time
	tags         map[Tag]interface{}
	parent       SpanContext
	ignoreActive bool
}

// ChildOf makes the new span a child of parent. An invalid parent is
// ignored, so the result of a failed Extract can be passed directly.
func ChildOf(parent SpanContext) StartOption {
	return func(o *startOptions) {
		o.parent = parent
	}
}

// IgnoreActive starts a root span even if ctx or the scope manager
// carries an active span.
func IgnoreActive() StartOption {
	return func(o *startOptions) {
		o.ignoreActive = true
	}
}

// WithStartTime sets an explicit start time.
func WithStartTime(ts time.Time) StartOption {
	return func(o *startOptions) {
		o.startTime = ts
	}
}

// WithTags sets tags on the new span.
func WithTags(tags map[Tag]interface{}) StartOption {
	return func(o *startOptions) {
		if o.tags == nil {
			o.tags = make(map[Tag]interface{}, len(tags))
		}
		for k, v := range tags {
			o.tags[k] = v
		}
	}
}

// WithSpanTag sets one tag on the new span.
func WithSpanTag(key Tag, value interface{}) StartOption {
	return WithTags(map[Tag]interface{}{key: value})
}
