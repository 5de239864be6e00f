package hellotrace

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// DefaultCloseTimeout bounds Close when no WithCloseTimeout is given.
const DefaultCloseTimeout = 5 * time.Second

// Process tag keys set by New.
const (
	TracerHostnameTagKey = "hostname"
	TracerUUIDTagKey     = "tracer.uuid"
	SamplerTypeTagKey    = "sampler.type"
	SamplerParamTagKey   = "sampler.param"
)

// Tracer creates spans, tracks the active span, propagates span contexts
// and owns the reporter. Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	reporter     Reporter
	sampler      Sampler
	scopes       ScopeManager
	codecs       map[Format]Codec
	tags         map[Tag]Value
	logger       logr.Logger
	clock        clockz.Clock
	metrics      *Metrics
	panicHook    func(r interface{})
	traceIDPool  *IDPool[TraceID]
	spanIDPool   *IDPool[SpanID]
	service      string
	closeTimeout time.Duration
	idPoolSize   int
	codecsLock   sync.RWMutex
	idPoolOnce   sync.Once
	closeOnce    sync.Once
	closed       atomic.Bool
}

// New creates a tracer for service. Without options it samples every
// trace, discards finished spans and uses the real clock.
func New(service string, opts ...Option) *Tracer {
	t := &Tracer{
		service:      service,
		reporter:     NullReporter{},
		sampler:      NewConstSampler(true),
		codecs:       make(map[Format]Codec),
		tags:         make(map[Tag]Value),
		logger:       logr.Discard(),
		clock:        clockz.RealClock,
		closeTimeout: DefaultCloseTimeout,
		idPoolSize:   runtime.NumCPU() * 100,
	}
	t.codecs[HTTPHeaders] = NewHeaderCodec(true)
	t.codecs[TextMap] = NewHeaderCodec(false)
	t.tags[TracerUUIDTagKey] = String(uuid.NewString())
	if host, err := os.Hostname(); err == nil {
		t.tags[TracerHostnameTagKey] = String(host)
	}

	for _, opt := range opts {
		opt(t)
	}
	if pr, ok := t.reporter.(ProcessReceiver); ok {
		pr.SetProcess(t.Process())
	}
	return t
}

// ServiceName returns the service the tracer reports as.
func (t *Tracer) ServiceName() string {
	return t.service
}

// Tags returns a copy of the process tags.
func (t *Tracer) Tags() map[Tag]Value {
	out := make(map[Tag]Value, len(t.tags))
	for k, v := range t.tags {
		out[k] = v
	}
	return out
}

// Process describes the tracer to exporters: its service name and
// process tags rendered as strings.
func (t *Tracer) Process() Process {
	p := Process{ServiceName: t.service, Tags: make(map[string]string, len(t.tags))}
	for k, v := range t.tags {
		p.Tags[k] = v.String()
	}
	return p
}

// Reporter returns the tracer's reporter.
func (t *Tracer) Reporter() Reporter {
	return t.reporter
}

// ScopeManager returns the scope manager set with WithScopeManager, or nil.
func (t *Tracer) ScopeManager() ScopeManager {
	return t.scopes
}

// Logger returns the tracer's logger.
func (t *Tracer) Logger() logr.Logger {
	return t.logger
}

// StartSpan creates a new span and returns a context carrying it.
//
// The parent is, in order: the ChildOf option, the span carried by ctx,
// the scope manager's active span when one was configured. IgnoreActive
// skips the last two.
// Children inherit trace id, sampling decision and baggage; root spans
// get a fresh trace id and ask the sampler.
func (t *Tracer) StartSpan(ctx context.Context, operation Key, opts ...StartOption) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}
	var so startOptions
	for _, opt := range opts {
		opt(&so)
	}

	sc := SpanContext{spanID: t.generateSpanID()}
	parent, hasParent := t.resolveParent(ctx, &so)
	if hasParent {
		sc.traceID = parent.traceID
		sc.parentID = parent.spanID
		sc.sampled = parent.sampled
		// Baggage maps are never written in place, so sharing is safe.
		sc.baggage = parent.baggage
	} else {
		sc.traceID = t.generateTraceID()
		sc.sampled = t.sampler.ShouldSample(sc.traceID, operation)
	}

	startTime := so.startTime
	if startTime.IsZero() {
		startTime = t.clock.Now()
	}

	span := &ActiveSpan{
		tracer: t,
		ctx:    sc,
		record: Span{
			TraceID:   sc.traceID,
			SpanID:    sc.spanID,
			ParentID:  sc.parentID,
			Name:      operation,
			Service:   t.service,
			StartTime: startTime,
			Sampled:   sc.sampled,
		},
	}
	if !hasParent || len(so.tags) > 0 {
		span.record.Tags = make(map[Tag]Value, len(so.tags)+2)
	}
	if !hasParent {
		kind, param := samplerTags(t.sampler)
		span.record.Tags[SamplerTypeTagKey] = String(kind)
		span.record.Tags[SamplerParamTagKey] = ValueOf(param)
	}
	for k, v := range so.tags {
		span.record.Tags[k] = ValueOf(v)
	}

	t.metrics.spanStarted(sc.sampled)
	return ContextWithSpan(ctx, span), span
}

// StartActive starts a span and activates it on the scope manager.
// Closing the scope restores the previously active span and, when
// finishOnClose is set, finishes the span. Close it with defer so every
// exit path releases it.
//
// Without a scope manager the span is active only through the returned
// context.
func (t *Tracer) StartActive(ctx context.Context, operation Key, finishOnClose bool, opts ...StartOption) (context.Context, *Scope) {
	newCtx, span := t.StartSpan(ctx, operation, opts...)
	if t.scopes == nil {
		return newCtx, NewScope(span, finishOnClose, nil)
	}
	return newCtx, t.scopes.Activate(span, finishOnClose)
}

// ActiveSpan returns the scope manager's active span, or nil.
func (t *Tracer) ActiveSpan() *ActiveSpan {
	if t.scopes == nil {
		return nil
	}
	return t.scopes.Active()
}

func (t *Tracer) resolveParent(ctx context.Context, so *startOptions) (SpanContext, bool) {
	if so.parent.IsValid() {
		return so.parent, true
	}
	if so.ignoreActive {
		return SpanContext{}, false
	}
	if span := SpanFromContext(ctx); span != nil {
		return span.Context(), true
	}
	if span := t.ActiveSpan(); span != nil {
		return span.Context(), true
	}
	return SpanContext{}, false
}

// RegisterCodec registers codec for format.
func (t *Tracer) RegisterCodec(format Format, codec Codec) {
	t.codecsLock.Lock()
	defer t.codecsLock.Unlock()
	t.codecs[format] = codec
}

func (t *Tracer) codec(format Format) (Codec, error) {
	t.codecsLock.RLock()
	defer t.codecsLock.RUnlock()

	codec, ok := t.codecs[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return codec, nil
}

// Inject writes sc into carrier using the codec registered for format.
func (t *Tracer) Inject(sc SpanContext, format Format, carrier interface{}) error {
	codec, err := t.codec(format)
	if err != nil {
		return err
	}
	return codec.Inject(sc, carrier)
}

// Extract reads a span context from carrier. ok is false with a nil
// error when the carrier holds no trace header.
func (t *Tracer) Extract(format Format, carrier interface{}) (SpanContext, bool, error) {
	codec, err := t.codec(format)
	if err != nil {
		return SpanContext{}, false, err
	}

	sc, ok, err := codec.Extract(carrier)
	switch {
	case err != nil:
		t.metrics.extracted("error")
		t.logger.V(1).Info("failed to extract span context", "format", string(format), "error", err.Error())
	case ok:
		t.metrics.extracted("found")
	default:
		t.metrics.extracted("absent")
	}
	return sc, ok, err
}

// finishSpan hands a finished sampled span to the reporter.
func (t *Tracer) finishSpan(span *Span) {
	t.metrics.spanFinished()
	if !span.Sampled {
		return
	}
	t.report(*span)
}

func (t *Tracer) report(span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error(fmt.Errorf("reporter panic: %v", r), "span dropped", "operation", span.Name)
			if t.panicHook != nil {
				t.panicHook(r)
			}
		}
	}()
	t.reporter.Report(span)
	t.metrics.spanReported()
}

// Dropped returns the number of spans the reporter dropped, when it counts them.
func (t *Tracer) Dropped() int64 {
	if dc, ok := t.reporter.(DropCounter); ok {
		return dc.Dropped()
	}
	return 0
}

// Close flushes the reporter, waiting at most the close timeout or until
// ctx is done, and releases background goroutines. Starting spans after
// Close is a usage error.
func (t *Tracer) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)

		closeCtx, cancel := context.WithTimeout(ctx, t.closeTimeout)
		defer cancel()
		err = t.reporter.Close(closeCtx)

		if dropped := t.Dropped(); dropped > 0 {
			t.logger.Info("tracer closed with dropped spans", "service", t.service, "dropped", dropped)
		}

		// Wait out a concurrent pool initialization before reading the pools.
		t.idPoolOnce.Do(func() {})
		if t.traceIDPool != nil {
			t.traceIDPool.Close()
		}
		if t.spanIDPool != nil {
			t.spanIDPool.Close()
		}
	})
	return err
}

// ensureIDPools initializes ID pools if not already created.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		if t.idPoolSize <= 0 || t.closed.Load() {
			return
		}
		t.traceIDPool = NewIDPool(t.idPoolSize, randomTraceID)
		t.spanIDPool = NewIDPool(t.idPoolSize, randomSpanID)
	})
}

func (t *Tracer) generateTraceID() TraceID {
	t.ensureIDPools()
	if t.traceIDPool == nil {
		return randomTraceID()
	}
	return t.traceIDPool.Get()
}

func (t *Tracer) generateSpanID() SpanID {
	t.ensureIDPools()
	if t.spanIDPool == nil {
		return randomSpanID()
	}
	return t.spanIDPool.Get()
}

var (
	globalTracer atomic.Pointer[Tracer]
	noopTracer   = New("noop",
		WithSampler(NewConstSampler(false)),
		WithIDPoolSize(0),
	)
)

// SetGlobalTracer registers t as the process-wide default. Call it once
// at startup.
func SetGlobalTracer(t *Tracer) {
	globalTracer.Store(t)
}

// GlobalTracer returns the registered tracer, or a tracer that samples
// nothing when none was registered.
func GlobalTracer() *Tracer {
	if t := globalTracer.Load(); t != nil {
		return t
	}
	return noopTracer
}
