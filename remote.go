package hellotrace

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/zoobzio/clockz"
)

// Sender delivers batches of finished spans to a backend.
type Sender interface {
	Send(ctx context.Context, spans []Span) error
	Close() error
}

// Defaults for RemoteReporter.
const (
	DefaultQueueSize     = 1000
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
	DefaultSendTimeout   = 5 * time.Second
)

// RemoteReporterOption configures a RemoteReporter.
type RemoteReporterOption func(*RemoteReporter)

// WithQueueSize bounds the number of spans waiting for delivery.
func WithQueueSize(n int) RemoteReporterOption {
	return func(r *RemoteReporter) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithBatchSize sets how many spans are sent per batch.
func WithBatchSize(n int) RemoteReporterOption {
	return func(r *RemoteReporter) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithFlushInterval sets how often a partial batch is sent.
func WithFlushInterval(d time.Duration) RemoteReporterOption {
	return func(r *RemoteReporter) {
		if d > 0 {
			r.flushInterval = d
		}
	}
}

// WithSendTimeout bounds a single Send call.
func WithSendTimeout(d time.Duration) RemoteReporterOption {
	return func(r *RemoteReporter) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

// WithReporterLogger sets the logger used for send failures.
func WithReporterLogger(logger logr.Logger) RemoteReporterOption {
	return func(r *RemoteReporter) {
		r.logger = logger
	}
}

// WithReporterClock sets the clock driving the flush interval.
func WithReporterClock(clock clockz.Clock) RemoteReporterOption {
	return func(r *RemoteReporter) {
		r.clock = clock
	}
}

// WithReporterMetrics counts dropped spans on m.
func WithReporterMetrics(m *Metrics) RemoteReporterOption {
	return func(r *RemoteReporter) {
		r.metrics = m
	}
}

// RemoteReporter queues finished spans and delivers them in batches from
// a background goroutine. Report never blocks: when the queue is full the
// span is dropped and counted.
//
//nolint:govet // Field order optimized for functionality over memory
type RemoteReporter struct {
	sender        Sender
	queue         chan Span
	stopCh        chan struct{}
	done          chan struct{}
	closeCtx      context.Context
	runCtx        context.Context
	cancelRun     context.CancelFunc
	logger        logr.Logger
	clock         clockz.Clock
	metrics       *Metrics
	queueSize     int
	batchSize     int
	flushInterval time.Duration
	sendTimeout   time.Duration
	dropped       atomic.Int64
	closed        atomic.Bool
	closeOnce     sync.Once
	// mu orders Report enqueues before Close shuts the queue.
	mu sync.RWMutex
}

// NewRemoteReporter creates a reporter delivering spans through sender
// and starts its background goroutine.
func NewRemoteReporter(sender Sender, opts ...RemoteReporterOption) *RemoteReporter {
	r := &RemoteReporter{
		sender:        sender,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		logger:        logr.Discard(),
		clock:         clockz.RealClock,
		queueSize:     DefaultQueueSize,
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		sendTimeout:   DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan Span, r.queueSize)
	r.runCtx, r.cancelRun = context.WithCancel(context.Background())
	go r.run()
	return r
}

// Report queues span for delivery. A span reported after Close has begun
// is dropped and counted.
func (r *RemoteReporter) Report(span Span) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		r.drop(1)
		return
	}
	select {
	case r.queue <- span:
	default:
		r.drop(1)
	}
}

// SetProcess passes p to the sender when it accepts one.
func (r *RemoteReporter) SetProcess(p Process) {
	if pr, ok := r.sender.(ProcessReceiver); ok {
		pr.SetProcess(p)
	}
}

// Dropped returns the number of spans that were never delivered.
func (r *RemoteReporter) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting spans and flushes the queue. Spans still queued
// when ctx is done are dropped and counted.
func (r *RemoteReporter) Close(ctx context.Context) error {
	err := ErrReporterClosed
	r.closeOnce.Do(func() {
		err = nil
		r.mu.Lock()
		r.closeCtx = ctx
		r.closed.Store(true)
		close(r.stopCh)
		r.mu.Unlock()
	})
	if err != nil {
		return err
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		// Abort an in-flight send so the loop can account for what is left.
		r.cancelRun()
		return fmt.Errorf("remote reporter close: %w", ctx.Err())
	}
}

func (r *RemoteReporter) run() {
	defer close(r.done)
	defer r.cancelRun()

	batch := make([]Span, 0, r.batchSize)
	tick := r.clock.After(r.flushInterval)
	for {
		select {
		case span := <-r.queue:
			batch = append(batch, span)
			if len(batch) >= r.batchSize {
				batch = r.flush(r.runCtx, batch)
			}
		case <-tick:
			batch = r.flush(r.runCtx, batch)
			tick = r.clock.After(r.flushInterval)
		case <-r.stopCh:
			r.drain(r.closeCtx, batch)
			if err := r.sender.Close(); err != nil {
				r.logger.Error(err, "closing span sender")
			}
			return
		}
	}
}

// drain empties the queue, sending full batches until ctx is done.
func (r *RemoteReporter) drain(ctx context.Context, batch []Span) {
	for {
		if ctx.Err() != nil {
			r.drop(len(batch) + len(r.queue))
			r.logger.Info("close timeout elapsed, dropping spans", "dropped", len(batch)+len(r.queue))
			return
		}
		select {
		case span := <-r.queue:
			batch = append(batch, span)
			if len(batch) >= r.batchSize {
				batch = r.flush(ctx, batch)
			}
		default:
			r.flush(ctx, batch)
			return
		}
	}
}

// flush sends batch and returns an empty batch for reuse.
func (r *RemoteReporter) flush(ctx context.Context, batch []Span) []Span {
	if len(batch) == 0 {
		return batch
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()

	if err := r.safeSend(sendCtx, batch); err != nil {
		r.drop(len(batch))
		r.logger.Error(err, "failed to send spans", "count", len(batch))
	}
	return make([]Span, 0, r.batchSize)
}

func (r *RemoteReporter) safeSend(ctx context.Context, batch []Span) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sender panic: %v", p)
		}
	}()
	return r.sender.Send(ctx, batch)
}

func (r *RemoteReporter) drop(n int) {
	if n <= 0 {
		return
	}
	r.dropped.Add(int64(n))
	r.metrics.spansDropped(n)
}
