package hellotrace

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
)

// Reporter receives finished spans. Report must not block on I/O and
// must not surface transport failures to the caller.
type Reporter interface {
	Report(span Span)
	// Close flushes buffered spans, giving up when ctx is done.
	Close(ctx context.Context) error
}

// DropCounter is implemented by reporters that can lose spans.
type DropCounter interface {
	Dropped() int64
}

// ProcessReceiver is implemented by reporters and senders that describe
// the producing process on the wire. New calls SetProcess on its reporter
// once options are applied; reporters pass it on to their senders.
type ProcessReceiver interface {
	SetProcess(p Process)
}

// NullReporter discards every span.
type NullReporter struct{}

// NewNullReporter creates a NullReporter.
func NewNullReporter() NullReporter { return NullReporter{} }

// Report discards span.
func (NullReporter) Report(Span) {}

// Close does nothing.
func (NullReporter) Close(context.Context) error { return nil }

// LoggingReporter writes each finished span to a logger.
type LoggingReporter struct {
	logger logr.Logger
}

// NewLoggingReporter creates a reporter that logs spans at info level.
func NewLoggingReporter(logger logr.Logger) *LoggingReporter {
	return &LoggingReporter{logger: logger}
}

// Report logs the span.
func (r *LoggingReporter) Report(span Span) {
	kv := []interface{}{
		"service", span.Service,
		"operation", span.Name,
		"trace_id", span.TraceID.String(),
		"span_id", span.SpanID.String(),
		"duration", span.Duration,
	}
	if !span.IsRoot() {
		kv = append(kv, "parent_id", span.ParentID.String())
	}
	if len(span.Tags) > 0 {
		tags := make(map[string]string, len(span.Tags))
		for k, v := range span.Tags {
			tags[k] = v.String()
		}
		kv = append(kv, "tags", tags)
	}
	if len(span.Logs) > 0 {
		kv = append(kv, "logs", len(span.Logs))
	}
	r.logger.Info("Reporting span", kv...)
}

// Close does nothing; logging is synchronous.
func (*LoggingReporter) Close(context.Context) error { return nil }

// CompositeReporter fans spans out to several reporters.
type CompositeReporter struct {
	reporters []Reporter
}

// NewCompositeReporter creates a reporter delegating to reporters in order.
func NewCompositeReporter(reporters ...Reporter) *CompositeReporter {
	return &CompositeReporter{reporters: reporters}
}

// Report hands span to each reporter.
func (r *CompositeReporter) Report(span Span) {
	for _, rep := range r.reporters {
		rep.Report(span)
	}
}

// Close closes every reporter and joins their errors.
func (r *CompositeReporter) Close(ctx context.Context) error {
	var errs []error
	for _, rep := range r.reporters {
		if err := rep.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetProcess passes p to every reporter that accepts it.
func (r *CompositeReporter) SetProcess(p Process) {
	for _, rep := range r.reporters {
		if pr, ok := rep.(ProcessReceiver); ok {
			pr.SetProcess(p)
		}
	}
}

// Dropped sums drops of the reporters that count them.
func (r *CompositeReporter) Dropped() int64 {
	var total int64
	for _, rep := range r.reporters {
		if dc, ok := rep.(DropCounter); ok {
			total += dc.Dropped()
		}
	}
	return total
}
