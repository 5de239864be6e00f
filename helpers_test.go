package hellotrace

import (
	"context"
	"testing"

	"github.com/zoobzio/clockz"
)

// newTestTracer returns a tracer reporting into a sync-mode collector and
// driven by a fake clock.
func newTestTracer(t *testing.T, opts ...Option) (*Tracer, *Collector, *clockz.FakeClock) {
	t.Helper()

	clock := clockz.NewFakeClock()
	collector := NewCollector("test", 100)
	collector.SetSyncMode(true)

	base := []Option{
		WithReporter(collector),
		WithClock(clock),
		WithIDPoolSize(0),
	}
	tracer := New("test-service", append(base, opts...)...)
	t.Cleanup(func() {
		_ = tracer.Close(context.Background())
	})
	return tracer, collector, clock
}

func spansByName(spans []Span) map[string]Span {
	out := make(map[string]Span, len(spans))
	for _, s := range spans {
		out[s.Name] = s
	}
	return out
}

// countingReporter records Report calls.
type countingReporter struct {
	spans  []Span
	closed int
}

func (r *countingReporter) Report(span Span) {
	r.spans = append(r.spans, span)
}

func (r *countingReporter) Close(context.Context) error {
	r.closed++
	return nil
}
