package hellotrace

import (
	"context"
	"runtime"
	"testing"
	"time"
)

func BenchmarkUnsampledSpan(b *testing.B) {
	tracer := New("bench", WithSampler(NewConstSampler(false)))
	defer tracer.Close(context.Background())

	ctx := context.Background()

	b.Run("unsampled", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, span := tracer.StartSpan(ctx, "test-op")
			span.SetTag("key", "value")
			span.SetTag("int", 123)
			span.SetTag("bool", true)
			span.Finish()
		}
	})

	b.Run("sampled-null-reporter", func(b *testing.B) {
		sampled := New("bench", WithReporter(NewNullReporter()))
		defer sampled.Close(context.Background())

		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, span := sampled.StartSpan(ctx, "test-op")
			span.SetTag("key", "value")
			span.SetTag("int", 123)
			span.SetTag("bool", true)
			span.Finish()
		}
	})
}

func TestUnsampledBehavior(t *testing.T) {
	tracer, collector, _ := newTestTracer(t, WithSampler(NewConstSampler(false)))

	ctx, root := tracer.StartSpan(context.Background(), "test-op")
	root.SetTag("key", "value")
	root.LogEvent("ignored by the reporter")

	// Unsampled spans still carry valid ids so they can be propagated.
	if !root.TraceID().IsValid() || !root.SpanID().IsValid() {
		t.Error("Expected valid ids on an unsampled span")
	}
	if root.Context().IsSampled() {
		t.Error("Expected unsampled context")
	}

	_, child := tracer.StartSpan(ctx, "child-op")
	if child.Context().IsSampled() {
		t.Error("Expected child to inherit the unsampled decision")
	}
	if child.TraceID() != root.TraceID() {
		t.Error("Expected child to share the trace id")
	}

	child.Finish()
	root.Finish()

	if collector.Count() != 0 {
		t.Errorf("Expected no reported spans, got %d", collector.Count())
	}
}

func TestUnsampledBaggageNotLogged(t *testing.T) {
	tracer, _, _ := newTestTracer(t, WithSampler(NewConstSampler(false)))

	_, span := tracer.StartSpan(context.Background(), "op")
	span.SetBaggageItem("greeting", "Bonjour")

	if span.BaggageItem("greeting") != "Bonjour" {
		t.Error("Expected baggage to propagate even when unsampled")
	}
	span.mu.Lock()
	logs := len(span.record.Logs)
	span.mu.Unlock()
	if logs != 0 {
		t.Errorf("Expected no baggage log on an unsampled span, got %d", logs)
	}
}

func TestGlobalTracerDefaultSamplesNothing(t *testing.T) {
	if globalTracer.Load() != nil {
		t.Skip("global tracer registered by another test")
	}
	_, span := GlobalTracer().StartSpan(context.Background(), "op")
	defer span.Finish()
	if span.Context().IsSampled() {
		t.Error("Expected the default global tracer not to sample")
	}
}

func TestUnsampledSpanMemory(t *testing.T) {
	tracer := New("mem", WithSampler(NewConstSampler(false)), WithIDPoolSize(0))
	defer tracer.Close(context.Background())

	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	before := m.HeapAlloc

	ctx := context.Background()
	for i := 0; i < 10000; i++ {
		_, span := tracer.StartSpan(ctx, "op")
		span.Finish()
	}

	runtime.GC()
	time.Sleep(10 * time.Millisecond)
	runtime.ReadMemStats(&m)
	after := m.HeapAlloc

	// Finished unsampled spans are not retained anywhere.
	if after > before && after-before > 4<<20 {
		t.Errorf("Expected unsampled spans to be collected, heap grew by %d bytes", after-before)
	}
}
