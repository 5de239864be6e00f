package reliability

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/hellotrace"
)

// Tracer lifecycle tests - verify startup, operation and cleanup.
// Environment: HELLOTRACE_RELIABILITY_LEVEL controls test intensity
//   basic: CI-safe lifecycle validation
//   stress: rapid cycling and concurrent lifecycles

func TestTracerLifecycle(t *testing.T) {
	config := getReliabilityConfig()

	switch config.Level {
	case "basic":
		t.Run("startup_shutdown", testStartupShutdown)
		t.Run("id_pool_behavior", testIDPoolBehavior)
		t.Run("deep_nesting", testDeepNesting)
	case "stress":
		t.Run("rapid_cycling", testRapidCycling)
		t.Run("concurrent_lifecycle", func(t *testing.T) { testConcurrentLifecycle(t, config) })
	default:
		t.Skip("HELLOTRACE_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
}

// testStartupShutdown verifies basic tracer lifecycle.
func testStartupShutdown(t *testing.T) {
	collector := hellotrace.NewCollector("lifecycle", 100)
	collector.SetSyncMode(true)
	tracer := hellotrace.New("lifecycle-test", hellotrace.WithReporter(collector))

	_, span := tracer.StartSpan(context.Background(), "startup-test")
	span.SetTag("test", "startup")
	span.Finish()

	if err := tracer.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if collector.Count() != 1 {
		t.Errorf("Expected 1 span, got %d", collector.Count())
	}

	// Misuse after close must not panic.
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Panic after tracer close: %v", r)
			}
		}()
		_, span := tracer.StartSpan(context.Background(), "post-close-test")
		span.SetTag("test", "post-close")
		span.Finish()
		if err := tracer.Close(context.Background()); err != nil {
			t.Errorf("Second Close should be a no-op, got %v", err)
		}
	}()

	if collector.Count() != 1 {
		t.Errorf("Spans finished after close must not be collected, got %d", collector.Count())
	}
}

// testIDPoolBehavior checks ids stay unique while pools refill under load.
func testIDPoolBehavior(t *testing.T) {
	tracer := hellotrace.New("id-pool-test", hellotrace.WithIDPoolSize(16))
	defer tracer.Close(context.Background())

	const goroutines = 8
	const perGoroutine = 500

	var mu sync.Mutex
	traceIDs := make(map[hellotrace.TraceID]struct{}, goroutines*perGoroutine)
	spanIDs := make(map[hellotrace.SpanID]struct{}, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_, span := tracer.StartSpan(context.Background(), "id")
				mu.Lock()
				traceIDs[span.TraceID()] = struct{}{}
				spanIDs[span.SpanID()] = struct{}{}
				mu.Unlock()
				span.Finish()
			}
		}()
	}
	wg.Wait()

	if len(traceIDs) != goroutines*perGoroutine {
		t.Errorf("Duplicate trace IDs: %d unique of %d", len(traceIDs), goroutines*perGoroutine)
	}
	if len(spanIDs) != goroutines*perGoroutine {
		t.Errorf("Duplicate span IDs: %d unique of %d", len(spanIDs), goroutines*perGoroutine)
	}
}

// testDeepNesting builds a long parent chain and checks every link.
func testDeepNesting(t *testing.T) {
	collector := hellotrace.NewCollector("nesting", 1000)
	collector.SetSyncMode(true)
	tracer := hellotrace.New("nesting-test", hellotrace.WithReporter(collector))
	defer tracer.Close(context.Background())

	const depth = 500
	ctx := context.Background()
	spans := make([]*hellotrace.ActiveSpan, depth)
	for i := 0; i < depth; i++ {
		ctx, spans[i] = tracer.StartSpan(ctx, fmt.Sprintf("level-%d", i))
	}
	for i := depth - 1; i >= 0; i-- {
		spans[i].Finish()
	}

	byID := make(map[hellotrace.SpanID]hellotrace.Span, depth)
	for _, s := range collector.Export() {
		byID[s.SpanID] = s
	}
	if len(byID) != depth {
		t.Fatalf("Expected %d spans, got %d", depth, len(byID))
	}

	traceID := spans[0].TraceID()
	for i := 1; i < depth; i++ {
		s := byID[spans[i].SpanID()]
		if s.ParentID != spans[i-1].SpanID() {
			t.Fatalf("Broken link at level %d", i)
		}
		if s.TraceID != traceID {
			t.Fatalf("Level %d left the trace", i)
		}
	}
}

// testRapidCycling creates and closes tracers in a loop and checks
// goroutines are released.
func testRapidCycling(t *testing.T) {
	before := runtime.NumGoroutine()

	for i := 0; i < 200; i++ {
		reporter := hellotrace.NewRemoteReporter(discardSender{}, hellotrace.WithFlushInterval(time.Millisecond))
		tracer := hellotrace.New(fmt.Sprintf("cycle-%d", i), hellotrace.WithReporter(reporter))
		for j := 0; j < 10; j++ {
			_, span := tracer.StartSpan(context.Background(), "op")
			span.Finish()
		}
		if err := tracer.Close(context.Background()); err != nil {
			t.Fatalf("Close failed on cycle %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before+5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > before+5 {
		t.Errorf("Goroutine leak: %d before, %d after", before, after)
	}
}

// testConcurrentLifecycle runs independent tracers side by side for the
// configured duration.
func testConcurrentLifecycle(t *testing.T, config ReliabilityConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), config.Duration)
	defer cancel()

	var started, reported atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < config.MaxGoroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for ctx.Err() == nil {
				counter := &countingSender{count: &reported}
				reporter := hellotrace.NewRemoteReporter(counter, hellotrace.WithBatchSize(10))
				tracer := hellotrace.New(fmt.Sprintf("worker-%d", id), hellotrace.WithReporter(reporter))
				for i := 0; i < 20; i++ {
					spanCtx, root := tracer.StartSpan(context.Background(), "root")
					_, child := tracer.StartSpan(spanCtx, "child")
					child.Finish()
					root.Finish()
					started.Add(2)
				}
				if err := tracer.Close(context.Background()); err != nil {
					t.Errorf("Close failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if started.Load() != reported.Load() {
		t.Errorf("Expected every span delivered: started %d, reported %d", started.Load(), reported.Load())
	}
}

type discardSender struct{}

func (discardSender) Send(context.Context, []hellotrace.Span) error { return nil }
func (discardSender) Close() error                                 { return nil }

type countingSender struct {
	count *atomic.Int64
}

func (s *countingSender) Send(_ context.Context, spans []hellotrace.Span) error {
	s.count.Add(int64(len(spans)))
	return nil
}

func (*countingSender) Close() error { return nil }
