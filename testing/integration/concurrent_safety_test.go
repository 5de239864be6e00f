package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/zoobzio/hellotrace"
)

// TestConcurrentRequestsStayIsolated runs many request handlers at once,
// each passing its own context, and checks no span crosses traces.
func TestConcurrentRequestsStayIsolated(t *testing.T) {
	tracer, collector := NewTracer(t, "concurrent-service")

	const workers = 20
	const requests = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for r := 0; r < requests; r++ {
				ctx, root := tracer.StartSpan(context.Background(), "request")
				root.SetBaggageItem("worker", fmt.Sprint(worker))

				childCtx, child := tracer.StartSpan(ctx, "query")
				_, grandchild := tracer.StartSpan(childCtx, "decode")
				grandchild.SetTag("rows", r)
				grandchild.Finish()
				child.Finish()
				root.Finish()
			}
		}(w)
	}
	wg.Wait()

	spans := collector.GetAll()
	if len(spans) != workers*requests*3 {
		t.Fatalf("expected %d spans, got %d", workers*requests*3, len(spans))
	}

	analyzer := NewTraceAnalyzer(spans)
	if analyzer.CountTraces() != workers*requests {
		t.Errorf("expected %d traces, got %d", workers*requests, analyzer.CountTraces())
	}
	if analyzer.CountTrees() != workers*requests {
		t.Errorf("expected %d trees, got %d", workers*requests, analyzer.CountTrees())
	}

	for _, tree := range BuildSpanTree(spans) {
		worker := tree.Span.Baggage["worker"]
		if len(tree.Children) != 1 || len(tree.Children[0].Children) != 1 {
			t.Fatalf("trace %s has the wrong shape:\n%s", tree.Span.TraceID, PrintSpanTree([]*SpanTree{tree}))
		}
		decode := tree.Children[0].Children[0].Span
		if decode.TraceID != tree.Span.TraceID {
			t.Errorf("decode left its trace")
		}
		if decode.Baggage["worker"] != worker {
			t.Errorf("baggage leaked between workers: %q vs %q", decode.Baggage["worker"], worker)
		}
	}
}

// TestSiblingBaggageIsCopyOnWrite gives concurrent children of one parent
// their own baggage and checks neither sees the other's.
func TestSiblingBaggageIsCopyOnWrite(t *testing.T) {
	tracer, collector := NewTracer(t, "baggage-service")

	ctx, root := tracer.StartSpan(context.Background(), "fan-out")
	root.SetBaggageItem("shared", "yes")

	const siblings = 10
	var wg sync.WaitGroup
	for i := 0; i < siblings; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, child := tracer.StartSpan(ctx, "branch")
			child.SetBaggageItem("branch", fmt.Sprint(i))
			child.Finish()
		}(i)
	}
	wg.Wait()
	root.Finish()

	if item := root.BaggageItem("branch"); item != "" {
		t.Errorf("child baggage leaked into parent: %q", item)
	}

	seen := make(map[string]bool)
	for _, span := range NewTraceAnalyzer(collector.GetAll()).GetSpansByName("branch") {
		if span.Baggage["shared"] != "yes" {
			t.Errorf("branch lost inherited baggage")
		}
		seen[span.Baggage["branch"]] = true
	}
	if len(seen) != siblings {
		t.Errorf("expected %d distinct branch values, got %d", siblings, len(seen))
	}
}

// TestConcurrentFinishReportsOnce races Finish from many goroutines.
func TestConcurrentFinishReportsOnce(t *testing.T) {
	tracer, collector := NewTracer(t, "finish-service")

	for i := 0; i < 50; i++ {
		_, span := tracer.StartSpan(context.Background(), "contended")
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				span.Finish()
			}()
		}
		wg.Wait()
	}

	collector.AssertSpanCount(50)
}

// TestScenarioNestedOperations drives a request through nested helpers
// using only context.Context.
func TestScenarioNestedOperations(t *testing.T) {
	scenario := &TestScenario{
		Name: "checkout",
		Execute: func(ctx context.Context, tracer *hellotrace.Tracer) {
			ctx, root := tracer.StartSpan(ctx, "checkout")
			defer root.Finish()

			reserve := func(ctx context.Context, item string) {
				_, span := hellotrace.StartSpanFromContext(ctx, "reserve", hellotrace.WithSpanTag("item", item))
				defer span.Finish()
			}
			for _, item := range []string{"book", "pen"} {
				reserve(ctx, item)
			}

			payCtx, pay := tracer.StartSpan(ctx, "pay")
			_, charge := tracer.StartSpan(payCtx, "charge")
			charge.SetTag(hellotrace.ErrorTagKey, true)
			charge.LogKV("event", "error", "message", "card declined")
			charge.Finish()
			pay.Finish()
		},
		Verify: func(t *testing.T, spans []hellotrace.Span) {
			analyzer := NewTraceAnalyzer(spans)
			if analyzer.CountSpans() != 5 {
				t.Fatalf("expected 5 spans, got %d", analyzer.CountSpans())
			}
			if err := analyzer.VerifyChain("checkout", "pay", "charge"); err != nil {
				t.Error(err)
			}
			root := analyzer.GetSpansByName("checkout")[0]
			for _, span := range analyzer.GetSpansByName("reserve") {
				span := span
				NewSpanMatcher(t, &span).HasParent(root.SpanID).InTrace(root.TraceID)
			}
			charge := analyzer.GetSpansByName("charge")[0]
			NewSpanMatcher(t, &charge).HasTag(hellotrace.ErrorTagKey, "true")
			if len(charge.Logs) != 1 {
				t.Errorf("expected one log on charge, got %d", len(charge.Logs))
			}
		},
	}
	scenario.Run(t)
}
