package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zoobzio/hellotrace"
)

// mockBackend accepts span batches the way a trace collector would.
type mockBackend struct {
	*httptest.Server
	mu      sync.Mutex
	names   []string
	service string
	stall   chan struct{}
}

func newMockBackend(t *testing.T, stall chan struct{}) *mockBackend {
	b := &mockBackend{stall: stall}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.stall != nil {
			select {
			case <-b.stall:
			case <-r.Context().Done():
				return
			}
		}
		var batch struct {
			Process struct {
				ServiceName string `json:"service_name"`
			} `json:"process"`
			Spans []struct {
				Name    string `json:"name"`
				TraceID string `json:"trace_id"`
			} `json:"spans"`
		}
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.service = batch.Process.ServiceName
		for _, s := range batch.Spans {
			b.names = append(b.names, s.Name)
		}
		b.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *mockBackend) received() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.names...)
}

// TestReporterPipeline fans finished spans out to a log, an in-memory
// collector and a remote backend, with metrics on the side.
func TestReporterPipeline(t *testing.T) {
	backend := newMockBackend(t, nil)

	var logMu sync.Mutex
	var logLines []string
	logger := funcr.New(func(_, args string) {
		logMu.Lock()
		logLines = append(logLines, args)
		logMu.Unlock()
	}, funcr.Options{})

	reg := prometheus.NewRegistry()
	metrics := hellotrace.NewMetrics(reg)
	collector := NewMockCollector(t, "memory", 100)
	remote := hellotrace.NewRemoteReporter(
		hellotrace.NewHTTPSender(backend.URL, hellotrace.WithProcess(hellotrace.Process{ServiceName: "pipeline"})),
		hellotrace.WithBatchSize(2),
		hellotrace.WithFlushInterval(time.Hour),
		hellotrace.WithReporterMetrics(metrics),
	)
	tracer := hellotrace.New("pipeline",
		hellotrace.WithReporter(hellotrace.NewCompositeReporter(
			hellotrace.NewLoggingReporter(logger),
			collector,
			remote,
		)),
		hellotrace.WithMetrics(metrics),
		hellotrace.WithLogger(logger),
	)

	ctx, root := tracer.StartSpan(context.Background(), "say-hello")
	root.SetBaggageItem("greeting", "Hi")
	for _, name := range []string{"format-string", "print-hello"} {
		_, child := tracer.StartSpan(ctx, name)
		child.Finish()
	}
	root.Finish()

	if err := tracer.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	collector.AssertSpanCount(3)
	collector.AssertParentChild("say-hello", "format-string")
	collector.AssertParentChild("say-hello", "print-hello")

	got := backend.received()
	if len(got) != 3 {
		t.Errorf("backend received %v", got)
	}
	backend.mu.Lock()
	if backend.service != "pipeline" {
		t.Errorf("backend saw service %q", backend.service)
	}
	backend.mu.Unlock()

	logMu.Lock()
	reported := 0
	for _, line := range logLines {
		if strings.Contains(line, `"msg"="Reporting span"`) {
			reported++
		}
	}
	logMu.Unlock()
	if reported != 3 {
		t.Errorf("expected 3 logged spans, got %d", reported)
	}

	if v := testutil.ToFloat64(metrics.SpansFinished); v != 3 {
		t.Errorf("spans finished = %v", v)
	}
	if v := testutil.ToFloat64(metrics.SpansStarted.WithLabelValues("true")); v != 3 {
		t.Errorf("sampled spans started = %v", v)
	}
	if v := testutil.ToFloat64(metrics.BaggageUpdates); v != 1 {
		t.Errorf("baggage updates = %v", v)
	}
	if v := testutil.ToFloat64(metrics.SpansDropped); v != 0 {
		t.Errorf("spans dropped = %v", v)
	}
}

// TestStalledBackendBoundsClose checks that a tracer whose backend never
// answers still closes within its timeout and accounts for every span.
func TestStalledBackendBoundsClose(t *testing.T) {
	stall := make(chan struct{})
	defer close(stall)
	backend := newMockBackend(t, stall)

	remote := hellotrace.NewRemoteReporter(
		hellotrace.NewHTTPSender(backend.URL),
		hellotrace.WithBatchSize(1),
		hellotrace.WithQueueSize(4),
		hellotrace.WithFlushInterval(time.Hour),
	)
	tracer := hellotrace.New("stalled",
		hellotrace.WithReporter(remote),
		hellotrace.WithCloseTimeout(50*time.Millisecond),
	)

	const total = 20
	for i := 0; i < total; i++ {
		_, span := tracer.StartSpan(context.Background(), "op")
		span.Finish()
	}

	start := time.Now()
	err := tracer.Close(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("close took %v", elapsed)
	}

	deadline := time.Now().Add(2 * time.Second)
	for remote.Dropped() < total && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if remote.Dropped() != total {
		t.Errorf("expected all %d spans counted as dropped, got %d", total, remote.Dropped())
	}
	if len(backend.received()) != 0 {
		t.Errorf("stalled backend should not have recorded spans")
	}
}
