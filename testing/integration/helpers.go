package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/nethttp"
)

// MockCollector wraps a real collector with test utilities.
// Collection is synchronous so spans are visible as soon as Finish returns.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []hellotrace.Span
	*hellotrace.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := hellotrace.NewCollector(name, bufferSize)
	collector.SetSyncMode(true)
	return &MockCollector{
		Collector: collector,
		t:         t,
	}
}

// NewTracer returns a tracer reporting into a fresh MockCollector. The
// tracer is closed when the test ends.
func NewTracer(t *testing.T, service string, opts ...hellotrace.Option) (*hellotrace.Tracer, *MockCollector) {
	t.Helper()
	collector := NewMockCollector(t, service, 1000)
	opts = append([]hellotrace.Option{hellotrace.WithReporter(collector)}, opts...)
	tracer := hellotrace.New(service, opts...)
	t.Cleanup(func() { _ = tracer.Close(context.Background()) })
	return tracer, collector
}

// Export returns collected spans and clears the buffer.
func (m *MockCollector) Export() []hellotrace.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	spans := m.Collector.Export()
	m.exported = append(m.exported, spans...)
	return spans
}

// GetAll returns every span exported so far, including ones already
// returned by Export.
func (m *MockCollector) GetAll() []hellotrace.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.Collector.Export(); len(current) > 0 {
		m.exported = append(m.exported, current...)
	}
	all := make([]hellotrace.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits until at least expected spans have been collected.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []hellotrace.Span {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if spans := m.GetAll(); len(spans) >= expected {
			return spans
		}
		<-ticker.C
	}

	spans := m.GetAll()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanCount verifies exact span count.
func (m *MockCollector) AssertSpanCount(expected int) {
	if spans := m.GetAll(); len(spans) != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, len(spans))
	}
}

// AssertSpanNamed checks if a span with given name exists.
func (m *MockCollector) AssertSpanNamed(name string) *hellotrace.Span {
	spans := m.GetAll()
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies parent-child relationship.
func (m *MockCollector) AssertParentChild(parentName, childName string) {
	spans := m.GetAll()
	var parent, child *hellotrace.Span
	for i := range spans {
		if spans[i].Name == parentName {
			parent = &spans[i]
		}
		if spans[i].Name == childName {
			child = &spans[i]
		}
	}

	if parent == nil {
		m.t.Errorf("Parent span '%s' not found", parentName)
		return
	}
	if child == nil {
		m.t.Errorf("Child span '%s' not found", childName)
		return
	}
	if child.ParentID != parent.SpanID {
		m.t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentID=%s, Parent SpanID=%s",
			parentName, childName, child.ParentID, parent.SpanID)
	}
	if child.TraceID != parent.TraceID {
		m.t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID, child.TraceID)
	}
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     hellotrace.Span
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from flat span list. Spans whose parent
// is not in the list (a remote parent, say) become roots.
func BuildSpanTree(spans []hellotrace.Span) []*SpanTree {
	nodeMap := make(map[hellotrace.SpanID]*SpanTree, len(spans))
	for i := range spans {
		nodeMap[spans[i].SpanID] = &SpanTree{Span: spans[i]}
	}

	var roots []*SpanTree
	for i := range spans {
		node := nodeMap[spans[i].SpanID]
		parent, exists := nodeMap[spans[i].ParentID]
		if spans[i].IsRoot() || !exists {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	return roots
}

// PrintSpanTree formats span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s [%s] (%.2fms)\n",
		indent, node.Span.Name, node.Span.Service, node.Span.Duration.Seconds()*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// TestScenario represents a reusable test case.
type TestScenario struct {
	Setup   func(*testing.T) (*hellotrace.Tracer, *MockCollector)
	Execute func(context.Context, *hellotrace.Tracer)
	Verify  func(*testing.T, []hellotrace.Span)
	Name    string
}

// Run executes the test scenario.
func (s *TestScenario) Run(t *testing.T) {
	t.Run(s.Name, func(t *testing.T) {
		var tracer *hellotrace.Tracer
		var collector *MockCollector
		if s.Setup != nil {
			tracer, collector = s.Setup(t)
		}
		if tracer == nil || collector == nil {
			tracer, collector = NewTracer(t, "test-service")
		}

		s.Execute(context.Background(), tracer)
		if err := tracer.Close(context.Background()); err != nil {
			t.Fatalf("close tracer: %v", err)
		}
		s.Verify(t, collector.GetAll())
	})
}

// TracedService is an in-process HTTP service whose requests are traced
// by its own tracer, the way a separate process would trace them.
type TracedService struct {
	*httptest.Server
	Tracer    *hellotrace.Tracer
	Collector *MockCollector
}

// NewTracedService starts handler behind the tracing middleware, naming
// server spans after operation.
func NewTracedService(t *testing.T, service, operation string, handler http.Handler) *TracedService {
	t.Helper()
	tracer, collector := NewTracer(t, service)
	mw := nethttp.Middleware(tracer, func(*http.Request) string { return operation })
	server := httptest.NewServer(mw(handler))
	t.Cleanup(server.Close)
	return &TracedService{Server: server, Tracer: tracer, Collector: collector}
}

// SpanMatcher provides fluent assertions for spans.
type SpanMatcher struct {
	t    *testing.T
	span *hellotrace.Span
}

// NewSpanMatcher creates a matcher for span assertions.
func NewSpanMatcher(t *testing.T, span *hellotrace.Span) *SpanMatcher {
	return &SpanMatcher{t: t, span: span}
}

// HasTag verifies tag exists and renders as value.
func (m *SpanMatcher) HasTag(key hellotrace.Tag, value string) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if actual, exists := m.span.Tags[key]; !exists {
		m.t.Errorf("Span %s missing tag '%s'", m.span.Name, key)
	} else if actual.String() != value {
		m.t.Errorf("Span %s tag '%s': expected '%s', got '%s'",
			m.span.Name, key, value, actual)
	}
	return m
}

// HasBaggage verifies a baggage item was carried by the span.
func (m *SpanMatcher) HasBaggage(key, value string) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if actual := m.span.Baggage[key]; actual != value {
		m.t.Errorf("Span %s baggage '%s': expected '%s', got '%s'",
			m.span.Name, key, value, actual)
	}
	return m
}

// HasParent verifies parent relationship.
func (m *SpanMatcher) HasParent(parentID hellotrace.SpanID) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.ParentID != parentID {
		m.t.Errorf("Span %s wrong parent: expected %s, got %s",
			m.span.Name, parentID, m.span.ParentID)
	}
	return m
}

// InTrace verifies the span belongs to traceID.
func (m *SpanMatcher) InTrace(traceID hellotrace.TraceID) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.TraceID != traceID {
		m.t.Errorf("Span %s wrong trace: expected %s, got %s",
			m.span.Name, traceID, m.span.TraceID)
	}
	return m
}

// DurationBetween verifies duration is in range.
func (m *SpanMatcher) DurationBetween(minDur, maxDur time.Duration) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.Duration < minDur || m.span.Duration > maxDur {
		m.t.Errorf("Span %s duration %v not in range [%v, %v]",
			m.span.Name, m.span.Duration, minDur, maxDur)
	}
	return m
}

// TraceAnalyzer provides trace-level assertions.
type TraceAnalyzer struct {
	byID   map[hellotrace.SpanID]hellotrace.Span
	byName map[string][]hellotrace.Span
	spans  []hellotrace.Span
	trees  []*SpanTree
}

// NewTraceAnalyzer creates an analyzer for a set of spans.
func NewTraceAnalyzer(spans []hellotrace.Span) *TraceAnalyzer {
	a := &TraceAnalyzer{
		spans:  spans,
		byID:   make(map[hellotrace.SpanID]hellotrace.Span, len(spans)),
		byName: make(map[string][]hellotrace.Span),
	}
	for i := range spans {
		a.byID[spans[i].SpanID] = spans[i]
		a.byName[spans[i].Name] = append(a.byName[spans[i].Name], spans[i])
	}
	a.trees = BuildSpanTree(spans)
	return a
}

// GetSpan retrieves span by ID.
func (a *TraceAnalyzer) GetSpan(spanID hellotrace.SpanID) (hellotrace.Span, bool) {
	span, exists := a.byID[spanID]
	return span, exists
}

// GetSpansByName retrieves all spans with given name.
func (a *TraceAnalyzer) GetSpansByName(name string) []hellotrace.Span {
	return a.byName[name]
}

// CountSpans returns total span count.
func (a *TraceAnalyzer) CountSpans() int {
	return len(a.spans)
}

// CountTrees returns number of root spans.
func (a *TraceAnalyzer) CountTrees() int {
	return len(a.trees)
}

// CountTraces returns the number of distinct trace IDs.
func (a *TraceAnalyzer) CountTraces() int {
	seen := make(map[hellotrace.TraceID]struct{})
	for i := range a.spans {
		seen[a.spans[i].TraceID] = struct{}{}
	}
	return len(seen)
}

// VerifyChain checks if spans form a valid parent-child chain.
func (a *TraceAnalyzer) VerifyChain(names ...string) error {
	if len(names) < 2 {
		return fmt.Errorf("chain requires at least 2 spans")
	}

	var prev *hellotrace.Span
	for i, name := range names {
		spans := a.GetSpansByName(name)
		if len(spans) == 0 {
			return fmt.Errorf("span '%s' not found", name)
		}
		span := spans[0]
		if prev != nil && span.ParentID != prev.SpanID {
			return fmt.Errorf("broken chain: %s is not child of %s", name, names[i-1])
		}
		if prev != nil && span.TraceID != prev.TraceID {
			return fmt.Errorf("broken chain: %s left trace %s", name, prev.TraceID)
		}
		prev = &span
	}
	return nil
}

// GetCriticalPath returns the longest duration path through the trace.
func (a *TraceAnalyzer) GetCriticalPath() []hellotrace.Span {
	var longest []hellotrace.Span
	var longestDur time.Duration
	for _, root := range a.trees {
		path, dur := criticalPath(root)
		if dur > longestDur || longest == nil {
			longest, longestDur = path, dur
		}
	}
	return longest
}

func criticalPath(node *SpanTree) ([]hellotrace.Span, time.Duration) {
	var best []hellotrace.Span
	var bestDur time.Duration
	for _, child := range node.Children {
		path, dur := criticalPath(child)
		if dur > bestDur || best == nil {
			best, bestDur = path, dur
		}
	}
	return append([]hellotrace.Span{node.Span}, best...), node.Span.Duration + bestDur
}
