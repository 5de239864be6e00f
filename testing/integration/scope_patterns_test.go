package integration

import (
	"context"
	"testing"

	"github.com/zoobzio/hellotrace"
)

// TestActiveScopeChain builds a trace through code that never passes a
// context, only the scope manager.
func TestActiveScopeChain(t *testing.T) {
	scopes := hellotrace.NewStackScopeManager()
	tracer, collector := NewTracer(t, "scoped-service", hellotrace.WithScopeManager(scopes))

	load := func() {
		_, scope := tracer.StartActive(context.Background(), "load", true)
		defer scope.Close()
		_, parse := tracer.StartSpan(context.Background(), "parse")
		parse.Finish()
	}

	_, outer := tracer.StartActive(context.Background(), "job", true)
	load()
	if tracer.ActiveSpan() != outer.Span() {
		t.Error("closing the inner scope should restore the job span")
	}
	outer.Close()

	if scopes.Depth() != 0 {
		t.Errorf("expected no open scopes, got %d", scopes.Depth())
	}

	analyzer := NewTraceAnalyzer(collector.GetAll())
	if err := analyzer.VerifyChain("job", "load", "parse"); err != nil {
		t.Errorf("%v\n%s", err, PrintSpanTree(BuildSpanTree(collector.GetAll())))
	}
}

// TestScopesClosedOutOfOrder closes an outer scope before its inner one.
func TestScopesClosedOutOfOrder(t *testing.T) {
	scopes := hellotrace.NewStackScopeManager()
	tracer, collector := NewTracer(t, "scoped-service", hellotrace.WithScopeManager(scopes))

	_, base := tracer.StartActive(context.Background(), "base", false)
	_, outer := tracer.StartActive(context.Background(), "outer", true)
	_, inner := tracer.StartActive(context.Background(), "inner", true)

	outer.Close()
	if tracer.ActiveSpan() != inner.Span() {
		t.Error("inner should stay active while it is open")
	}
	inner.Close()
	if tracer.ActiveSpan() != base.Span() {
		t.Error("closing both should restore the base span")
	}
	base.Close()
	base.Span().Finish()

	collector.AssertParentChild("base", "outer")
	collector.AssertParentChild("outer", "inner")
}

// TestContextSpanWinsOverActiveScope checks parent resolution order when
// both a context span and an active scope are present.
func TestContextSpanWinsOverActiveScope(t *testing.T) {
	scopes := hellotrace.NewStackScopeManager()
	tracer, collector := NewTracer(t, "scoped-service", hellotrace.WithScopeManager(scopes))

	_, active := tracer.StartActive(context.Background(), "active", true)
	ctx, explicit := tracer.StartSpan(context.Background(), "explicit", hellotrace.IgnoreActive())

	_, fromCtx := tracer.StartSpan(ctx, "from-context")
	fromCtx.Finish()
	_, fromScope := tracer.StartSpan(context.Background(), "from-scope")
	fromScope.Finish()
	_, detached := tracer.StartSpan(ctx, "detached", hellotrace.IgnoreActive())
	detached.Finish()
	_, adopted := tracer.StartSpan(ctx, "adopted", hellotrace.ChildOf(active.Span().Context()))
	adopted.Finish()

	explicit.Finish()
	active.Close()

	collector.AssertParentChild("explicit", "from-context")
	collector.AssertParentChild("active", "from-scope")
	collector.AssertParentChild("active", "adopted")
	if span := collector.AssertSpanNamed("detached"); span != nil && !span.IsRoot() {
		t.Error("IgnoreActive should start a new trace")
	}
	if span := collector.AssertSpanNamed("explicit"); span != nil && !span.IsRoot() {
		t.Error("explicit was started with IgnoreActive and should be a root")
	}
}
