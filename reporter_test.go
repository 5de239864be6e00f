package hellotrace

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr/funcr"
)

func TestLoggingReporter(t *testing.T) {
	var lines []string
	logger := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{})

	reporter := NewLoggingReporter(logger)
	span := testSpan("say-hello")
	span.Service = "hello-world"
	span.ParentID = SpanID{9}
	span.Tags = map[Tag]Value{"hello-to": String("world")}
	reporter.Report(span)

	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(lines))
	}
	for _, want := range []string{`"msg"="Reporting span"`, `"operation"="say-hello"`, `"hello-to"`, `"parent_id"`} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("Expected log line to contain %s, got %s", want, lines[0])
		}
	}
	if err := reporter.Close(context.Background()); err != nil {
		t.Errorf("Expected nil from Close, got %v", err)
	}
}

type failingCloser struct {
	countingReporter
	err error
}

func (f *failingCloser) Close(context.Context) error { return f.err }

func TestCompositeReporter(t *testing.T) {
	first := &countingReporter{}
	collector := NewCollector("second", 10)
	collector.SetSyncMode(true)
	errClose := errors.New("close failed")
	third := &failingCloser{err: errClose}

	reporter := NewCompositeReporter(first, collector, third)
	reporter.Report(testSpan("op"))
	reporter.Report(testSpan("op"))

	if len(first.spans) != 2 || collector.Count() != 2 || len(third.spans) != 2 {
		t.Error("Expected every reporter to receive every span")
	}

	if err := reporter.Close(context.Background()); !errors.Is(err, errClose) {
		t.Errorf("Expected joined close error, got %v", err)
	}

	collector.Report(testSpan("late"))
	if reporter.Dropped() != 1 {
		t.Errorf("Expected drops summed from counting reporters, got %d", reporter.Dropped())
	}
}

func TestNullReporter(t *testing.T) {
	r := NewNullReporter()
	r.Report(testSpan("ignored"))
	if err := r.Close(context.Background()); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}
