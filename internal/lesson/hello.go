package lesson

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/nethttp"
)

// Hello formats and prints greetings. Each step calls its service when an
// address is set and runs in process otherwise.
type Hello struct {
	tracer       *hellotrace.Tracer
	client       *nethttp.Client
	out          io.Writer
	formatterURL string
	publisherURL string
}

// NewHello creates a greeting client. Empty addresses keep the
// corresponding step local; out receives locally printed greetings.
func NewHello(tracer *hellotrace.Tracer, formatterAddr, publisherAddr string, out io.Writer, opts ...nethttp.ClientOption) *Hello {
	return &Hello{
		tracer:       tracer,
		client:       nethttp.NewClient(tracer, opts...),
		out:          out,
		formatterURL: baseURL(formatterAddr),
		publisherURL: baseURL(publisherAddr),
	}
}

func baseURL(addr string) string {
	if addr == "" || strings.Contains(addr, "://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "http://" + addr
}

// SayHello traces one greeting as a say-hello span with format-string and
// print-hello children. A non-empty greeting travels as baggage and
// replaces "Hello" in the formatter.
func (h *Hello) SayHello(ctx context.Context, helloTo, greeting string) (string, error) {
	ctx, span := h.tracer.StartSpan(ctx, "say-hello")
	defer span.Finish()

	span.SetTag("hello-to", helloTo)
	if greeting != "" {
		span.SetBaggageItem(GreetingBaggageKey, greeting)
	}

	helloStr, err := h.formatString(ctx, helloTo)
	if err != nil {
		span.SetTag(hellotrace.ErrorTagKey, true)
		return "", err
	}
	if err := h.printHello(ctx, helloStr); err != nil {
		span.SetTag(hellotrace.ErrorTagKey, true)
		return "", err
	}
	return helloStr, nil
}

func (h *Hello) formatString(ctx context.Context, helloTo string) (string, error) {
	ctx, span := h.tracer.StartSpan(ctx, "format-string")
	defer span.Finish()

	var helloStr string
	if h.formatterURL == "" {
		helloStr = FormatGreeting(span.BaggageItem(GreetingBaggageKey), helloTo)
	} else {
		var err error
		helloStr, err = h.client.Get(ctx, h.formatterURL+"/format", url.Values{"helloTo": {helloTo}})
		if err != nil {
			return "", fmt.Errorf("format greeting: %w", err)
		}
	}

	span.LogKV("event", "string-format", "value", helloStr)
	return helloStr, nil
}

func (h *Hello) printHello(ctx context.Context, helloStr string) error {
	ctx, span := h.tracer.StartSpan(ctx, "print-hello")
	defer span.Finish()

	if h.publisherURL == "" {
		if _, err := fmt.Fprintln(h.out, helloStr); err != nil {
			return fmt.Errorf("print greeting: %w", err)
		}
	} else if _, err := h.client.Get(ctx, h.publisherURL+"/publish", url.Values{"helloStr": {helloStr}}); err != nil {
		return fmt.Errorf("publish greeting: %w", err)
	}

	span.LogEvent("print-string")
	return nil
}
