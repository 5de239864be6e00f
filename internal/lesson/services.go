// Package lesson is the traced greeting program: a client that formats
// and prints a greeting, and the formatter and publisher services it can
// delegate to.
package lesson

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/nethttp"
)

const (
	// GreetingBaggageKey is the baggage item that overrides DefaultGreeting.
	GreetingBaggageKey = "greeting"
	DefaultGreeting    = "Hello"
)

// FormatGreeting returns "<greeting>, <helloTo>!".
func FormatGreeting(greeting, helloTo string) string {
	if greeting == "" {
		greeting = DefaultGreeting
	}
	return fmt.Sprintf("%s, %s!", greeting, helloTo)
}

// NewFormatter serves GET /format?helloTo=name. The greeting comes from
// the caller's baggage.
func NewFormatter(tracer *hellotrace.Tracer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/format", func(w http.ResponseWriter, r *http.Request) {
		span := hellotrace.SpanFromContext(r.Context())

		helloTo := r.FormValue("helloTo")
		if helloTo == "" {
			span.LogKV("event", "error", "message", "missing helloTo")
			http.Error(w, "helloTo is required", http.StatusBadRequest)
			return
		}

		helloStr := FormatGreeting(span.BaggageItem(GreetingBaggageKey), helloTo)
		span.LogKV("event", "string-format", "value", helloStr)
		_, _ = io.WriteString(w, helloStr)
	})
	return nethttp.Middleware(tracer, operationName("format"))(mux)
}

// NewPublisher serves GET /publish?helloStr=text and prints text to out.
func NewPublisher(tracer *hellotrace.Tracer, out io.Writer) http.Handler {
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("/publish", func(w http.ResponseWriter, r *http.Request) {
		span := hellotrace.SpanFromContext(r.Context())

		helloStr := r.FormValue("helloStr")
		mu.Lock()
		_, err := fmt.Fprintln(out, helloStr)
		mu.Unlock()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		span.LogKV("event", "println", "value", helloStr)
		w.WriteHeader(http.StatusOK)
	})
	return nethttp.Middleware(tracer, operationName("publish"))(mux)
}

func operationName(name string) nethttp.OperationNameFunc {
	return func(*http.Request) string { return name }
}

// ListenAndServe serves h on addr until ctx is done, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger logr.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", addr, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	logger.Info("stopped", "addr", addr)
	return nil
}
