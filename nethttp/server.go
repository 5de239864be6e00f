// Package nethttp connects hellotrace to net/http servers and resty clients.
//
// Servers wrap handlers with Middleware, which continues the caller's
// trace from the request headers. Clients call through Client, which
// injects the span carried by the request context.
package nethttp

import (
	"context"
	"net/http"

	"github.com/zoobzio/hellotrace"
)

// ComponentName is the value of the component tag on spans from this package.
const ComponentName = "net/http"

// OperationNameFunc names the server span for a request.
type OperationNameFunc func(r *http.Request) string

// MethodAndPath names server spans "GET /format".
func MethodAndPath(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

// StartServerSpan starts a server span for r, continuing the trace found in
// the request headers. A missing or malformed header starts a new trace;
// the tracer logs malformed headers.
func StartServerSpan(tracer *hellotrace.Tracer, r *http.Request, operation string) (context.Context, *hellotrace.ActiveSpan) {
	opts := []hellotrace.StartOption{
		hellotrace.IgnoreActive(),
		hellotrace.WithSpanTag(hellotrace.SpanKindTagKey, hellotrace.SpanKindServer),
		hellotrace.WithSpanTag(hellotrace.ComponentTagKey, ComponentName),
		hellotrace.WithSpanTag(hellotrace.HTTPMethodTagKey, r.Method),
		hellotrace.WithSpanTag(hellotrace.HTTPURLTagKey, r.URL.String()),
	}
	if sc, ok, err := tracer.Extract(hellotrace.HTTPHeaders, hellotrace.HTTPHeadersCarrier(r.Header)); ok && err == nil {
		opts = append(opts, hellotrace.ChildOf(sc))
	}
	return tracer.StartSpan(r.Context(), operation, opts...)
}

// Middleware traces every request with a server span stored in the
// request context. The response status is recorded on the span and 5xx
// responses mark it as an error.
func Middleware(tracer *hellotrace.Tracer, operation OperationNameFunc) func(http.Handler) http.Handler {
	if operation == nil {
		operation = MethodAndPath
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := StartServerSpan(tracer, r, operation(r))
			defer span.Finish()

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			span.SetTag(hellotrace.HTTPStatusCodeTagKey, recorder.statusCode)
			if recorder.statusCode >= http.StatusInternalServerError {
				span.SetTag(hellotrace.ErrorTagKey, true)
			}
		})
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
