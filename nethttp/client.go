package nethttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zoobzio/hellotrace"
)

// ErrUnexpectedStatus is returned by Client.Get for non-200 responses.
var ErrUnexpectedStatus = errors.New("nethttp: unexpected status")

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRestyClient sends requests through rc.
func WithRestyClient(rc *resty.Client) ClientOption {
	return func(c *Client) {
		c.http = rc
	}
}

// WithTimeout bounds each request through its context, whatever order
// it is given in relative to WithRestyClient. A client passed to
// WithRestyClient is left unchanged.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client makes traced HTTP calls.
type Client struct {
	tracer  *hellotrace.Tracer
	http    *resty.Client
	timeout time.Duration
}

// NewClient creates a client that injects span contexts with tracer.
func NewClient(tracer *hellotrace.Tracer, opts ...ClientOption) *Client {
	c := &Client{
		tracer: tracer,
		http:   resty.New().SetTimeout(10 * time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get requests rawURL with query and returns the response body.
//
// The span carried by ctx becomes the client span: it is tagged with the
// request and its context is injected into the request headers. When ctx
// carries no span, one named "HTTP GET" is started and finished around
// the call.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values) (string, error) {
	span := hellotrace.SpanFromContext(ctx)
	if span == nil {
		ctx, span = c.tracer.StartSpan(ctx, "HTTP GET")
		defer span.Finish()
	}

	target := rawURL
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	span.SetTag(hellotrace.SpanKindTagKey, hellotrace.SpanKindClient)
	span.SetTag(hellotrace.ComponentTagKey, ComponentName)
	span.SetTag(hellotrace.HTTPURLTagKey, target)
	span.SetTag(hellotrace.HTTPMethodTagKey, http.MethodGet)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req := c.http.R().SetContext(ctx)
	if err := c.tracer.Inject(span.Context(), hellotrace.HTTPHeaders, hellotrace.HTTPHeadersCarrier(req.Header)); err != nil {
		c.tracer.Logger().V(1).Info("failed to inject span context", "url", target, "error", err.Error())
	}

	resp, err := req.Get(target)
	if err != nil {
		span.SetTag(hellotrace.ErrorTagKey, true)
		span.LogKV("event", "error", "message", err.Error())
		return "", fmt.Errorf("GET %s: %w", target, err)
	}

	span.SetTag(hellotrace.HTTPStatusCodeTagKey, resp.StatusCode())
	if resp.StatusCode() != http.StatusOK {
		span.SetTag(hellotrace.ErrorTagKey, true)
		return "", fmt.Errorf("GET %s: %w: %s", target, ErrUnexpectedStatus, resp.Status())
	}
	return resp.String(), nil
}
