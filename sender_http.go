package hellotrace

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Process describes the service that produced a batch of spans.
type Process struct {
	Tags        map[string]string `json:"tags,omitempty"`
	ServiceName string            `json:"service_name"`
}

// Batch is the JSON document posted by HTTPSender.
type Batch struct {
	Process Process `json:"process"`
	Spans   []Span  `json:"spans"`
}

// HTTPSenderOption configures an HTTPSender.
type HTTPSenderOption func(*HTTPSender)

// WithHTTPClient sends through hc instead of a default client.
func WithHTTPClient(hc *http.Client) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.client = resty.NewWithClient(hc)
	}
}

// WithHTTPHeaders adds headers to every request, e.g. authorization.
func WithHTTPHeaders(headers map[string]string) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.headers = headers
	}
}

// WithProcess sets the process block of every batch. Its fields take
// precedence over those the tracer passes through SetProcess.
func WithProcess(p Process) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.process = p
	}
}

// HTTPSender posts span batches as JSON to a collector endpoint.
type HTTPSender struct {
	client   *resty.Client
	headers  map[string]string
	endpoint string
	process  Process
	mu       sync.RWMutex
}

// NewHTTPSender creates a sender posting to endpoint.
func NewHTTPSender(endpoint string, opts ...HTTPSenderOption) *HTTPSender {
	s := &HTTPSender{
		endpoint: endpoint,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = resty.New().SetTimeout(10 * time.Second)
	}
	return s
}

// SetProcess fills in the service name and tags not already set with
// WithProcess.
func (s *HTTPSender) SetProcess(p Process) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.process.ServiceName == "" {
		s.process.ServiceName = p.ServiceName
	}
	if len(p.Tags) == 0 {
		return
	}
	tags := make(map[string]string, len(p.Tags)+len(s.process.Tags))
	for k, v := range p.Tags {
		tags[k] = v
	}
	for k, v := range s.process.Tags {
		tags[k] = v
	}
	s.process.Tags = tags
}

// Send posts spans in one request. Non-2xx responses are errors.
func (s *HTTPSender) Send(ctx context.Context, spans []Span) error {
	s.mu.RLock()
	process := s.process
	s.mu.RUnlock()

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeaders(s.headers).
		SetHeader("Content-Type", "application/json").
		SetBody(Batch{Process: process, Spans: spans}).
		Post(s.endpoint)
	if err != nil {
		return fmt.Errorf("post spans to %s: %w", s.endpoint, err)
	}
	if resp.IsError() {
		return fmt.Errorf("post spans to %s: collector returned %s", s.endpoint, resp.Status())
	}
	return nil
}

// Close releases idle connections.
func (s *HTTPSender) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}
