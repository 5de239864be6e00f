package hellotrace

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Format names a carrier encoding registered on a Tracer.
type Format string

// Built-in formats.
const (
	// HTTPHeaders encodes into HTTP headers. Baggage values are URL-escaped
	// and baggage keys are lowercased on extract.
	HTTPHeaders Format = "http_headers"
	// TextMap encodes into an arbitrary string map.
	TextMap Format = "text_map"
)

// Default carrier keys.
const (
	DefaultTraceHeader   = "trace-context"
	DefaultBaggagePrefix = "baggage-"
)

// TextMapWriter is the write side of a carrier.
type TextMapWriter interface {
	Set(key, val string)
}

// TextMapReader is the read side of a carrier. ForeachKey stops at the
// first error returned by handler and returns it.
type TextMapReader interface {
	ForeachKey(handler func(key, val string) error) error
}

// TextMapCarrier is a plain map carrier.
type TextMapCarrier map[string]string

// Set sets key to val.
func (c TextMapCarrier) Set(key, val string) {
	c[key] = val
}

// ForeachKey iterates the map.
func (c TextMapCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, v := range c {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}

// HTTPHeadersCarrier adapts http.Header to the carrier interfaces.
type HTTPHeadersCarrier http.Header

// Set sets the header, replacing existing values.
func (c HTTPHeadersCarrier) Set(key, val string) {
	http.Header(c).Set(key, val)
}

// ForeachKey iterates headers, passing the first value of each.
func (c HTTPHeadersCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, vals := range c {
		if len(vals) == 0 {
			continue
		}
		if err := handler(k, vals[0]); err != nil {
			return err
		}
	}
	return nil
}

// Codec moves a SpanContext in and out of a carrier.
type Codec interface {
	Inject(sc SpanContext, carrier interface{}) error
	// Extract returns ok=false with a nil error when the carrier holds no
	// span context. That is the normal case for a root request.
	Extract(carrier interface{}) (sc SpanContext, ok bool, err error)
}

// HeaderCodec writes the span identity under one trace header as
// traceId:spanId:parentSpanId:flags and each baggage item under its own
// prefixed key. With an empty BaggagePrefix baggage is neither written
// nor read.
type HeaderCodec struct {
	TraceHeader   string
	BaggagePrefix string
	// HTTPHeaders URL-escapes baggage values and lowercases baggage keys,
	// since header names are case-insensitive.
	HTTPHeaders bool
}

// NewHeaderCodec creates a HeaderCodec with the default keys.
func NewHeaderCodec(httpHeaders bool) *HeaderCodec {
	return &HeaderCodec{
		TraceHeader:   DefaultTraceHeader,
		BaggagePrefix: DefaultBaggagePrefix,
		HTTPHeaders:   httpHeaders,
	}
}

const flagSampled = 0x1

// Inject implements Codec.
func (c *HeaderCodec) Inject(sc SpanContext, carrier interface{}) error {
	writer, ok := carrier.(TextMapWriter)
	if !ok {
		return fmt.Errorf("%w: %T is not a TextMapWriter", ErrInvalidCarrier, carrier)
	}
	if !sc.IsValid() {
		return ErrInvalidSpanContext
	}

	writer.Set(c.TraceHeader, encodeSpanContext(sc))
	if c.BaggagePrefix == "" {
		return nil
	}
	sc.ForeachBaggageItem(func(k, v string) bool {
		if c.HTTPHeaders {
			v = url.QueryEscape(v)
		}
		writer.Set(c.BaggagePrefix+k, v)
		return true
	})
	return nil
}

// Extract implements Codec.
func (c *HeaderCodec) Extract(carrier interface{}) (SpanContext, bool, error) {
	reader, ok := carrier.(TextMapReader)
	if !ok {
		return SpanContext{}, false, fmt.Errorf("%w: %T is not a TextMapReader", ErrInvalidCarrier, carrier)
	}

	traceHeader := strings.ToLower(c.TraceHeader)
	prefix := strings.ToLower(c.BaggagePrefix)

	var (
		sc      SpanContext
		found   bool
		baggage map[string]string
	)
	err := reader.ForeachKey(func(key, val string) error {
		lower := strings.ToLower(key)
		switch {
		case lower == traceHeader:
			parsed, err := decodeSpanContext(val)
			if err != nil {
				return err
			}
			sc = parsed
			found = true
		case prefix != "" && strings.HasPrefix(lower, prefix):
			name := key[len(prefix):]
			if c.HTTPHeaders {
				name = strings.ToLower(name)
				unescaped, err := url.QueryUnescape(val)
				if err != nil {
					return fmt.Errorf("%w: baggage %q: %v", ErrMalformedContext, name, err)
				}
				val = unescaped
			}
			if baggage == nil {
				baggage = make(map[string]string)
			}
			baggage[name] = val
		}
		return nil
	})
	if err != nil {
		return SpanContext{}, false, err
	}
	if !found {
		return SpanContext{}, false, nil
	}
	sc.baggage = baggage
	return sc, true, nil
}

func encodeSpanContext(sc SpanContext) string {
	var flags uint8
	if sc.sampled {
		flags |= flagSampled
	}
	parent := "0"
	if sc.parentID.IsValid() {
		parent = sc.parentID.String()
	}
	return sc.traceID.String() + ":" + sc.spanID.String() + ":" + parent + ":" + strconv.FormatUint(uint64(flags), 16)
}

func decodeSpanContext(value string) (SpanContext, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return SpanContext{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedContext, len(parts))
	}

	traceID, err := TraceIDFromHex(parts[0])
	if err != nil || !traceID.IsValid() {
		return SpanContext{}, fmt.Errorf("%w: trace id %q", ErrMalformedContext, parts[0])
	}
	spanID, err := SpanIDFromHex(parts[1])
	if err != nil || !spanID.IsValid() {
		return SpanContext{}, fmt.Errorf("%w: span id %q", ErrMalformedContext, parts[1])
	}
	parentID, err := SpanIDFromHex(parts[2])
	if err != nil {
		return SpanContext{}, fmt.Errorf("%w: parent id %q", ErrMalformedContext, parts[2])
	}
	flags, err := strconv.ParseUint(parts[3], 16, 8)
	if err != nil {
		return SpanContext{}, fmt.Errorf("%w: flags %q", ErrMalformedContext, parts[3])
	}

	return SpanContext{
		traceID:  traceID,
		spanID:   spanID,
		parentID: parentID,
		sampled:  flags&flagSampled != 0,
	}, nil
}
