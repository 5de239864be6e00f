package hellotrace

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// TraceID identifies a trace. All spans of one trace share it.
type TraceID [16]byte

// SpanID identifies a span within a trace.
type SpanID [8]byte

// String returns the lowercase hex form of the id.
func (t TraceID) String() string { return hex.EncodeToString(t[:]) }

// IsValid reports whether the id is non-zero.
func (t TraceID) IsValid() bool { return t != TraceID{} }

// MarshalText encodes the id as hex.
func (t TraceID) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// String returns the lowercase hex form of the id.
func (s SpanID) String() string { return hex.EncodeToString(s[:]) }

// IsValid reports whether the id is non-zero.
func (s SpanID) IsValid() bool { return s != SpanID{} }

// MarshalText encodes the id as hex.
func (s SpanID) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// TraceIDFromHex parses a hex trace id. Ids shorter than 32 digits are
// left-padded with zeros, which accepts 64-bit trace ids from older clients.
func TraceIDFromHex(s string) (TraceID, error) {
	var id TraceID
	if err := decodeHexID(s, id[:]); err != nil {
		return TraceID{}, err
	}
	return id, nil
}

// SpanIDFromHex parses a hex span id, left-padding short values.
func SpanIDFromHex(s string) (SpanID, error) {
	var id SpanID
	if err := decodeHexID(s, id[:]); err != nil {
		return SpanID{}, err
	}
	return id, nil
}

func decodeHexID(s string, dst []byte) error {
	if s == "" || len(s) > 2*len(dst) {
		return fmt.Errorf("invalid id length %d", len(s))
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	copy(dst[len(dst)-len(raw):], raw)
	return nil
}

// IDPool manages a pool of pre-generated IDs to amortize crypto/rand overhead.
type IDPool[T any] struct {
	factory func() T
	ids     chan T
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a new ID pool with the specified capacity.
func NewIDPool[T any](capacity int, factory func() T) *IDPool[T] {
	pool := &IDPool[T]{
		ids:     make(chan T, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get retrieves an ID from the pool or generates one if pool is empty.
func (p *IDPool[T]) Get() T {
	select {
	case id := <-p.ids:
		return id
	default:
		// Pool empty, generate directly (fallback for burst load).
		return p.factory()
	}
}

// refill maintains the pool by generating IDs in background.
func (p *IDPool[T]) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		case p.ids <- p.factory():
		}
	}
}

// Close stops the background refill. Get keeps working afterwards.
func (p *IDPool[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}

func randomTraceID() TraceID {
	var id TraceID
	for !id.IsValid() {
		if _, err := rand.Read(id[:]); err != nil {
			// Fallback to a time-based id if crypto/rand fails.
			binary.BigEndian.PutUint64(id[8:], uint64(time.Now().UnixNano()))
		}
	}
	return id
}

func randomSpanID() SpanID {
	var id SpanID
	for !id.IsValid() {
		if _, err := rand.Read(id[:]); err != nil {
			binary.BigEndian.PutUint64(id[:], uint64(time.Now().UnixNano()))
		}
	}
	return id
}
