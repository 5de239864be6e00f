package hellotrace

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Collector is an in-memory Reporter that buffers finished spans until
// they are exported. Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	spans        []Span
	spansCh      chan Span
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:    name,
		spans:   make([]Span, 0, 8), // Start with small capacity.
		spansCh: make(chan Span, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving spans from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining spans before shutdown.
			for {
				select {
				case span := <-c.spansCh:
					c.bufferSpan(span)
				default:
					return
				}
			}
		case span := <-c.spansCh:
			c.bufferSpan(span)
		}
	}
}

// Report buffers a span with backpressure protection. If the internal
// channel is full the span is dropped and the drop counter is incremented.
// In sync mode spans are buffered directly for deterministic testing.
func (c *Collector) Report(span Span) {
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	// Deep copy so later changes to the caller's maps are not observed.
	spanCopy := span.Clone()

	if c.syncMode.Load() {
		c.bufferSpan(spanCopy)
		return
	}

	select {
	case c.spansCh <- spanCopy:
	default:
		// Channel full - drop span to prevent blocking.
		c.droppedCount.Add(1)
	}
}

// Close stops the collector after draining queued spans into the buffer.
// Buffered spans remain available to Export.
func (c *Collector) Close(ctx context.Context) error {
	err := ErrReporterClosed
	c.closeOnce.Do(func() {
		err = nil
		c.closed.Store(true)
		close(c.stopCh)
	})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("collector %s: %w", c.name, ctx.Err())
	}
}

// bufferSpan adds a span to the internal buffer.
func (c *Collector) bufferSpan(span Span) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) >= cap(c.spans) {
		currentCap := cap(c.spans)
		var newCap int
		if currentCap < 1024 {
			// Double capacity for small buffers.
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers to avoid excessive memory usage.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		newSlice := make([]Span, len(c.spans), newCap)
		copy(newSlice, c.spans)
		c.spans = newSlice
	}
	c.spans = append(c.spans, span)
}

// Export returns a copy of all buffered spans and clears the internal buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}

	result := c.copySpans()

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(c.spans) > 256 && len(c.spans) < cap(c.spans)/8 {
		newCap := cap(c.spans) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.spans = make([]Span, 0, newCap)
	} else {
		c.spans = c.spans[:0]
	}

	return result
}

// Spans returns a copy of the buffered spans without clearing them.
func (c *Collector) Spans() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}
	return c.copySpans()
}

func (c *Collector) copySpans() []Span {
	result := make([]Span, len(c.spans))
	for i := range c.spans {
		result[i] = c.spans[i].Clone()
	}
	return result
}

// Count returns the current number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns the total number of spans dropped due to backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// Dropped implements DropCounter.
func (c *Collector) Dropped() int64 {
	return c.DroppedCount()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, spans are collected directly without using the channel.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered spans and resets the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spans = c.spans[:0]
	c.droppedCount.Store(0)
}
