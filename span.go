package hellotrace

import (
	"fmt"
	"sync"
	"time"
)

// Span is the record of a finished unit of work. Reporters receive Span
// values; the record is never modified after Finish.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags      map[Tag]Value     `json:"tags,omitempty"`
	Baggage   map[string]string `json:"baggage,omitempty"`
	Logs      []LogRecord       `json:"logs,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Duration  time.Duration     `json:"duration"`
	TraceID   TraceID           `json:"trace_id"`
	SpanID    SpanID            `json:"span_id"`
	ParentID  SpanID            `json:"parent_id"`
	Name      string            `json:"name"`
	Service   string            `json:"service"`
	Sampled   bool              `json:"sampled"`
}

// IsRoot reports whether the span has no parent.
func (s *Span) IsRoot() bool { return !s.ParentID.IsValid() }

// Clone returns a deep copy of the span.
func (s *Span) Clone() Span {
	out := *s
	if s.Tags != nil {
		out.Tags = make(map[Tag]Value, len(s.Tags))
		for k, v := range s.Tags {
			out.Tags[k] = v
		}
	}
	if s.Baggage != nil {
		out.Baggage = make(map[string]string, len(s.Baggage))
		for k, v := range s.Baggage {
			out.Baggage[k] = v
		}
	}
	if s.Logs != nil {
		out.Logs = make([]LogRecord, len(s.Logs))
		for i, rec := range s.Logs {
			out.Logs[i] = LogRecord{
				Timestamp: rec.Timestamp,
				Fields:    append([]Field(nil), rec.Fields...),
			}
		}
	}
	return out
}

// ActiveSpan is the handle for a span that has not finished yet.
//
// Tag, log and baggage mutation is single-writer: the goroutine that owns
// the span mutates it. Finish may race with itself; exactly one call wins.
type ActiveSpan struct {
	tracer   *Tracer
	ctx      SpanContext
	record   Span
	mu       sync.Mutex
	finished bool
}

// Tracer returns the tracer that created the span.
func (a *ActiveSpan) Tracer() *Tracer {
	return a.tracer
}

// Context returns the span's current SpanContext, including baggage
// set on this span so far.
func (a *ActiveSpan) Context() SpanContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() TraceID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx.traceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() SpanID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx.spanID
}

// ParentID returns the parent span ID, zero for root spans.
func (a *ActiveSpan) ParentID() SpanID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx.parentID
}

// OperationName returns the current operation name.
func (a *ActiveSpan) OperationName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record.Name
}

// SetOperationName renames the span. No-op once finished.
func (a *ActiveSpan) SetOperationName(operation Key) *ActiveSpan {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rejectFinished("SetOperationName") {
		return a
	}
	a.record.Name = operation
	return a
}

// SetTag adds a key-value pair to the span. Values outside the closed
// Value set are stored as strings. No-op if span is already finished.
func (a *ActiveSpan) SetTag(key Tag, value interface{}) *ActiveSpan {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rejectFinished("SetTag") {
		return a
	}
	if a.record.Tags == nil {
		a.record.Tags = make(map[Tag]Value)
	}
	a.record.Tags[key] = ValueOf(value)
	return a
}

// GetTag retrieves a tag value by key.
func (a *ActiveSpan) GetTag(key Tag) (Value, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	value, ok := a.record.Tags[key]
	return value, ok
}

// Log appends a timestamped entry with the given fields.
func (a *ActiveSpan) Log(fields ...Field) {
	if len(fields) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rejectFinished("Log") {
		return
	}
	a.appendLog(a.tracer.clock.Now(), fields)
}

// LogKV logs alternating key/value pairs. A trailing key without a value is dropped.
func (a *ActiveSpan) LogKV(keyValues ...interface{}) {
	if len(keyValues)%2 != 0 {
		a.tracer.logger.V(1).Info("odd number of LogKV arguments, dropping last",
			"operation", a.OperationName(), "count", len(keyValues))
		keyValues = keyValues[:len(keyValues)-1]
	}
	fields := make([]Field, 0, len(keyValues)/2)
	for i := 0; i < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			key = fmt.Sprint(keyValues[i])
		}
		fields = append(fields, F(key, keyValues[i+1]))
	}
	a.Log(fields...)
}

// LogEvent logs a single "event" field.
func (a *ActiveSpan) LogEvent(event string) {
	a.Log(F("event", event))
}

// SetBaggageItem sets a baggage item on this span. Children started
// afterwards inherit it; the parent and earlier children do not see it.
//
// Keys travel as header names in the HTTPHeaders format and come back
// lowercased on Extract, so "User-ID" arrives as "user-id". TextMap
// preserves case. Use lowercase keys when both formats are in play.
func (a *ActiveSpan) SetBaggageItem(key, value string) *ActiveSpan {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rejectFinished("SetBaggageItem") {
		return a
	}
	a.ctx = a.ctx.WithBaggageItem(key, value)
	a.tracer.metrics.baggageUpdated()
	if a.ctx.sampled {
		a.appendLog(a.tracer.clock.Now(), []Field{
			F("event", "baggage"),
			F("key", key),
			F("value", value),
		})
	}
	return a
}

// BaggageItem returns the baggage value for key, or "".
func (a *ActiveSpan) BaggageItem(key string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx.BaggageItem(key)
}

// IsFinished reports whether Finish has been called.
func (a *ActiveSpan) IsFinished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finished
}

// Finish completes the span at the current time and hands it to the
// tracer's reporter. Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	a.FinishWithTime(time.Time{})
}

// FinishWithTime completes the span at finishTime, or now when it is zero.
func (a *ActiveSpan) FinishWithTime(finishTime time.Time) {
	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return
	}
	if finishTime.IsZero() {
		finishTime = a.tracer.clock.Now()
	}
	a.finished = true
	a.record.EndTime = finishTime
	a.record.Duration = finishTime.Sub(a.record.StartTime)
	a.record.Baggage = a.ctx.Baggage()
	record := a.record
	a.mu.Unlock()

	a.tracer.finishSpan(&record)
}

// rejectFinished logs and reports true when the span is finished.
// Caller must hold a.mu.
func (a *ActiveSpan) rejectFinished(op string) bool {
	if !a.finished {
		return false
	}
	a.tracer.logger.V(1).Info("ignoring mutation of finished span",
		"call", op, "operation", a.record.Name, "span_id", a.ctx.spanID.String())
	return true
}

func (a *ActiveSpan) appendLog(ts time.Time, fields []Field) {
	a.record.Logs = append(a.record.Logs, LogRecord{
		Timestamp: ts,
		Fields:    append([]Field(nil), fields...),
	})
}
