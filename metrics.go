package hellotrace

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts tracer activity. A nil *Metrics records nothing.
type Metrics struct {
	SpansStarted   *prometheus.CounterVec
	SpansFinished  prometheus.Counter
	SpansReported  prometheus.Counter
	SpansDropped   prometheus.Counter
	BaggageUpdates prometheus.Counter
	Extractions    *prometheus.CounterVec
}

// NewMetrics creates the tracer counters and registers them with reg.
// A nil reg leaves them unregistered. Calling it again with the same reg
// returns the counters registered first.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SpansStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hellotrace_spans_started_total",
				Help: "Spans started, by sampling decision.",
			},
			[]string{"sampled"},
		),
		SpansFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hellotrace_spans_finished_total",
			Help: "Spans finished.",
		}),
		SpansReported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hellotrace_spans_reported_total",
			Help: "Finished sampled spans handed to the reporter, delivered or not. Subtract hellotrace_spans_dropped_total for deliveries.",
		}),
		SpansDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hellotrace_spans_dropped_total",
			Help: "Spans the reporter never delivered (full queue, failed send or close timeout).",
		}),
		BaggageUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hellotrace_baggage_updates_total",
			Help: "SetBaggageItem calls.",
		}),
		Extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hellotrace_extract_total",
				Help: "Extract calls, by result (found, absent, error).",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		m.SpansStarted = register(reg, m.SpansStarted)
		m.SpansFinished = register(reg, m.SpansFinished)
		m.SpansReported = register(reg, m.SpansReported)
		m.SpansDropped = register(reg, m.SpansDropped)
		m.BaggageUpdates = register(reg, m.BaggageUpdates)
		m.Extractions = register(reg, m.Extractions)
	}
	return m
}

// register adds c to reg, or returns the collector already registered
// under the same name so several tracers in one process share counters.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	panic(err)
}

func (m *Metrics) spanStarted(sampled bool) {
	if m == nil {
		return
	}
	m.SpansStarted.WithLabelValues(strconv.FormatBool(sampled)).Inc()
}

func (m *Metrics) spanFinished() {
	if m == nil {
		return
	}
	m.SpansFinished.Inc()
}

func (m *Metrics) spanReported() {
	if m == nil {
		return
	}
	m.SpansReported.Inc()
}

func (m *Metrics) spansDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SpansDropped.Add(float64(n))
}

func (m *Metrics) baggageUpdated() {
	if m == nil {
		return
	}
	m.BaggageUpdates.Inc()
}

func (m *Metrics) extracted(result string) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(result).Inc()
}
