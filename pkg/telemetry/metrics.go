package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recall"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	turns        prometheus.Counter
	drafts       *prometheus.CounterVec
	degradations *prometheus.CounterVec
	prepare      prometheus.Histogram
	swept        prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// uses a fresh private registry, which Handler then serves.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		gatherer: gatherer,
		turns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_recorded_total",
			Help:      "Turns appended to the transcript.",
		}),
		drafts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_total",
			Help:      "Memory drafts by outcome.",
		}, []string{"outcome"}),
		degradations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degradations_total",
			Help:      "Optional steps that fell back, by step.",
		}, []string{"step"}),
		prepare: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prepare_context_seconds",
			Help:      "Latency of context preparation.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_items_total",
			Help:      "Expired memory items deleted by sweeps.",
		}),
	}

	for _, c := range []prometheus.Collector{m.turns, m.drafts, m.degradations, m.prepare, m.swept} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Draft outcomes.
const (
	OutcomeAdmitted   = "admitted"
	OutcomeSuppressed = "suppressed"
	OutcomeDropped    = "dropped"
)

// TurnRecorded counts one appended turn.
func (m *Metrics) TurnRecorded() {
	if m == nil {
		return
	}
	m.turns.Inc()
}

// Drafts counts n drafts with an outcome.
func (m *Metrics) Drafts(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.drafts.WithLabelValues(outcome).Add(float64(n))
}

// Degraded counts one fallback of an optional step.
func (m *Metrics) Degraded(step string) {
	if m == nil {
		return
	}
	m.degradations.WithLabelValues(step).Inc()
}

// ObservePrepare records the latency of one context preparation.
func (m *Metrics) ObservePrepare(d time.Duration) {
	if m == nil {
		return
	}
	m.prepare.Observe(d.Seconds())
}

// Swept counts deleted expired items.
func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
