package observe

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes recorded by Metrics.TurnFinished.
const (
	TurnOK              = "ok"
	TurnGenerationError = "generation_error"
	TurnDurabilityError = "durability_error"
)

// Metrics holds the memory subsystem's Prometheus collectors on a private
// registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	turns              *prometheus.CounterVec
	summarizerFallback prometheus.Counter
	indexInserts       prometheus.Counter
	indexRepairs       prometheus.Counter
	generation         prometheus.Histogram
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mnemo_turns_total",
			Help: "Conversation turns handled, by outcome.",
		}, []string{"status"}),
		summarizerFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mnemo_summarizer_fallbacks_total",
			Help: "Summaries replaced by the deterministic fallback after a provider failure.",
		}),
		indexInserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mnemo_index_inserts_total",
			Help: "Summaries committed to a session vector index.",
		}),
		indexRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mnemo_index_repairs_total",
			Help: "Session indices truncated on load because vectors and texts disagreed.",
		}),
		generation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mnemo_generation_seconds",
			Help:    "Latency of reply generation calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	m.registry.MustRegister(m.turns, m.summarizerFallback, m.indexInserts, m.indexRepairs, m.generation)
	return m
}

func (m *Metrics) TurnFinished(status string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(status).Inc()
}

func (m *Metrics) SummarizerFallback() {
	if m == nil {
		return
	}
	m.summarizerFallback.Inc()
}

func (m *Metrics) IndexInsert() {
	if m == nil {
		return
	}
	m.indexInserts.Inc()
}

func (m *Metrics) IndexRepair() {
	if m == nil {
		return
	}
	m.indexRepairs.Inc()
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.generation.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Total sums every sample of the named counter family, across labels.
// Unknown names and a nil receiver report 0.
func (m *Metrics) Total(name string) float64 {
	if m == nil {
		return 0
	}
	families, err := m.registry.Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
