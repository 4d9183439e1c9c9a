package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	LedgerMutations *prometheus.CounterVec
	Verifications   *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	EventsPublished *prometheus.CounterVec
	Products        *prometheus.GaugeVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		LedgerMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verisure_ledger_mutations_total",
			Help: "Ledger mutation attempts by operation and outcome.",
		}, []string{"operation", "outcome"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verisure_verifications_total",
			Help: "Product authenticity checks by verdict.",
		}, []string{"verdict"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verisure_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verisure_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verisure_events_published_total",
			Help: "Ledger events delivered to sinks by kind.",
		}, []string{"kind"}),
		Products: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verisure_products",
			Help: "Products on the ledger by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		m.LedgerMutations,
		m.Verifications,
		m.HTTPRequests,
		m.HTTPDuration,
		m.EventsPublished,
		m.Products,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
