package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for broadcast delivery.
type Metrics struct {
	MessagesTotal    *prometheus.CounterVec // labelled by outcome: sent|failed|blocked
	BatchesTotal     prometheus.Counter
	DispatchRuns     *prometheus.CounterVec // labelled by result: completed|failed|interrupted|skipped
	ActiveDispatches prometheus.Gauge

	registry *prometheus.Registry
}

// New registers all broadcast metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_messages_total",
				Help: "Delivery attempts by outcome",
			},
			[]string{"outcome"},
		),
		BatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "broadcast_batches_total",
				Help: "Dispatch batches processed",
			},
		),
		DispatchRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_dispatch_runs_total",
				Help: "Dispatcher runs by result",
			},
			[]string{"result"},
		),
		ActiveDispatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcast_active_dispatches",
				Help: "Dispatch runs currently holding a lease",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.MessagesTotal, m.BatchesTotal, m.DispatchRuns, m.ActiveDispatches)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBatch records one batch's classified outcomes.
func (m *Metrics) ObserveBatch(sent, failed, blocked int) {
	m.MessagesTotal.WithLabelValues("sent").Add(float64(sent))
	m.MessagesTotal.WithLabelValues("failed").Add(float64(failed))
	m.MessagesTotal.WithLabelValues("blocked").Add(float64(blocked))
	m.BatchesTotal.Inc()
}
