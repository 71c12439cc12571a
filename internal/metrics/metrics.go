// Package metrics exposes Prometheus metrics for payment ingestion and the
// outbox workers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	WebhookEvents   *prometheus.CounterVec
	WebhookDuration *prometheus.HistogramVec
	AmountApplied   prometheus.Counter
	EntriesCreated  prometheus.Counter
	OutboxPublished *prometheus.CounterVec

	registry *prometheus.Registry
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leaderboard",
			Name:      "webhook_events_total",
			Help:      "Provider callbacks by handling outcome",
		},
		[]string{"outcome"},
	)

	m.WebhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "leaderboard",
			Name:      "webhook_duration_seconds",
			Help:      "Time to verify, dedup and apply a provider callback",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	m.AmountApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "leaderboard",
		Name:      "amount_applied_total",
		Help:      "Sum of confirmed amounts credited to the ledger, in minor units",
	})

	m.EntriesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "leaderboard",
		Name:      "entries_created_total",
		Help:      "Number of new contributors added to the ledger",
	})

	m.OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leaderboard",
			Name:      "outbox_published_total",
			Help:      "Outbox notifications by sink and result",
		},
		[]string{"sink", "result"},
	)

	m.registry.MustRegister(
		m.WebhookEvents,
		m.WebhookDuration,
		m.AmountApplied,
		m.EntriesCreated,
		m.OutboxPublished,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
