// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics holds the service's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal          *prometheus.CounterVec
	eventDuration        prometheus.Histogram
	citationsIssued      prometheus.Counter
	duplicateEvents      prometheus.Counter
	penaltyIssued        prometheus.Counter
	reviewsQueued        prometheus.Counter
	notificationAttempts *prometheus.CounterVec
	ingestQueueDepth     prometheus.Gauge
	feedClients          prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "echallan_events_total",
			Help: "Detection events processed, by outcome",
		}, []string{"outcome"}),
		eventDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "echallan_event_duration_seconds",
			Help:    "Time to process one detection event",
			Buckets: prometheus.DefBuckets,
		}),
		citationsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "echallan_citations_issued_total",
			Help: "Challans created",
		}),
		duplicateEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "echallan_duplicate_events_total",
			Help: "Events resubmitted after a challan was already issued",
		}),
		penaltyIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "echallan_penalty_issued_inr_total",
			Help: "Sum of penalties on created challans, in INR",
		}),
		reviewsQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "echallan_manual_reviews_total",
			Help: "Events queued for manual review",
		}),
		notificationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "echallan_notification_attempts_total",
			Help: "Owner notification attempts, by channel and status",
		}, []string{"channel", "status"}),
		ingestQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "echallan_ingest_queue_depth",
			Help: "Detection messages waiting for a worker",
		}),
		feedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "echallan_feed_clients",
			Help: "Connected challan feed websocket clients",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveEvent(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(outcome).Inc()
	m.eventDuration.Observe(took.Seconds())
}

func (m *Metrics) CitationIssued(total decimal.Decimal) {
	if m == nil {
		return
	}
	m.citationsIssued.Inc()
	m.penaltyIssued.Add(total.InexactFloat64())
}

func (m *Metrics) DuplicateEvent() {
	if m == nil {
		return
	}
	m.duplicateEvents.Inc()
}

func (m *Metrics) ReviewQueued() {
	if m == nil {
		return
	}
	m.reviewsQueued.Inc()
}

func (m *Metrics) NotificationAttempt(channel, status string) {
	if m == nil {
		return
	}
	m.notificationAttempts.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) SetIngestQueueDepth(n int) {
	if m == nil {
		return
	}
	m.ingestQueueDepth.Set(float64(n))
}

func (m *Metrics) SetFeedClients(n int) {
	if m == nil {
		return
	}
	m.feedClients.Set(float64(n))
}
