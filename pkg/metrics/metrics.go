// Package metrics exposes Prometheus collectors for the HTTP surface, the
// event bus, the alert lifecycle and location ingestion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riderguard"

// Metrics owns its registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// event bus
	busDelivered   *prometheus.CounterVec
	busDropped     *prometheus.CounterVec
	sessionsActive prometheus.Gauge

	// alerts
	alertsCreated    *prometheus.CounterVec
	alertTransitions *prometheus.CounterVec

	// ingestion
	samplesTotal *prometheus.CounterVec

	// rate limiting
	rateLimitTotal *prometheus.CounterVec

	// database
	dbQueryDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		busDelivered: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_messages_delivered_total",
				Help:      "Messages queued to subscribers, by feed",
			},
			[]string{"feed"},
		),
		busDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_messages_dropped_total",
				Help:      "Messages dropped because a subscriber buffer was full, by feed",
			},
			[]string{"feed"},
		),
		sessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_sessions_active",
				Help:      "Open websocket sessions",
			},
		),

		alertsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_created_total",
				Help:      "Alerts raised, by kind",
			},
			[]string{"kind"},
		),
		alertTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alert_transitions_total",
				Help:      "Alert status changes, by target status",
			},
			[]string{"status"},
		),

		samplesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trajectory_samples_total",
				Help:      "Location samples received, by outcome",
			},
			[]string{"result"},
		),

		rateLimitTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limiter decisions, by route and outcome",
			},
			[]string{"route", "decision"},
		),

		dbQueryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database statement duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"operation", "table"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDBQuery records one database statement.
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// OnPublish implements the hub observer. Location topics are folded into a
// single feed label to keep cardinality bounded.
func (m *Metrics) OnPublish(topic string, delivered, dropped int) {
	feed := feedLabel(topic)
	if delivered > 0 {
		m.busDelivered.WithLabelValues(feed).Add(float64(delivered))
	}
	if dropped > 0 {
		m.busDropped.WithLabelValues(feed).Add(float64(dropped))
	}
}

func (m *Metrics) OnSessionOpen()  { m.sessionsActive.Inc() }
func (m *Metrics) OnSessionClose() { m.sessionsActive.Dec() }

// OnAlertEvent counts creations and status changes.
func (m *Metrics) OnAlertEvent(eventType, kind, status string) {
	if eventType == "new_alert" {
		m.alertsCreated.WithLabelValues(kind).Inc()
	}
	m.alertTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) OnSample(result string) {
	m.samplesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) OnAllow(route string) { m.rateLimitTotal.WithLabelValues(route, "allow").Inc() }
func (m *Metrics) OnDeny(route string)  { m.rateLimitTotal.WithLabelValues(route, "deny").Inc() }

func feedLabel(topic string) string {
	switch topic {
	case "alerts", "monitoring":
		return topic
	}
	if len(topic) > len("location_") && topic[:len("location_")] == "location_" {
		return "location"
	}
	return "other"
}
