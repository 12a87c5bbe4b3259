package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors of the service.
type Metrics struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec
	ingested        *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	deliveryLatency *prometheus.HistogramVec
	syncCycles      *prometheus.CounterVec
	eventPublishes  *prometheus.CounterVec
}

// NewMetrics registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests received",
		}, []string{"endpoint", "status", "method"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of failed HTTP requests by error code",
		}, []string{"endpoint", "method", "code"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingested_messages_total",
			Help: "Inbound messages by channel type and outcome",
		}, []string{"channel_type", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Delivery attempts by class and outcome",
		}, []string{"class", "outcome"}),
		deliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "delivery_attempt_duration_seconds",
			Help:    "Duration of delivery attempts in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"class"}),
		syncCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_sync_cycles_total",
			Help: "Pull channel sync cycles by outcome",
		}, []string{"provider", "outcome"}),
		eventPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_publish_failures_total",
			Help: "Domain events that failed to reach a sink",
		}, []string{"sink"}),
	}
	m.registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.errorCount,
		m.ingested,
		m.deliveries,
		m.deliveryLatency,
		m.syncCycles,
		m.eventPublishes,
	)
	return m
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, strconv.Itoa(status), method).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}

// RecordIngest counts an inbound message outcome (created, appended, duplicate, failed).
func (m *Metrics) RecordIngest(channelType, outcome string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(channelType, outcome).Inc()
}

// RecordDelivery counts a delivery attempt.
func (m *Metrics) RecordDelivery(class, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(class, outcome).Inc()
	m.deliveryLatency.WithLabelValues(class).Observe(duration.Seconds())
}

// RecordSync counts a channel sync cycle.
func (m *Metrics) RecordSync(provider, outcome string) {
	if m == nil {
		return
	}
	m.syncCycles.WithLabelValues(provider, outcome).Inc()
}

// RecordPublishFailure counts an event that a sink rejected.
func (m *Metrics) RecordPublishFailure(sink string) {
	if m == nil {
		return
	}
	m.eventPublishes.WithLabelValues(sink).Inc()
}
