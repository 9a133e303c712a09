package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angeloszaimis/relay-balancer/internal/backend"
)

const namespace = "relaybalancer"

// Metrics holds the Prometheus collectors on a private registry so several
// balancers (or test cases) never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	selections    *prometheus.CounterVec
	responses     *prometheus.CounterVec
	responseTimes *prometheus.HistogramVec
	relayErrors   *prometheus.CounterVec
	healthChanges *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Number of times each backend was selected.",
		}, []string{"backend"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Relayed responses by backend and upstream status code.",
		}, []string{"backend", "code"}),
		responseTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_duration_seconds",
			Help:      "Time from upstream dial to the end of the response drain.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		relayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_errors_total",
			Help:      "Relay failures by kind.",
		}, []string{"kind"}),
		healthChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_changes_total",
			Help:      "Backend health transitions by new state.",
		}, []string{"backend", "state"}),
	}

	m.registry.MustRegister(
		m.selections,
		m.responses,
		m.responseTimes,
		m.relayErrors,
		m.healthChanges,
		collectors.NewGoCollector(),
	)

	return m
}

// TrackBackend registers gauges that read the backend's live connection
// count and health flag at scrape time.
func (m *Metrics) TrackBackend(b *backend.Backend) {
	labels := prometheus.Labels{"backend": b.Name()}

	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "active_connections",
			Help:        "Connections currently relayed to the backend.",
			ConstLabels: labels,
		}, func() float64 {
			return float64(b.ActiveConnections())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "backend_healthy",
			Help:        "Backend health status (1 = healthy, 0 = unhealthy).",
			ConstLabels: labels,
		}, func() float64 {
			if b.IsHealthy() {
				return 1
			}
			return 0
		}),
	)
}

func (m *Metrics) RecordBackendSelection(backend string) {
	m.selections.WithLabelValues(backend).Inc()
}

func (m *Metrics) RecordResponse(backend string, duration time.Duration, statusCode int) {
	m.responses.WithLabelValues(backend, strconv.Itoa(statusCode)).Inc()
	m.responseTimes.WithLabelValues(backend).Observe(duration.Seconds())
}

func (m *Metrics) RecordRelayError(kind string) {
	m.relayErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordHealthChange(backend string, healthy bool) {
	state := "down"
	if healthy {
		state = "up"
	}
	m.healthChanges.WithLabelValues(backend, state).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
