package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GatewayMetrics are the gateway-level Prometheus collectors: request
// counts/latency and live connection gauges, distinct from the ZNS
// subsystem's own hand-rendered exposition in internal/zns/prometheus.go.
// Each Gateway gets its own registry so multiple Gateways can coexist in a
// test process without collector-already-registered panics.
type GatewayMetrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	connectionsOpen prometheus.Gauge
}

func newGatewayMetrics() *GatewayMetrics {
	reg := prometheus.NewRegistry()

	m := &GatewayMetrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghostbridge_gateway_requests_total",
			Help: "Total number of requests dispatched, labelled by transport and status code.",
		}, []string{"transport", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ghostbridge_gateway_request_duration_seconds",
			Help:    "Dispatch latency in seconds, labelled by transport.",
			Buckets: prometheus.DefBuckets,
		}, []string{"transport"}),
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ghostbridge_gateway_connections_open",
			Help: "Number of currently admitted connections across both transports.",
		}),
	}

	reg.MustRegister(m.requestsTotal, m.requestDuration, m.connectionsOpen)
	return m
}

func (m *GatewayMetrics) observe(transport Transport, statusCode int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(string(transport), statusCodeClass(statusCode)).Inc()
	m.requestDuration.WithLabelValues(string(transport)).Observe(duration.Seconds())
}

func (m *GatewayMetrics) setConnectionsOpen(n int) {
	m.connectionsOpen.Set(float64(n))
}

// Handler returns the promhttp handler serving this Gateway's registry.
func (m *GatewayMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func statusCodeClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
