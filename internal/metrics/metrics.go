// Package metrics provides Prometheus metrics for muti-ping.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "muti_ping"
)

// Metrics contains all Prometheus metrics for the ping engine.
type Metrics struct {
	// Request metrics
	Requests *prometheus.CounterVec
	Replies  *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	InFlight prometheus.Gauge

	// Latency
	RTT prometheus.Histogram

	// Completion bridge
	AsyncPolls prometheus.Counter

	// Probe server
	HTTPProbes *prometheus.CounterVec
	WSSessions prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total echo requests issued by address family and completion path",
		}, []string{"family", "path"}),
		Replies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Total successful echo replies by address family",
		}, []string{"family"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total failed echo requests by error kind",
		}, []string{"kind"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight",
			Help:      "Number of echo requests awaiting a reply",
		}),
		RTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rtt_milliseconds",
			Help:      "Histogram of echo round-trip time in milliseconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		AsyncPolls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_polls_total",
			Help:      "Total polls of asynchronous echo requests",
		}),
		HTTPProbes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_probes_total",
			Help:      "Total probe requests served by endpoint",
		}, []string{"endpoint"}),
		WSSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_sessions",
			Help:      "Number of open WebSocket ping sessions",
		}),
	}
}

// RecordRequest records an issued request and marks it in flight.
func (m *Metrics) RecordRequest(family, path string) {
	m.Requests.WithLabelValues(family, path).Inc()
	m.InFlight.Inc()
}

// RecordReply records a successful reply and its round-trip time.
func (m *Metrics) RecordReply(family string, rttMillis uint32) {
	m.InFlight.Dec()
	m.Replies.WithLabelValues(family).Inc()
	m.RTT.Observe(float64(rttMillis))
}

// RecordError records a failed request.
func (m *Metrics) RecordError(kind string) {
	m.InFlight.Dec()
	m.Errors.WithLabelValues(kind).Inc()
}

// RecordRejected records a request refused before anything was sent.
func (m *Metrics) RecordRejected(kind string) {
	m.Errors.WithLabelValues(kind).Inc()
}

// RecordAsyncPoll records one poll of an asynchronous request.
func (m *Metrics) RecordAsyncPoll() {
	m.AsyncPolls.Inc()
}

// RecordHTTPProbe records a probe served by the health server.
func (m *Metrics) RecordHTTPProbe(endpoint string) {
	m.HTTPProbes.WithLabelValues(endpoint).Inc()
}

// RecordWSSessionOpen records an opened WebSocket session.
func (m *Metrics) RecordWSSessionOpen() {
	m.WSSessions.Inc()
}

// RecordWSSessionClose records a closed WebSocket session.
func (m *Metrics) RecordWSSessionClose() {
	m.WSSessions.Dec()
}
