package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yektayar/gateway/internal/common/config"
)

// Metrics holds the Prometheus instruments of the realtime gateway.
type Metrics struct {
	registry    *prometheus.Registry
	namespace   string
	activeConns *prometheus.GaugeVec
	framesTotal *prometheus.CounterVec
	eventsTotal *prometheus.CounterVec
	aiStreams   *prometheus.CounterVec
	aiStreamDur prometheus.Histogram
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	activeConns := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "active_connections"}, []string{"protocol"})
	framesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "frames_total"}, []string{"protocol", "direction"})
	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "events_total"}, []string{"event"})
	aiStreams := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "ai_streams_total"}, []string{"status"})
	aiStreamDur := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: ns, Name: "ai_stream_duration_seconds", Buckets: buckets})
	r.MustRegister(activeConns, framesTotal, eventsTotal, aiStreams, aiStreamDur)

	return &Metrics{
		registry:    r,
		namespace:   ns,
		activeConns: activeConns,
		framesTotal: framesTotal,
		eventsTotal: eventsTotal,
		aiStreams:   aiStreams,
		aiStreamDur: aiStreamDur,
	}
}

// ConnOpened records a new live connection for the given protocol.
func (m *Metrics) ConnOpened(protocol string) {
	m.activeConns.WithLabelValues(protocol).Inc()
}

// ConnClosed records a closed connection for the given protocol.
func (m *Metrics) ConnClosed(protocol string) {
	m.activeConns.WithLabelValues(protocol).Dec()
}

// FrameIn counts one inbound frame.
func (m *Metrics) FrameIn(protocol string) {
	m.framesTotal.WithLabelValues(protocol, "in").Inc()
}

// FrameOut counts one outbound frame.
func (m *Metrics) FrameOut(protocol string) {
	m.framesTotal.WithLabelValues(protocol, "out").Inc()
}

// Event counts one routed event by name.
func (m *Metrics) Event(event string) {
	m.eventsTotal.WithLabelValues(event).Inc()
}

// AIStreamFinished records a finished AI stream with its terminal status.
func (m *Metrics) AIStreamFinished(status string, dur time.Duration) {
	m.aiStreams.WithLabelValues(status).Inc()
	m.aiStreamDur.Observe(dur.Seconds())
}

// HTTPHandler exposes the registry for the /metrics endpoint.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
