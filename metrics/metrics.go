// Package metrics exposes hub counters in Prometheus format. A nil *Metrics
// is valid and records nothing, so components can run without it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "screenhub"

// Metrics holds the hub collectors and the registry they are exposed from.
// Every method is safe to call on a nil receiver.
type Metrics struct {
	registry     *prometheus.Registry
	liveSessions prometheus.Gauge
	storedFrames prometheus.Gauge
	connections  prometheus.Counter
	messages     *prometheus.CounterVec
	authFailures *prometheus.CounterVec
	providerErrs *prometheus.CounterVec
	frameBytes   prometheus.Counter
	captureDur   prometheus.Histogram
	httpReqCnt   *prometheus.CounterVec
	httpDur      *prometheus.HistogramVec
}

// New creates a Metrics instance on its own registry. An empty namespace
// selects DefaultNamespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry:     r,
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "live_sessions", Help: "Authenticated sessions currently connected."}),
		storedFrames: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "stored_frames", Help: "Screenshots held by the frame store."}),
		connections:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "connections_total", Help: "Accepted TCP connections."}),
		messages:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "messages_total", Help: "Inbound messages by type."}, []string{"type"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "auth_failures_total", Help: "Rejected handshakes by reason."}, []string{"reason"}),
		providerErrs: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "provider_errors_total", Help: "Failed provider calls by operation."}, []string{"op"}),
		frameBytes:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "frames_received_bytes_total", Help: "Encoded screenshot bytes received."}),
		captureDur:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "capture_duration_seconds", Help: "Time spent in screen capture.", Buckets: prometheus.DefBuckets}),
		httpReqCnt:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Dashboard HTTP requests by route and status."}, []string{"method", "route", "status"}),
		httpDur:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "Dashboard HTTP request latency.", Buckets: prometheus.DefBuckets}, []string{"method", "route", "status"}),
	}

	r.MustRegister(m.liveSessions, m.storedFrames, m.connections, m.messages, m.authFailures, m.providerErrs, m.frameBytes, m.captureDur)
	r.MustRegister(m.httpReqCnt, m.httpDur)

	return m
}

// SetLiveSessions records the number of authenticated sessions.
func (m *Metrics) SetLiveSessions(n int) {
	if m == nil {
		return
	}
	m.liveSessions.Set(float64(n))
}

// SetStoredFrames records the number of screenshots in the frame store.
func (m *Metrics) SetStoredFrames(n int) {
	if m == nil {
		return
	}
	m.storedFrames.Set(float64(n))
}

// ConnectionAccepted counts one accepted TCP connection.
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// MessageReceived counts one inbound message. Unrecognised types are counted
// as "unknown".
func (m *Metrics) MessageReceived(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.messages.WithLabelValues(kind).Inc()
}

// AuthFailed counts one rejected handshake under reason.
func (m *Metrics) AuthFailed(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// ProviderError counts one failed provider call for op.
func (m *Metrics) ProviderError(op string) {
	if m == nil {
		return
	}
	m.providerErrs.WithLabelValues(op).Inc()
}

// FrameReceived adds size encoded bytes to the received frame total.
func (m *Metrics) FrameReceived(size int) {
	if m == nil {
		return
	}
	m.frameBytes.Add(float64(size))
}

// CaptureDone observes the time elapsed since a capture started.
func (m *Metrics) CaptureDone(since time.Time) {
	if m == nil {
		return
	}
	m.captureDur.Observe(time.Since(since).Seconds())
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
