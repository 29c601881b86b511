package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported on /metrics. All methods are safe on
// a nil receiver so components can run without instrumentation.
type Metrics struct {
	authOutcomes     *prometheus.CounterVec
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	realtimeSessions prometheus.Gauge
	realtimeDropped  prometheus.Counter
	tokensSwept      prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrec",
			Subsystem: "auth",
			Name:      "outcomes_total",
			Help:      "Session flow results by flow and outcome.",
		}, []string{"flow", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrec",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medrec",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		realtimeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "medrec",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open realtime connections.",
		}),
		realtimeDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medrec",
			Subsystem: "realtime",
			Name:      "dropped_events_total",
			Help:      "Events dropped because a connection queue was full.",
		}),
		tokensSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medrec",
			Subsystem: "auth",
			Name:      "refresh_tokens_swept_total",
			Help:      "Expired refresh token records removed.",
		}),
	}
	reg.MustRegister(m.authOutcomes, m.requests, m.requestDuration, m.realtimeSessions, m.realtimeDropped, m.tokensSwept)
	return m
}

func (m *Metrics) AuthOutcome(flow, outcome string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) RealtimeConnected() {
	if m == nil {
		return
	}
	m.realtimeSessions.Inc()
}

func (m *Metrics) RealtimeDisconnected() {
	if m == nil {
		return
	}
	m.realtimeSessions.Dec()
}

func (m *Metrics) RealtimeDropped() {
	if m == nil {
		return
	}
	m.realtimeDropped.Inc()
}

func (m *Metrics) TokensSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensSwept.Add(float64(n))
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
