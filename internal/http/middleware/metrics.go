package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "typestake"

var (
	rateLimitAllowed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "ratelimit",
		Name:      "allowed_total",
		Help:      "Requests let through, per limiter",
	}, []string{"limiter"})
	rateLimitBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "ratelimit",
		Name:      "blocked_total",
		Help:      "Requests rejected with 429, per limiter",
	}, []string{"limiter"})

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Requests currently being served",
	})
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Requests by route, method and status class",
	}, []string{"route", "method", "code"})
	// signing and chain reads dominate; most requests land under 250ms
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Request latency by route",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"route", "method"})
)

func init() {
	prometheus.MustRegister(rateLimitAllowed, rateLimitBlocked, httpInFlight, httpRequests, httpDuration)
}

// statusClass folds codes into 2xx/4xx/5xx to keep label cardinality low.
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// Metrics records in-flight requests, counts and latency per matched route.
// Unmatched paths share one label so scanners can't blow up the series count.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInFlight.Inc()
		start := time.Now()
		c.Next()
		httpInFlight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(route, method, statusClass(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
