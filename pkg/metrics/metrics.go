package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors exported on /metrics.
//
// Metrics:
//   - http_requests_total{method,route,status}
//   - http_request_duration_seconds{method,route}
//   - decisions_ingested_total{source,result}
//   - decisions_confirmations_total{result}
//   - gmail_sync_runs_total{mode,result}
//   - gmail_sync_messages_total
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	DecisionsIngested *prometheus.CounterVec
	Confirmations     *prometheus.CounterVec

	GmailSyncRuns     *prometheus.CounterVec
	GmailSyncMessages prometheus.Counter
}

// Get returns the process wide metrics, registering them on first use.
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "route", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "route"},
			),
			DecisionsIngested: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "decisions_ingested_total",
					Help: "Inbound messages processed by outcome",
				},
				[]string{"source", "result"}, // created, duplicate, discarded, query, failed
			),
			Confirmations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "decisions_confirmations_total",
					Help: "Confirmation and rejection attempts by outcome",
				},
				[]string{"result"},
			),
			GmailSyncRuns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gmail_sync_runs_total",
					Help: "Gmail sync runs by mode and result",
				},
				[]string{"mode", "result"},
			),
			GmailSyncMessages: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "gmail_sync_messages_total",
					Help: "Gmail messages stored by sync",
				},
			),
		}
	})
	return globalMetrics
}

// Middleware records request counts and latency keyed by the matched route.
func Middleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
