package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devbytes_reading_sessions_ingested_total",
		Help: "Reading session snapshots stored, by verdict",
	}, []string{"verdict"})

	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devbytes_analytics_events_ingested_total",
		Help: "Machine endpoint events stored, by event type and verdict",
	}, []string{"event_type", "verdict"})

	SessionsSynced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devbytes_reading_sessions_synced_total",
		Help: "Anonymous reading session rows claimed by a signed-in user",
	})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devbytes_stream_publish_failures_total",
		Help: "Stored sessions that could not be forwarded to the stream",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devbytes_ingest_rate_limited_total",
		Help: "Ingestion requests rejected by the per-client rate limiter",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devbytes_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)

// Verdict is the label value for a bot classification.
func Verdict(isBot bool) string {
	if isBot {
		return "bot"
	}
	return "human"
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// ObserveRequest records the latency of one request under its route template.
func ObserveRequest(route string, status string, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	RequestDuration.WithLabelValues(route, status).Observe(elapsed.Seconds())
}
