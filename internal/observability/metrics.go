// Package observability provides metrics and tracing plumbing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tegridy_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tegridy_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// CommentEventsTotal counts comment mutations by kind and event.
	CommentEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tegridy_comment_events_total",
		Help: "Total comment mutations by target kind and event type",
	}, []string{"target_kind", "event"})

	// VoteCastsTotal counts vote outcomes by resulting type.
	VoteCastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tegridy_vote_casts_total",
		Help: "Total vote casts by resulting vote type",
	}, []string{"result"})

	// WebSocketConnectionsTotal is the gauge of active WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tegridy_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped on slow or closed clients.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tegridy_websocket_backpressure_drops_total",
		Help: "Total messages dropped because a client buffer was full or closed",
	}, []string{"reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
