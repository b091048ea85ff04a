// Package metrics holds the delivery server's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks REST request latency by route pattern.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collab_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	// SessionsActive is the number of joined websocket sessions on this instance.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_ws_sessions_active",
			Help: "Number of joined websocket sessions",
		},
	)

	// FramesTotal counts realtime frames by direction (in/out) and type.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_ws_frames_total",
			Help: "Realtime frames processed",
		},
		[]string{"direction", "type"},
	)

	// SlowSessionsTotal counts sessions dropped because their send buffer was full.
	SlowSessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_ws_slow_sessions_total",
			Help: "Sessions closed because they could not keep up",
		},
	)

	// MessagesStored counts durable writes; created=false marks idempotent retries.
	MessagesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_messages_stored_total",
			Help: "Messages accepted by POST /messages",
		},
		[]string{"created"},
	)

	// RelayErrors counts frames that could not be handed to the relay.
	RelayErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_relay_errors_total",
			Help: "Frames the relay failed to publish",
		},
	)
)

// RecordRequest records one REST request.
func RecordRequest(method, route, status string, seconds float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

// RecordFrame counts one realtime frame.
func RecordFrame(direction, kind string) {
	FramesTotal.WithLabelValues(direction, kind).Inc()
}
