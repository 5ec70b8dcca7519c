// Package observability provides logging, metrics, and tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glimmer_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// WebSocketConnectionsTotal is the gauge of active chat connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "glimmer_websocket_connections_total",
		Help: "Total number of active WebSocket chat connections",
	})

	// ChannelConnections is the gauge of connections per channel.
	ChannelConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "glimmer_channel_connections",
		Help: "Number of WebSocket connections per channel",
	}, []string{"channel"})

	// MessageThroughput counts chat frames processed per channel and frame type.
	MessageThroughput = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glimmer_message_throughput_total",
		Help: "Total number of chat frames processed",
	}, []string{"channel", "frame_type"})

	// MessagesDenied counts chat messages dropped by restriction or rate limit.
	MessagesDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glimmer_messages_denied_total",
		Help: "Total number of chat messages denied",
	}, []string{"reason"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glimmer_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// ModerationActions counts applied moderation actions by kind and outcome.
	ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glimmer_moderation_actions_total",
		Help: "Total number of moderation actions by action and outcome",
	}, []string{"action", "outcome"})

	// PresenceReconcileDuration records the latency of presence reconciliation passes.
	PresenceReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "glimmer_presence_reconcile_duration_seconds",
		Help:    "Duration of presence reconciliation passes",
		Buckets: prometheus.DefBuckets,
	})

	// HistoryAppendFailures counts best-effort history appends that failed.
	HistoryAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glimmer_history_append_failures_total",
		Help: "Total number of failed history appends (fan-out continued)",
	})
)
