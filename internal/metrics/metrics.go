// Package metrics provides Prometheus metrics collection for the relay application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocketConnections tracks the current number of active WebSocket connections
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_websocket_connections",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the current number of identified (named) users
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_online_users",
		Help: "Current number of identified online users",
	})

	// ClaimsTotal tracks name claim attempts by outcome
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_claims_total",
		Help: "Total number of display name claim attempts by outcome",
	}, []string{"outcome"}) // "bound", "takeover", "noop", "conflict"

	// MessagesRouted tracks the total number of private messages routed
	MessagesRouted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_routed_total",
		Help: "Total number of private messages routed to recipients",
	})

	// TypingSignals tracks the total number of typing signals relayed
	TypingSignals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_typing_signals_total",
		Help: "Total number of typing signals relayed",
	})

	// RoutingErrors tracks user-visible routing rejections by error code
	RoutingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_routing_errors_total",
		Help: "Total number of rejected routing attempts by error code",
	}, []string{"code"})

	// BroadcastsSent tracks presence broadcasts by event name
	BroadcastsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_broadcasts_total",
		Help: "Total number of presence broadcasts by event",
	}, []string{"event"})

	// EventsReceived tracks inbound WebSocket events by event name
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_received_total",
		Help: "Total number of inbound WebSocket events by event",
	}, []string{"event"})

	// DispatchErrors tracks unexpected faults recovered during event handling
	DispatchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_dispatch_errors_total",
		Help: "Total number of unexpected faults recovered during event handling",
	})

	// LoginsTotal tracks HTTP login handshakes by outcome
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_logins_total",
		Help: "Total number of HTTP login handshakes by outcome",
	}, []string{"outcome"}) // "ok", "rejected"

	// HTTPRequestDuration records HTTP request duration by endpoint and method
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method"})
)
