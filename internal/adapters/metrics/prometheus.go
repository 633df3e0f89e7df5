package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "counsel_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "counsel_ws_connections_active",
		Help: "Number of open real-time connections",
	})

	WSAuthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_ws_auth_failures_total",
		Help: "Connections rejected at the handshake",
	}, []string{"reason"})

	WSEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_ws_events_total",
		Help: "Inbound real-time events by outcome",
	}, []string{"event", "outcome"})

	WSSlowClientsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "counsel_ws_slow_clients_dropped_total",
		Help: "Connections dropped because their send queue was full",
	})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_messages_total",
		Help: "Total messages persisted",
	}, []string{"sender"})

	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_status_transitions_total",
		Help: "Conversation status transitions applied",
	}, []string{"from", "to"})

	StaleWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "counsel_stale_writes_total",
		Help: "Status writes discarded because another writer got there first",
	})

	AITurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_ai_turns_total",
		Help: "AI turns by outcome",
	}, []string{"outcome"})

	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_tool_calls_total",
		Help: "AI function calls dispatched",
	}, []string{"tool", "outcome"})

	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_llm_requests_total",
		Help: "Total LLM requests",
	}, []string{"model", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "counsel_llm_request_duration_seconds",
		Help:    "LLM request duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"model"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "counsel_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"name"})

	VerificationAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_verification_attempts_total",
		Help: "Verification code checks by outcome",
	}, []string{"outcome"})

	ConversationsAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "counsel_conversations_abandoned_total",
		Help: "Conversations abandoned by the inactivity sweeper",
	})
)
