package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rooms_created_total",
			Help: "Total rooms created",
		},
		[]string{"room_type"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"room_type"},
	)

	CallsInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_calls_initiated_total",
			Help: "Total call sessions initiated",
		},
		[]string{"call_type"},
	)

	CallsMissed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_calls_missed_total",
			Help: "Calls cancelled by ring timeout",
		},
	)

	CallsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_calls_completed_total",
			Help: "Calls ended normally",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rate_limit_hits_total",
			Help: "Messages rejected by the per-room rate limiter",
		},
	)

	IdentityLookupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_identity_lookup_failures_total",
			Help: "Identity resolutions degraded to anonymous after upstream failure",
		},
	)
)
