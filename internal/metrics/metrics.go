package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Softphone counters and histograms, exposed on /metrics.

var (
	// Session
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softphone",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Total session state transitions",
	}, []string{"from", "to"})

	SessionConnectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softphone",
		Subsystem: "session",
		Name:      "connect_failures_total",
		Help:      "Total failed connect attempts by reason",
	}, []string{"reason"})

	SessionDeviceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softphone",
		Subsystem: "session",
		Name:      "device_errors_total",
		Help:      "Total SDK errors by category",
	}, []string{"category"})

	// Calls
	CallsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softphone",
		Subsystem: "calls",
		Name:      "started_total",
		Help:      "Total calls started",
	}, []string{"direction"})

	CallsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softphone",
		Subsystem: "calls",
		Name:      "ended_total",
		Help:      "Total calls ended by terminal status",
	}, []string{"direction", "status"})

	CallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "softphone",
		Subsystem: "calls",
		Name:      "duration_seconds",
		Help:      "Answered call duration",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"direction"})

	// Backend
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softphone",
		Subsystem: "backend",
		Name:      "requests_total",
		Help:      "Total backend requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	BackendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "softphone",
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Backend request duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"endpoint"})

	BackendRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softphone",
		Subsystem: "backend",
		Name:      "rate_limit_waits_total",
		Help:      "Total backend requests delayed by the client-side limiter",
	}, []string{"endpoint"})

	// Messaging
	SMSPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "softphone",
		Subsystem: "sms",
		Name:      "polls_total",
		Help:      "Total conversation refreshes by outcome",
	}, []string{"outcome"})

	// Event stream
	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "softphone",
		Subsystem: "events",
		Name:      "subscribers",
		Help:      "Connected event stream subscribers",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "softphone",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Events dropped for slow subscribers",
	})
)
