// Package metrics declares the process-wide Prometheus collectors.
//
// Naming convention: namespace_subsystem_name
// - namespace: divide (application-level grouping)
// - subsystem: http, room, pubsub, solver (feature-level grouping)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts handled requests by route and status class.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "divide",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests handled",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "divide",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time spent handling HTTP requests",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "path"})

	// RoomsActive tracks the current number of live rooms (Gauge - current state).
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "divide",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of live rooms",
	})

	// DividesTotal counts divide operations by outcome.
	DividesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "divide",
		Subsystem: "room",
		Name:      "divides_total",
		Help:      "Total divide operations",
	}, []string{"status"})

	// EventsPublished counts events handed to the publisher, by event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "divide",
		Subsystem: "pubsub",
		Name:      "events_published_total",
		Help:      "Total events handed to the publisher",
	}, []string{"event"})

	// SolverDuration tracks how long a division takes per algorithm path.
	SolverDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "divide",
		Subsystem: "solver",
		Name:      "duration_seconds",
		Help:      "Time spent computing a division",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"algorithm"})

	// ActiveWebSocketConnections tracks gateway connections (Gauge - current state).
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "divide",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// CircuitBreakerState exposes breaker state per external service
	// (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "divide",
		Subsystem: "pubsub",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"service"})

	// CircuitBreakerFailures counts publishes dropped by an open breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "divide",
		Subsystem: "pubsub",
		Name:      "circuit_breaker_failures_total",
		Help:      "Publishes dropped because the circuit breaker was open",
	}, []string{"service"})
)
