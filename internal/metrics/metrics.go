// LearnLoop - E-Learning Platform Authentication Core
// Copyright 2026 LearnLoop Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/learnloop/learnloop

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the authentication core:
// - HTTP endpoint latency and status codes
// - Login outcomes and rate limiting
// - Token issuance, rotation, and reuse detection
// - Session store health (circuit breaker, degraded mode)
// - Audit pipeline throughput

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authd_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authd_http_requests_in_flight",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	// Authentication metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_login_attempts_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"outcome"}, // "success", "invalid_credentials", "rate_limited"
	)

	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_tokens_issued_total",
			Help: "Total number of JWTs issued by kind",
		},
		[]string{"kind"}, // "access", "refresh"
	)

	TokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_token_verifications_total",
			Help: "Total number of JWT verifications by result",
		},
		[]string{"kind", "result"}, // result: "valid", "invalid"
	)

	RefreshRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_refresh_rotations_total",
			Help: "Total number of refresh token rotation attempts by outcome",
		},
		[]string{"outcome"}, // "rotated", "conflict", "reuse_detected", "invalid"
	)

	TokenReuseDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authd_token_reuse_detections_total",
			Help: "Total number of refresh token reuse detections",
		},
	)

	// Rate limiting and CSRF
	RateLimitBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_rate_limit_blocks_total",
			Help: "Total number of requests blocked by the rate limiter",
		},
		[]string{"limiter"}, // "login", "signup", "password_reset"
	)

	CSRFFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_csrf_failures_total",
			Help: "Total number of CSRF validation failures by cause",
		},
		[]string{"cause"}, // "missing", "mismatch", "invalid"
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authd_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionsInvalidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_sessions_invalidated_total",
			Help: "Total number of sessions invalidated by reason",
		},
		[]string{"reason"}, // "logout", "reuse", "password_change", "user_request"
	)

	SessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authd_sessions_swept_total",
			Help: "Total number of expired sessions removed by the sweeper",
		},
	)

	SessionStoreDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_session_store_degraded_total",
			Help: "Total number of session operations served by the in-memory fallback",
		},
		[]string{"operation"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "authd_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Audit pipeline metrics
	AuditEventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_audit_events_recorded_total",
			Help: "Total number of audit events recorded by level",
		},
		[]string{"level"},
	)

	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authd_audit_events_dropped_total",
			Help: "Total number of audit events dropped due to persistence failures",
		},
	)
)

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
