// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

// Package metrics provides Prometheus instrumentation for the Formloom
// auth server. It exposes ceremony and token counters, latency
// histograms, and store gauges for monitoring sign-in health.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all Formloom metrics
	Namespace = "formloom"

	// Label names
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelErrorType  = "error_type"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpRegisterBegin  = "register_begin"
	OpRegisterFinish = "register_finish"
	OpLoginBegin     = "login_begin"
	OpLoginFinish    = "login_finish"
	OpTokenIssue     = "token_issue"
	OpTokenRefresh   = "token_refresh"
	OpTokenRevoke    = "token_revoke"
	OpAuthenticate   = "authenticate"
)

var (
	// AuthOperationsTotal tracks auth operations by type and status.
	// Use RecordOperation to increment this counter with the appropriate labels.
	AuthOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Total number of auth operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// AuthOperationDuration tracks the duration of auth operations in seconds.
	// Buckets are sized for signature verification and token signing latencies.
	AuthOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "operation_duration_seconds",
			Help:      "Duration of auth operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelOperation},
	)

	// AuthErrorsTotal tracks authentication errors by operation and type.
	// Error types should be specific (e.g., "challenge_not_found",
	// "cloned_authenticator", "token_revoked").
	AuthErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "errors_total",
			Help:      "Total number of auth errors by operation and error type",
		},
		[]string{LabelOperation, LabelErrorType},
	)

	// HTTPRequestsTotal tracks the total number of HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// ActiveConnections tracks the number of in-flight HTTP requests.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "active_connections",
			Help:      "Number of in-flight HTTP requests",
		},
	)

	// PendingChallenges tracks the number of ceremony challenges awaiting
	// a response. Updated by the store sweeper.
	PendingChallenges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "pending_challenges",
			Help:      "Number of ceremony challenges awaiting a response",
		},
	)

	// RevokedTokens tracks the number of blacklisted tokens that have not
	// yet reached their natural expiry.
	RevokedTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "revoked_tokens",
			Help:      "Number of blacklisted tokens not yet expired",
		},
	)

	// UsersTotal tracks the total number of registered accounts.
	UsersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "users_total",
			Help:      "Total number of registered accounts",
		},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordOperation records an auth operation with its duration and status.
//
// Example:
//
//	start := time.Now()
//	_, err := svc.FinishLogin(ctx, response)
//	status := metrics.StatusSuccess
//	if err != nil {
//	    status = metrics.StatusError
//	}
//	metrics.RecordOperation(metrics.OpLoginFinish, status, time.Since(start).Seconds())
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	AuthOperationsTotal.WithLabelValues(operation, status).Inc()
	AuthOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records an auth error with a specific error type, e.g.
// "challenge_not_found" or "cloned_authenticator".
func RecordError(operation, errorType string) {
	if !enabled.Load() {
		return
	}
	AuthErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// IncrementActiveConnections increments the in-flight request gauge.
func IncrementActiveConnections() {
	if !enabled.Load() {
		return
	}
	ActiveConnections.Inc()
}

// DecrementActiveConnections decrements the in-flight request gauge.
func DecrementActiveConnections() {
	if !enabled.Load() {
		return
	}
	ActiveConnections.Dec()
}

// SetPendingChallenges sets the pending challenge gauge.
func SetPendingChallenges(count float64) {
	if !enabled.Load() {
		return
	}
	PendingChallenges.Set(count)
}

// SetRevokedTokens sets the revoked token gauge.
func SetRevokedTokens(count float64) {
	if !enabled.Load() {
		return
	}
	RevokedTokens.Set(count)
}

// SetUsersTotal sets the registered account gauge.
func SetUsersTotal(count float64) {
	if !enabled.Load() {
		return
	}
	UsersTotal.Set(count)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
