/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing
// for the scheduler.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsCreatedTotal counts accepted scheduling requests.
	RequestsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skuld_requests_created_total",
		Help: "Scheduling requests accepted after validation.",
	})

	// RequestsRejectedTotal counts rejected proposals by failed check.
	RequestsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skuld_requests_rejected_total",
		Help: "Scheduling proposals rejected by the validator.",
	}, []string{"check"})

	// ClaimsTotal counts claim attempts by outcome.
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skuld_claims_total",
		Help: "Claim attempts by outcome.",
	}, []string{"outcome"})

	// ExecutionsTotal counts execution attempts by outcome. The outcome
	// label distinguishes transition failures from target-call failures.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skuld_executions_total",
		Help: "Execution attempts by outcome.",
	}, []string{"outcome"})

	// CancellationsTotal counts cancellation attempts by outcome.
	CancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skuld_cancellations_total",
		Help: "Cancellation attempts by outcome.",
	}, []string{"outcome"})

	// IndexSize tracks entries currently held by the discovery index.
	IndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skuld_index_entries",
		Help: "Entries currently held by the discovery index.",
	})

	// APIRequestDuration observes HTTP latency by method, route, and
	// status.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skuld_api_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIRequestsTotal counts HTTP requests by method, route, and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skuld_api_requests_total",
		Help: "HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	// DBQueryDuration observes gorm statement latency by operation.
	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skuld_db_query_duration_seconds",
		Help:    "Database statement latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// DBQueryErrorsTotal counts failed gorm statements by operation.
	DBQueryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skuld_db_query_errors_total",
		Help: "Database statements that returned an error.",
	}, []string{"operation"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
