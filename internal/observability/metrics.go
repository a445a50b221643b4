// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the service's custom Prometheus collectors.
type Metrics struct {
	AuthOperations *prometheus.CounterVec
	AuthDuration   *prometheus.HistogramVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	SweptRows      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipebox_auth_operations_total",
				Help: "Auth operations by operation and outcome code",
			},
			[]string{"operation", "outcome"},
		),
		AuthDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "recipebox_auth_operation_duration_seconds",
				Help: "Auth operation latency; dominated by password hashing",
				// Argon2id verifies sit around 50-200ms.
				Buckets: []float64{.01, .025, .05, .1, .2, .4, .8, 1.6, 3.2},
			},
			[]string{"operation"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipebox_http_requests_total",
				Help: "HTTP requests by method, route pattern and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recipebox_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		SweptRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipebox_swept_rows_total",
				Help: "Expired rows removed by the sweeper",
			},
			[]string{"table"},
		),
	}

	reg.MustRegister(m.AuthOperations, m.AuthDuration, m.HTTPRequests, m.HTTPDuration, m.SweptRows)
	return m
}

// RecordAuthOperation implements auth.Recorder.
func (m *Metrics) RecordAuthOperation(operation, outcome string, duration time.Duration) {
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
	m.AuthDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records one served request. route is the router
// pattern, not the raw path, to keep cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordSweep counts rows removed from table.
func (m *Metrics) RecordSweep(table string, rows int64) {
	m.SweptRows.WithLabelValues(table).Add(float64(rows))
}
