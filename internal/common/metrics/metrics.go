// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP request handling in seconds",
		},
		[]string{"route", "method"},
	)

	DraftSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draft_saves_total",
			Help: "Total number of draft saves by tier and outcome",
		},
		[]string{"tier", "status"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "application_submissions_total",
			Help: "Total number of application submissions by outcome",
		},
		[]string{"status"},
	)

	ColumnRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "application_insert_column_retries_total",
			Help: "Application inserts retried after stripping a missing optional column",
		},
		[]string{"column"},
	)
)
