package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for page fetches.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_fetch_requests_total",
		Help: "Total archive page requests by HTTP status",
	}, []string{"status"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_fetch_errors_total",
		Help: "Total archive page fetch failures by class",
	}, []string{"class"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_fetch_duration_seconds",
		Help:    "Archive page fetch duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)
