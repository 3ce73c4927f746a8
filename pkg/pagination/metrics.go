package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the crawl loop.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_pages_total",
		Help: "Total page attempts by outcome (succeeded, empty, transient_failure, end_of_archive)",
	}, []string{"outcome"})

	recordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_records_total",
		Help: "Total records extracted",
	})

	pageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_page_duration_seconds",
		Help:    "Duration of one page attempt (fetch and extraction) in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)
