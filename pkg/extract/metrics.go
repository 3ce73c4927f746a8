package extract

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for extraction requests.
var (
	llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_llm_requests_total",
		Help: "Total extraction requests by result status",
	}, []string{"status"})

	llmTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_llm_tokens_total",
		Help: "Total language model tokens by kind (prompt, completion)",
	}, []string{"kind"})

	llmRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_llm_request_duration_seconds",
		Help:    "Extraction request duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 60},
	})
)
