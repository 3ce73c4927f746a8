// Package metrics provides the Prometheus registry and /metrics endpoint for
// the archive crawler. All metrics are defined in their respective packages
// (pagination, fetch, extract) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Gatherer collects the crawler metrics. Every package registers its metrics
// via promauto on the default registry, so this is the default gatherer.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Server exposes /metrics until its context is cancelled.
type Server struct {
	srv      *http.Server
	listener net.Listener
}

// Listen binds addr and returns a server ready to Serve.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	return &Server{
		srv: &http.Server{
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		listener: ln,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is cancelled, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr()).Msg("Metrics server listening")
		errCh <- s.srv.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("Metrics server stopped")
	return nil
}

// Metrics Documentation
//
// Crawl Metrics (pkg/pagination):
//   - archive_pages_total{outcome} (Counter): Page attempts by outcome (succeeded, empty, transient_failure, end_of_archive)
//   - archive_records_total (Counter): Records extracted
//   - archive_page_duration_seconds (Histogram): Duration of one page attempt
//
// Fetch Metrics (pkg/fetch):
//   - archive_fetch_requests_total{status} (Counter): Page requests by HTTP status
//   - archive_fetch_errors_total{class} (Counter): Fetch failures by class (not_found, client, server, network, content)
//   - archive_fetch_duration_seconds (Histogram): Page fetch duration
//
// Extraction Metrics (pkg/extract):
//   - archive_llm_requests_total{status} (Counter): Extraction requests by result (ok, error, malformed)
//   - archive_llm_tokens_total{kind} (Counter): Tokens by kind (prompt, completion)
//   - archive_llm_request_duration_seconds (Histogram): Extraction request duration
//
// Example Prometheus Queries:
//
//   # Page Failure Rate
//   sum(rate(archive_pages_total{outcome="transient_failure"}[5m])) / sum(rate(archive_pages_total[5m]))
//
//   # Records per Page
//   rate(archive_records_total[5m]) / rate(archive_pages_total{outcome="succeeded"}[5m])
//
//   # P95 Extraction Latency
//   histogram_quantile(0.95, rate(archive_llm_request_duration_seconds_bucket[5m]))
//
//   # Token Spend
//   sum by (kind) (archive_llm_tokens_total)
