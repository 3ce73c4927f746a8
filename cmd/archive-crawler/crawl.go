package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Sternrassler/archive-crawler/pkg/adapter"
	"github.com/Sternrassler/archive-crawler/pkg/config"
	"github.com/Sternrassler/archive-crawler/pkg/extract"
	"github.com/Sternrassler/archive-crawler/pkg/fetch"
	"github.com/Sternrassler/archive-crawler/pkg/logging"
	"github.com/Sternrassler/archive-crawler/pkg/metrics"
	"github.com/Sternrassler/archive-crawler/pkg/output"
	"github.com/Sternrassler/archive-crawler/pkg/pagination"
	"github.com/Sternrassler/archive-crawler/pkg/usage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	setupLogging(cfg, cmd.ErrOrStderr())
	runID := uuid.NewString()
	logging.WithRun(runID)
	logger := logging.NewLogger("cli")

	apiKey, err := cfg.APIKey(os.Getenv)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rdb := connectRedis(ctx, cfg.Redis.URL, logger)
	if rdb != nil {
		defer rdb.Close()
	}
	tracker := usage.NewTracker(runID, rdb, logging.NewLogger("usage"))

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Listen(cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		metricsCtx, stopMetrics := context.WithCancel(context.Background())
		defer stopMetrics()
		go func() {
			if err := srv.Serve(metricsCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	crawler, err := buildCrawler(cfg, apiKey, tracker, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	logger.Info().Str("config", cfg.String()).Msg("Starting archive crawl")

	result, err := crawler.Run(ctx)
	if err != nil {
		logger.Warn().Err(err).Int("records", len(result.Records)).Msg("Crawl interrupted, keeping partial results")
	}

	return finish(cmd.OutOrStdout(), cfg, result, tracker, logger)
}

func setupLogging(cfg *config.Config, w io.Writer) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Logging.Level)
	logCfg.Pretty = cfg.Logging.Pretty
	if w != nil {
		logCfg.Output = w
	}
	logging.Setup(logCfg)
}

// connectRedis returns nil when url is empty or Redis is unreachable; the
// usage ledger then stays in memory.
func connectRedis(ctx context.Context, url string, logger zerolog.Logger) *redis.Client {
	if url == "" {
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid Redis URL, usage ledger stays in memory")
		return nil
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unavailable, usage ledger stays in memory")
		rdb.Close()
		return nil
	}

	logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return rdb
}

func newFetcher(cfg *config.Config) (*fetch.Fetcher, error) {
	fetchCfg := fetch.DefaultConfig()
	fetchCfg.Selector = cfg.Archive.Selector
	fetchCfg.Timeout = cfg.ArchiveTimeout()
	if cfg.Archive.UserAgent != "" {
		fetchCfg.UserAgent = cfg.Archive.UserAgent
	}
	return fetch.New(fetchCfg)
}

func buildCrawler(cfg *config.Config, apiKey string, recorder extract.Recorder, progress io.Writer) (*pagination.Crawler, error) {
	fetcher, err := newFetcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	extractor, err := extract.New(extract.Config{
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		APIKey:            apiKey,
		Instruction:       cfg.LLM.Instruction,
		Timeout:           cfg.LLMTimeout(),
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		MaxTokens:         cfg.LLM.MaxTokens,
		Temperature:       cfg.LLM.Temperature,
	}, recorder)
	if err != nil {
		return nil, fmt.Errorf("create extractor: %w", err)
	}

	pageAdapter := adapter.New(fetcher, extractor, cfg.Archive.Selector)

	return pagination.NewCrawler(pageAdapter, pagination.Config{
		BaseURLPrefix:          cfg.Archive.BaseURLPrefix,
		PageSuffix:             cfg.Archive.PageSuffix,
		StartPage:              cfg.Crawl.StartPage,
		MaxConsecutiveFailures: cfg.Crawl.MaxConsecutiveFailures,
		PageDelay:              cfg.PageDelay(),
		MaxPages:               cfg.Crawl.MaxPages,
		Progress:               progress,
	}), nil
}

// finish prints the summary and usage report, then writes the CSV.
func finish(w io.Writer, cfg *config.Config, result *pagination.Result, tracker *usage.Tracker, logger zerolog.Logger) error {
	fmt.Fprintf(w, "Done: %d pages, %d records (stopped: %s)\n",
		result.Pages, len(result.Records), result.StopReason)

	reportCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := tracker.Report(reportCtx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load cumulative usage")
	}
	if report != nil {
		logger.Info().Stringer("usage", report.RunTotal()).Msg("LLM usage")
		if _, err := report.WriteTo(w); err != nil {
			logger.Warn().Err(err).Msg("Failed to write usage report")
		}
	}

	err = output.WriteCSV(cfg.Output.Path, result.Records)
	if errors.Is(err, output.ErrNoRecords) {
		fmt.Fprintln(w, "No data to save.")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Output.Path).Msg("Failed to write CSV")
		return fmt.Errorf("write csv: %w", err)
	}

	path := cfg.Output.Path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	logger.Info().Str("path", path).Int("records", len(result.Records)).Msg("CSV written")
	fmt.Fprintf(w, "Saved to: %s\n", path)

	if cfg.Output.PreviewRows > 0 {
		fmt.Fprintln(w)
		if err := output.RenderPreview(w, result.Records, cfg.Output.PreviewRows); err != nil {
			logger.Warn().Err(err).Msg("Failed to render preview")
		}
	}
	return nil
}
