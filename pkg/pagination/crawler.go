package pagination

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Sternrassler/archive-crawler/pkg/adapter"
	"github.com/Sternrassler/archive-crawler/pkg/record"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds crawler configuration
type Config struct {
	// BaseURLPrefix is everything before the page number.
	BaseURLPrefix string
	// PageSuffix is everything after the page number.
	PageSuffix string
	// StartPage is the first page number requested.
	StartPage int
	// MaxConsecutiveFailures stops the crawl after this many failed or empty
	// pages in a row.
	MaxConsecutiveFailures int
	// PageDelay is the pause between page attempts.
	PageDelay time.Duration
	// MaxPages bounds the number of page attempts (0 = unbounded).
	MaxPages int
	// Progress receives one human-readable line per page (nil = discard).
	Progress io.Writer
}

// DefaultConfig returns the default crawl configuration
func DefaultConfig() Config {
	return Config{
		PageSuffix:             ".html",
		StartPage:              1,
		MaxConsecutiveFailures: 3,
		PageDelay:              time.Second,
	}
}

// PageURL returns the URL of page n.
func (c Config) PageURL(n int) string {
	return c.BaseURLPrefix + strconv.Itoa(n) + c.PageSuffix
}

// PageFetcher is the single-page operation the crawler drives.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) adapter.Outcome
}

// StopReason tells why a crawl ended.
type StopReason string

// Stop reasons.
const (
	StopEndOfArchive StopReason = "end_of_archive"
	StopFailureLimit StopReason = "failure_limit"
	StopMaxPages     StopReason = "max_pages"
	StopCancelled    StopReason = "cancelled"
)

// Result is the outcome of a crawl.
type Result struct {
	// Records in page order.
	Records []record.Record
	// Pages is the page index the crawl stopped at minus StartPage.
	Pages int
	// SuccessfulPages counts pages that contributed records.
	SuccessfulPages int
	// Attempts counts FetchPage calls.
	Attempts int
	// StopReason tells why the crawl ended.
	StopReason StopReason
	// LastError is the error of the last failed attempt, if any.
	LastError error
	// Duration of the whole crawl.
	Duration time.Duration
}

// Crawler walks an archive page by page.
type Crawler struct {
	fetcher PageFetcher
	config  Config
	wait    func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger
}

// NewCrawler creates a new crawler
func NewCrawler(fetcher PageFetcher, config Config) *Crawler {
	if config.StartPage < 0 {
		config.StartPage = 0
	}
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = 3
	}
	if config.PageDelay < 0 {
		config.PageDelay = 0
	}
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}
	if config.Progress == nil {
		config.Progress = io.Discard
	}

	return &Crawler{
		fetcher: fetcher,
		config:  config,
		wait:    sleep,
		logger:  log.With().Str("component", "pagination").Logger(),
	}
}

// Config returns the effective configuration.
func (c *Crawler) Config() Config {
	return c.config
}

// Run crawls until a stop condition is met. The returned Result is never nil.
// A non-nil error is only returned when ctx is cancelled.
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	cfg := c.config

	result := &Result{Records: []record.Record{}}
	pageIndex := cfg.StartPage
	consecutiveFailures := 0

	c.logger.Info().
		Str("first_url", cfg.PageURL(pageIndex)).
		Int("max_consecutive_failures", cfg.MaxConsecutiveFailures).
		Dur("page_delay", cfg.PageDelay).
		Int("max_pages", cfg.MaxPages).
		Msg("Starting crawl")

	var runErr error
	for {
		if cfg.MaxPages > 0 && result.Attempts >= cfg.MaxPages {
			result.StopReason = StopMaxPages
			break
		}
		if err := ctx.Err(); err != nil {
			result.StopReason = StopCancelled
			runErr = err
			break
		}

		url := cfg.PageURL(pageIndex)
		pageStart := time.Now()
		outcome := c.fetcher.FetchPage(ctx, url)
		pageDuration.Observe(time.Since(pageStart).Seconds())
		result.Attempts++

		if outcome.IsEndOfArchive() {
			pagesTotal.WithLabelValues("end_of_archive").Inc()
			c.logger.Info().Int("page", pageIndex).Str("url", url).Err(outcome.Err).Msg("Reached end of archive")
			fmt.Fprintf(cfg.Progress, "Page %d: not found, end of archive\n", pageIndex)
			result.StopReason = StopEndOfArchive
			break
		}

		if outcome.Succeeded() && len(outcome.Records) > 0 {
			pagesTotal.WithLabelValues("succeeded").Inc()
			recordsTotal.Add(float64(len(outcome.Records)))
			result.Records = append(result.Records, outcome.Records...)
			result.SuccessfulPages++
			consecutiveFailures = 0

			c.logger.Debug().Int("page", pageIndex).Int("records", len(outcome.Records)).Msg("Page extracted")
			fmt.Fprintf(cfg.Progress, "Page %d: %d records\n", pageIndex, len(outcome.Records))
		} else {
			consecutiveFailures++
			reason := "no records"
			if outcome.Err != nil {
				pagesTotal.WithLabelValues("transient_failure").Inc()
				result.LastError = outcome.Err
				reason = outcome.Err.Error()
			} else {
				pagesTotal.WithLabelValues("empty").Inc()
			}

			c.logger.Warn().
				Int("page", pageIndex).
				Str("url", url).
				Err(outcome.Err).
				Int("consecutive_failures", consecutiveFailures).
				Msg("Page yielded no records")
			fmt.Fprintf(cfg.Progress, "Page %d: failed (%d/%d): %s\n",
				pageIndex, consecutiveFailures, cfg.MaxConsecutiveFailures, reason)

			if consecutiveFailures >= cfg.MaxConsecutiveFailures {
				result.StopReason = StopFailureLimit
				break
			}
		}

		pageIndex++

		if err := c.wait(ctx, cfg.PageDelay); err != nil {
			result.StopReason = StopCancelled
			runErr = err
			break
		}
	}

	result.Pages = pageIndex - cfg.StartPage
	result.Duration = time.Since(start)

	c.logger.Info().
		Str("stop_reason", string(result.StopReason)).
		Int("pages", result.Pages).
		Int("successful_pages", result.SuccessfulPages).
		Int("attempts", result.Attempts).
		Int("records", len(result.Records)).
		Dur("duration", result.Duration).
		Msg("Crawl complete")

	return result, runErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
