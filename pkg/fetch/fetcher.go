// Package fetch retrieves archive listing pages, scopes them to a CSS selector
// and renders the selection as compact markdown for extraction.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
)

// Config holds the page fetcher configuration.
type Config struct {
	// Selector is the CSS selector that scopes each page to its listing area.
	// An empty selector keeps the whole body.
	Selector string

	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds a single request including the body read.
	Timeout time.Duration

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
}

// DefaultConfig returns the fetcher defaults for the people.com.cn opinion archive.
func DefaultConfig() Config {
	return Config{
		Selector:     "[class='t11']",
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		Timeout:      30 * time.Second,
		MaxBodyBytes: 4 << 20,
	}
}

// Page is a fetched listing page.
type Page struct {
	URL        string
	StatusCode int
	Title      string

	// Content is the selected region rendered as markdown with absolute links.
	Content string

	// Matches is the number of elements the selector matched.
	Matches int

	FetchedAt time.Time
	Duration  time.Duration
}

// Fetcher performs single-attempt page fetches. It never retries.
type Fetcher struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a page fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4 << 20
	}
	if cfg.Selector != "" {
		// goquery panics on invalid selectors; reject them up front.
		if err := compileSelector(cfg.Selector); err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", cfg.Selector, err)
		}
	}

	return &Fetcher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     log.With().Str("component", "fetch").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

// Selector returns the configured CSS selector.
func (f *Fetcher) Selector() string {
	return f.config.Selector
}

// Fetch downloads one page. Failures are returned as *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	start := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(start).Seconds())
	}()

	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, f.fail(&Error{URL: rawURL, Class: ErrorClassClient, Message: "invalid url", Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, f.fail(&Error{URL: rawURL, Class: ErrorClassClient, Message: "create request", Err: err})
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	f.logger.Debug().Str("url", rawURL).Msg("Fetching page")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		fetchRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, f.fail(&Error{URL: rawURL, Class: ErrorClassNetwork, Message: "request failed", Err: err})
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if class := classifyStatus(resp.StatusCode); class != "" {
		return nil, f.fail(&Error{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		return nil, f.fail(&Error{URL: rawURL, StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Message: "read body", Err: err})
	}

	decoded, err := charset.NewReader(bytes.NewReader(body), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, f.fail(&Error{URL: rawURL, StatusCode: resp.StatusCode, Class: ErrorClassContent, Message: "decode charset", Err: err})
	}

	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return nil, f.fail(&Error{URL: rawURL, StatusCode: resp.StatusCode, Class: ErrorClassContent, Message: "parse html", Err: err})
	}

	title := strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
	if isSoftNotFound(title) {
		return nil, f.fail(&Error{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNotFound,
			Message:    "soft 404: " + title,
		})
	}

	selector := f.config.Selector
	if selector == "" {
		selector = "body"
	}
	sel := doc.Find(selector)

	page := &Page{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Title:      title,
		Content:    RenderMarkdown(sel, base),
		Matches:    sel.Length(),
		FetchedAt:  start,
		Duration:   time.Since(start),
	}

	f.logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("matches", page.Matches).
		Int("content_bytes", len(page.Content)).
		Dur("duration", page.Duration).
		Msg("Page fetched")

	return page, nil
}

func (f *Fetcher) fail(err *Error) error {
	fetchErrorsTotal.WithLabelValues(string(err.Class)).Inc()
	f.logger.Debug().
		Str("url", err.URL).
		Int("status", err.StatusCode).
		Str("error_class", string(err.Class)).
		Msg("Error classified")
	return err
}

func isSoftNotFound(title string) bool {
	return title != "" && signalsNotFound(title)
}
