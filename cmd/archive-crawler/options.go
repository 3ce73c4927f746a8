package main

import (
	"os"
	"time"

	"github.com/Sternrassler/archive-crawler/pkg/config"
	"github.com/spf13/cobra"
)

// crawlOptions holds command-line overrides. Flags that were not set leave the
// file and environment configuration alone.
type crawlOptions struct {
	configPath string

	prefix      string
	suffix      string
	selector    string
	startPage   int
	maxPages    int
	maxFailures int
	delay       time.Duration

	model   string
	baseURL string

	output  string
	preview int

	redisURL    string
	metricsAddr string

	logLevel string
	pretty   bool
}

func (o *crawlOptions) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "path to YAML config file")
	f.StringVar(&o.prefix, "prefix", "", "page URL prefix (everything before the page number)")
	f.StringVar(&o.suffix, "suffix", "", "page URL suffix (everything after the page number)")
	f.StringVar(&o.selector, "selector", "", "CSS selector scoping each page to its listing")
	f.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.BoolVar(&o.pretty, "pretty", false, "human-readable console logs")

	cf := cmd.Flags()
	cf.IntVar(&o.startPage, "start-page", 0, "first page number")
	cf.IntVar(&o.maxPages, "max-pages", 0, "stop after this many pages (0 = until the archive ends)")
	cf.IntVar(&o.maxFailures, "max-failures", 0, "stop after this many failed pages in a row")
	cf.DurationVar(&o.delay, "delay", 0, "pause between pages")
	cf.StringVar(&o.model, "model", "", "language model name")
	cf.StringVar(&o.baseURL, "llm-base-url", "", "OpenAI-compatible API base URL")
	cf.StringVarP(&o.output, "output", "o", "", "CSV output path")
	cf.IntVar(&o.preview, "preview", -1, "rows to preview after the crawl (0 disables)")
	cf.StringVar(&o.redisURL, "redis-url", "", "Redis URL for the persistent usage ledger")
	cf.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// loadConfig layers defaults, the config file, the environment and finally
// the flags that were set on cmd.
func (o *crawlOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.ApplyEnv(os.Getenv)

	changed := cmd.Flags().Changed
	if changed("prefix") {
		cfg.Archive.BaseURLPrefix = o.prefix
	}
	if changed("suffix") {
		cfg.Archive.PageSuffix = o.suffix
	}
	if changed("selector") {
		cfg.Archive.Selector = o.selector
	}
	if changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if changed("pretty") {
		cfg.Logging.Pretty = o.pretty
	}
	if changed("start-page") {
		cfg.Crawl.StartPage = o.startPage
	}
	if changed("max-pages") {
		cfg.Crawl.MaxPages = o.maxPages
	}
	if changed("max-failures") {
		cfg.Crawl.MaxConsecutiveFailures = o.maxFailures
	}
	if changed("delay") {
		cfg.Crawl.PageDelayMs = int(o.delay / time.Millisecond)
	}
	if changed("model") {
		cfg.LLM.Model = o.model
	}
	if changed("llm-base-url") {
		cfg.LLM.BaseURL = o.baseURL
	}
	if changed("output") {
		cfg.Output.Path = o.output
	}
	if changed("preview") {
		cfg.Output.PreviewRows = o.preview
	}
	if changed("redis-url") {
		cfg.Redis.URL = o.redisURL
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
