// Package config provides configuration management for the archive crawler.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/archive-crawler/pkg/logging"
	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrMissingBaseURL        = errors.New("archive.base_url_prefix is required")
	ErrInvalidBaseURL        = errors.New("archive.base_url_prefix must be an absolute http(s) URL")
	ErrInvalidSelector       = errors.New("archive.selector is not a valid CSS selector")
	ErrInvalidArchiveTimeout = errors.New("archive.timeout_sec must be at least 1")
	ErrInvalidStartPage      = errors.New("crawl.start_page must be non-negative")
	ErrInvalidFailureLimit   = errors.New("crawl.max_consecutive_failures must be at least 1")
	ErrInvalidPageDelay      = errors.New("crawl.page_delay_ms must be non-negative")
	ErrInvalidMaxPages       = errors.New("crawl.max_pages must be non-negative")
	ErrMissingLLMBaseURL     = errors.New("llm.base_url is required")
	ErrMissingModel          = errors.New("llm.model is required")
	ErrMissingAPIKeyEnv      = errors.New("llm.api_key_env is required")
	ErrInvalidLLMTimeout     = errors.New("llm.timeout_sec must be at least 1")
	ErrInvalidRequestRate    = errors.New("llm.requests_per_second must be non-negative")
	ErrMissingOutputPath     = errors.New("output.path is required")
	ErrInvalidPreviewRows    = errors.New("output.preview_rows must be non-negative")
	ErrInvalidLogLevel       = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidRedisURL       = errors.New("redis.url must be a redis:// or rediss:// URL")
	ErrMissingAPIKey         = errors.New("language model API key is not set")
)

// Config represents the complete crawler configuration.
type Config struct {
	Archive ArchiveConfig `yaml:"archive"`
	Crawl   CrawlConfig   `yaml:"crawl"`
	LLM     LLMConfig     `yaml:"llm"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Redis   RedisConfig   `yaml:"redis"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ArchiveConfig describes the archive being crawled.
type ArchiveConfig struct {
	BaseURLPrefix string `yaml:"base_url_prefix"`
	PageSuffix    string `yaml:"page_suffix"`
	Selector      string `yaml:"selector"`
	UserAgent     string `yaml:"user_agent"`
	TimeoutSec    int    `yaml:"timeout_sec"`
}

// CrawlConfig controls the pagination loop.
type CrawlConfig struct {
	StartPage              int `yaml:"start_page"`
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
	PageDelayMs            int `yaml:"page_delay_ms"`
	MaxPages               int `yaml:"max_pages"`
}

// LLMConfig configures the extraction endpoint.
type LLMConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Instruction       string  `yaml:"instruction"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
}

// OutputConfig defines output behavior.
type OutputConfig struct {
	Path        string `yaml:"path"`
	PreviewRows int    `yaml:"preview_rows"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// RedisConfig enables the persistent usage ledger when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the configuration for the People's Daily opinion archive.
func DefaultConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			BaseURLPrefix: "http://opinion.people.com.cn/GB/8213/353915/353916/index",
			PageSuffix:    ".html",
			Selector:      "[class='t11']",
			UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			TimeoutSec:    30,
		},
		Crawl: CrawlConfig{
			StartPage:              1,
			MaxConsecutiveFailures: 3,
			PageDelayMs:            1000,
			MaxPages:               0,
		},
		LLM: LLMConfig{
			BaseURL:           "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Model:             "qwen-flash",
			APIKeyEnv:         "DASHSCOPE_API_KEY",
			Instruction:       "Extract all the news with 'Title','Time','Link'.",
			TimeoutSec:        120,
			RequestsPerSecond: 1,
		},
		Output: OutputConfig{
			Path:        "news_data.csv",
			PreviewRows: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to YAML file.
func (c *Config) SaveConfig(filepath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides settings from the environment: LOG_LEVEL, REDIS_URL,
// OUTPUT_PATH and METRICS_ADDR. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := getenv("OUTPUT_PATH"); v != "" {
		c.Output.Path = v
	}
	if v := getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Archive
	if c.Archive.BaseURLPrefix == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.Archive.BaseURLPrefix)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}
	if c.Archive.Selector != "" {
		if _, err := cascadia.Compile(c.Archive.Selector); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSelector, err)
		}
	}
	if c.Archive.TimeoutSec < 1 {
		return ErrInvalidArchiveTimeout
	}

	// Crawl
	if c.Crawl.StartPage < 0 {
		return ErrInvalidStartPage
	}
	if c.Crawl.MaxConsecutiveFailures < 1 {
		return ErrInvalidFailureLimit
	}
	if c.Crawl.PageDelayMs < 0 {
		return ErrInvalidPageDelay
	}
	if c.Crawl.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	// LLM
	if c.LLM.BaseURL == "" {
		return ErrMissingLLMBaseURL
	}
	if c.LLM.Model == "" {
		return ErrMissingModel
	}
	if c.LLM.APIKeyEnv == "" {
		return ErrMissingAPIKeyEnv
	}
	if c.LLM.TimeoutSec < 1 {
		return ErrInvalidLLMTimeout
	}
	if c.LLM.RequestsPerSecond < 0 {
		return ErrInvalidRequestRate
	}

	// Output
	if strings.TrimSpace(c.Output.Path) == "" {
		return ErrMissingOutputPath
	}
	if c.Output.PreviewRows < 0 {
		return ErrInvalidPreviewRows
	}

	// Logging
	if !logging.ValidLevel(logging.LogLevel(c.Logging.Level)) {
		return ErrInvalidLogLevel
	}

	// Redis
	if c.Redis.URL != "" {
		ru, err := url.Parse(c.Redis.URL)
		if err != nil || (ru.Scheme != "redis" && ru.Scheme != "rediss") {
			return ErrInvalidRedisURL
		}
	}

	return nil
}

// APIKey reads the language model API key from the configured environment variable.
func (c *Config) APIKey(getenv func(string) string) (string, error) {
	key := strings.TrimSpace(getenv(c.LLM.APIKeyEnv))
	if key == "" {
		return "", fmt.Errorf("%w: set %s", ErrMissingAPIKey, c.LLM.APIKeyEnv)
	}
	return key, nil
}

// PageDelay returns the pause between pages.
func (c *Config) PageDelay() time.Duration {
	return time.Duration(c.Crawl.PageDelayMs) * time.Millisecond
}

// ArchiveTimeout returns the page fetch timeout.
func (c *Config) ArchiveTimeout() time.Duration {
	return time.Duration(c.Archive.TimeoutSec) * time.Second
}

// LLMTimeout returns the extraction request timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Archive: %s<N>%s, Model: %s, Output: %s}",
		c.Archive.BaseURLPrefix,
		c.Archive.PageSuffix,
		c.LLM.Model,
		c.Output.Path,
	)
}
