// Package extract turns rendered listing pages into records by calling an
// OpenAI-compatible chat completion endpoint with the shared record schema.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/archive-crawler/pkg/record"
	"github.com/Sternrassler/archive-crawler/pkg/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultInstruction is the extraction instruction used when none is configured.
const DefaultInstruction = "Extract all the news with 'Title','Time','Link'."

// Config holds the extraction client configuration.
type Config struct {
	// BaseURL of the OpenAI-compatible API, without the /chat/completions suffix.
	BaseURL string

	// Model name sent with every request.
	Model string

	// APIKey is sent as a bearer token.
	APIKey string

	// Instruction tells the model what to extract.
	Instruction string

	// Timeout bounds one completion request.
	Timeout time.Duration

	// RequestsPerSecond paces completion requests (0 disables pacing).
	RequestsPerSecond float64

	// MaxTokens caps the completion length (0 leaves it to the provider).
	MaxTokens int

	// Temperature for sampling.
	Temperature float64
}

// DefaultConfig returns the DashScope compatible-mode defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:             "qwen-flash",
		Instruction:       DefaultInstruction,
		Timeout:           120 * time.Second,
		RequestsPerSecond: 1,
		Temperature:       0,
	}
}

// Recorder receives token usage for each completed request.
type Recorder interface {
	Record(ctx context.Context, s usage.Sample) error
}

// Request is one page to extract from.
type Request struct {
	URL      string
	Selector string
	Content  string
}

// Client calls the completion endpoint once per Extract. It never retries.
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    *rate.Limiter
	usage      Recorder
	logger     zerolog.Logger
}

// New creates an extraction client. recorder may be nil.
func New(cfg Config, recorder Recorder) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Instruction == "" {
		cfg.Instruction = DefaultInstruction
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		limiter:    limiter,
		usage:      recorder,
		logger:     log.With().Str("component", "extract").Str("model", cfg.Model).Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Extract sends the page to the model and parses the returned records.
func (c *Client) Extract(ctx context.Context, req Request) ([]record.Record, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	start := time.Now()
	text, err := c.complete(ctx, req)
	llmRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		llmRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	records, err := ParseRecords(text)
	if err != nil {
		llmRequestsTotal.WithLabelValues("malformed").Inc()
		c.logger.Warn().Err(err).Str("url", req.URL).Msg("Extraction output rejected")
		return nil, err
	}

	llmRequestsTotal.WithLabelValues("ok").Inc()
	c.logger.Debug().
		Str("url", req.URL).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Extraction complete")

	return records, nil
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt()},
			{Role: "user", Content: userPrompt(c.config.Instruction, req)},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))}
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if cr.Error != nil {
		return "", &APIError{StatusCode: resp.StatusCode, Message: cr.Error.Message}
	}

	c.recordUsage(ctx, cr.Usage.PromptTokens, cr.Usage.CompletionTokens)

	if len(cr.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return cr.Choices[0].Message.Content, nil
}

func (c *Client) recordUsage(ctx context.Context, prompt, completion int) {
	llmTokensTotal.WithLabelValues("prompt").Add(float64(prompt))
	llmTokensTotal.WithLabelValues("completion").Add(float64(completion))

	if c.usage == nil {
		return
	}
	err := c.usage.Record(ctx, usage.Sample{
		Model:            c.config.Model,
		PromptTokens:     prompt,
		CompletionTokens: completion,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record usage")
	}
}

func systemPrompt() string {
	return "You extract structured data from web page content. " +
		"Each extracted item must follow this JSON schema:\n" + record.JSONSchema() + "\n" +
		"Reply with a JSON array of such objects and nothing else. " +
		"Use an empty string for any field that is not present. " +
		"Reply with [] when the content holds no items."
}

func userPrompt(instruction string, req Request) string {
	var b strings.Builder
	b.WriteString("URL: " + req.URL + "\n")
	if req.Selector != "" {
		b.WriteString("Selector: " + req.Selector + "\n")
	}
	b.WriteString("\nInstruction: " + instruction + "\n")
	b.WriteString("Fields: " + strings.Join(record.Header(), ", ") + "\n\n")
	b.WriteString("Content (" + strconv.Itoa(len(req.Content)) + " bytes, markdown):\n")
	b.WriteString(req.Content)
	return b.String()
}
