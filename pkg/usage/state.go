// Package usage keeps a ledger of language-model token usage. Run totals are
// kept in memory; with Redis configured, cumulative per-model totals and a
// per-run breakdown are persisted so spend can be followed across runs.
package usage

import (
	"fmt"
	"time"
)

// Redis keys for usage storage.
const (
	// RedisKeyModels is a set of every model that has recorded usage.
	RedisKeyModels = "archive:usage:models"

	// RedisKeyModelPrefix prefixes the cumulative hash of a model.
	RedisKeyModelPrefix = "archive:usage:model:"

	// RedisKeyRunPrefix prefixes the per-run hash; fields are "<model>:<counter>".
	RedisKeyRunPrefix = "archive:usage:run:"
)

// RunKeyTTL is how long per-run breakdowns are kept in Redis.
const RunKeyTTL = 7 * 24 * time.Hour

// Hash field names.
const (
	fieldRequests         = "requests"
	fieldPromptTokens     = "prompt_tokens"
	fieldCompletionTokens = "completion_tokens"
)

// Sample is the usage reported by one completion request.
type Sample struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Totals accumulates usage over many requests.
type Totals struct {
	Requests         int64 `json:"requests"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Add folds one sample into the totals.
func (t *Totals) Add(s Sample) {
	t.Requests++
	t.PromptTokens += int64(s.PromptTokens)
	t.CompletionTokens += int64(s.CompletionTokens)
}

// Merge folds other totals into t.
func (t *Totals) Merge(other Totals) {
	t.Requests += other.Requests
	t.PromptTokens += other.PromptTokens
	t.CompletionTokens += other.CompletionTokens
}

// TotalTokens returns prompt plus completion tokens.
func (t Totals) TotalTokens() int64 {
	return t.PromptTokens + t.CompletionTokens
}

// String implements fmt.Stringer.
func (t Totals) String() string {
	return fmt.Sprintf("requests=%d prompt=%d completion=%d total=%d",
		t.Requests, t.PromptTokens, t.CompletionTokens, t.TotalTokens())
}

func modelKey(model string) string {
	return RedisKeyModelPrefix + model
}

func runKey(runID string) string {
	return RedisKeyRunPrefix + runID
}
