package usage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Tracker records token usage for one crawl run.
type Tracker struct {
	mu     sync.Mutex
	runID  string
	run    map[string]*Totals
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a usage tracker. redisClient may be nil, in which case
// usage is only kept in memory for the current run.
func NewTracker(runID string, redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		runID:  runID,
		run:    make(map[string]*Totals),
		redis:  redisClient,
		logger: logger,
	}
}

// Record adds a sample to the run totals and, when Redis is configured,
// persists it. The in-memory totals are updated even if Redis fails.
func (t *Tracker) Record(ctx context.Context, s Sample) error {
	if s.Model == "" {
		s.Model = "unknown"
	}

	t.mu.Lock()
	totals, ok := t.run[s.Model]
	if !ok {
		totals = &Totals{}
		t.run[s.Model] = totals
	}
	totals.Add(s)
	t.mu.Unlock()

	t.logger.Debug().
		Str("model", s.Model).
		Int("prompt_tokens", s.PromptTokens).
		Int("completion_tokens", s.CompletionTokens).
		Msg("Usage recorded")

	if t.redis == nil {
		return nil
	}

	// Store in Redis atomically
	pipe := t.redis.TxPipeline()
	pipe.SAdd(ctx, RedisKeyModels, s.Model)
	pipe.HIncrBy(ctx, modelKey(s.Model), fieldRequests, 1)
	pipe.HIncrBy(ctx, modelKey(s.Model), fieldPromptTokens, int64(s.PromptTokens))
	pipe.HIncrBy(ctx, modelKey(s.Model), fieldCompletionTokens, int64(s.CompletionTokens))
	if t.runID != "" {
		pipe.HIncrBy(ctx, runKey(t.runID), s.Model+":"+fieldRequests, 1)
		pipe.HIncrBy(ctx, runKey(t.runID), s.Model+":"+fieldPromptTokens, int64(s.PromptTokens))
		pipe.HIncrBy(ctx, runKey(t.runID), s.Model+":"+fieldCompletionTokens, int64(s.CompletionTokens))
		pipe.Expire(ctx, runKey(t.runID), RunKeyTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store usage in redis: %w", err)
	}

	return nil
}

// Report is a usage summary.
type Report struct {
	RunID string

	// Run holds this run's totals per model.
	Run map[string]Totals

	// Cumulative holds all-time totals per model; nil without Redis.
	Cumulative map[string]Totals
}

// RunTotal sums the run totals over all models.
func (r *Report) RunTotal() Totals {
	var total Totals
	for _, t := range r.Run {
		total.Merge(t)
	}
	return total
}

// Report snapshots the run totals and, with Redis, loads cumulative totals.
func (t *Tracker) Report(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID: t.runID,
		Run:   make(map[string]Totals),
	}

	t.mu.Lock()
	for model, totals := range t.run {
		report.Run[model] = *totals
	}
	t.mu.Unlock()

	if t.redis == nil {
		return report, nil
	}

	models, err := t.redis.SMembers(ctx, RedisKeyModels).Result()
	if err != nil {
		return report, fmt.Errorf("get usage models: %w", err)
	}

	report.Cumulative = make(map[string]Totals, len(models))
	for _, model := range models {
		fields, err := t.redis.HGetAll(ctx, modelKey(model)).Result()
		if err != nil {
			return report, fmt.Errorf("get usage for model %s: %w", model, err)
		}
		totals, err := parseTotals(fields)
		if err != nil {
			return report, fmt.Errorf("parse usage for model %s: %w", model, err)
		}
		report.Cumulative[model] = totals
	}

	return report, nil
}

func parseTotals(fields map[string]string) (Totals, error) {
	var totals Totals
	for name, raw := range fields {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Totals{}, fmt.Errorf("field %s: %w", name, err)
		}
		switch name {
		case fieldRequests:
			totals.Requests = v
		case fieldPromptTokens:
			totals.PromptTokens = v
		case fieldCompletionTokens:
			totals.CompletionTokens = v
		}
	}
	return totals, nil
}

// WriteTo prints the report as a plain text table.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	b.WriteString("=== Token Usage Summary ===\n")
	writeSection(&b, "This run", r.Run)
	if r.Cumulative != nil {
		writeSection(&b, "All runs", r.Cumulative)
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func writeSection(b *strings.Builder, title string, totals map[string]Totals) {
	fmt.Fprintf(b, "%s:\n", title)
	if len(totals) == 0 {
		b.WriteString("  no requests\n")
		return
	}

	models := make([]string, 0, len(totals))
	for model := range totals {
		models = append(models, model)
	}
	sort.Strings(models)

	fmt.Fprintf(b, "  %-20s %10s %14s %18s %14s\n", "Model", "Requests", "Prompt", "Completion", "Total")
	var sum Totals
	for _, model := range models {
		t := totals[model]
		sum.Merge(t)
		fmt.Fprintf(b, "  %-20s %10d %14d %18d %14d\n", model, t.Requests, t.PromptTokens, t.CompletionTokens, t.TotalTokens())
	}
	if len(models) > 1 {
		fmt.Fprintf(b, "  %-20s %10d %14d %18d %14d\n", "(all)", sum.Requests, sum.PromptTokens, sum.CompletionTokens, sum.TotalTokens())
	}
}
