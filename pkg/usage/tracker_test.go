package usage

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestTotals_Add(t *testing.T) {
	var totals Totals
	totals.Add(Sample{Model: "m", PromptTokens: 100, CompletionTokens: 20})
	totals.Add(Sample{Model: "m", PromptTokens: 50, CompletionTokens: 5})

	if totals.Requests != 2 {
		t.Errorf("Requests = %d, want 2", totals.Requests)
	}
	if totals.PromptTokens != 150 {
		t.Errorf("PromptTokens = %d, want 150", totals.PromptTokens)
	}
	if totals.CompletionTokens != 25 {
		t.Errorf("CompletionTokens = %d, want 25", totals.CompletionTokens)
	}
	if totals.TotalTokens() != 175 {
		t.Errorf("TotalTokens() = %d, want 175", totals.TotalTokens())
	}
	if got, want := totals.String(), "requests=2 prompt=150 completion=25 total=175"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTracker_RecordInMemory(t *testing.T) {
	tracker := NewTracker("run-1", nil, zerolog.Nop())
	ctx := context.Background()

	samples := []Sample{
		{Model: "qwen-flash", PromptTokens: 1000, CompletionTokens: 200},
		{Model: "qwen-flash", PromptTokens: 800, CompletionTokens: 100},
		{Model: "gpt-4o-mini", PromptTokens: 10, CompletionTokens: 1},
		{PromptTokens: 1, CompletionTokens: 1},
	}
	for _, s := range samples {
		if err := tracker.Record(ctx, s); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	report, err := tracker.Report(ctx)
	if err != nil {
		t.Fatalf("Report() failed: %v", err)
	}

	if report.RunID != "run-1" {
		t.Errorf("RunID = %q", report.RunID)
	}
	if report.Cumulative != nil {
		t.Error("Cumulative totals should be nil without Redis")
	}

	qwen := report.Run["qwen-flash"]
	if qwen.Requests != 2 || qwen.PromptTokens != 1800 || qwen.CompletionTokens != 300 {
		t.Errorf("qwen-flash totals = %+v", qwen)
	}
	if report.Run["unknown"].Requests != 1 {
		t.Error("Samples without a model should be recorded as unknown")
	}

	total := report.RunTotal()
	if total.Requests != 4 {
		t.Errorf("RunTotal().Requests = %d, want 4", total.Requests)
	}
	if total.TotalTokens() != 2113 {
		t.Errorf("RunTotal().TotalTokens() = %d, want 2113", total.TotalTokens())
	}
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tracker := NewTracker("run", nil, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Record(ctx, Sample{Model: "m", PromptTokens: 2, CompletionTokens: 1})
		}()
	}
	wg.Wait()

	report, _ := tracker.Report(ctx)
	if got := report.Run["m"].Requests; got != 50 {
		t.Errorf("Requests = %d, want 50", got)
	}
}

func TestTracker_RedisFailureKeepsMemoryTotals(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer redisClient.Close()

	tracker := NewTracker("run", redisClient, zerolog.Nop())
	ctx := context.Background()

	err := tracker.Record(ctx, Sample{Model: "m", PromptTokens: 5, CompletionTokens: 5})
	if err == nil {
		t.Fatal("Expected redis error")
	}

	tracker.mu.Lock()
	got := tracker.run["m"].Requests
	tracker.mu.Unlock()
	if got != 1 {
		t.Errorf("In-memory requests = %d, want 1", got)
	}
}

func TestReport_WriteTo(t *testing.T) {
	report := &Report{
		RunID: "r",
		Run: map[string]Totals{
			"qwen-flash": {Requests: 3, PromptTokens: 300, CompletionTokens: 30},
			"other":      {Requests: 1, PromptTokens: 10, CompletionTokens: 1},
		},
	}

	var buf bytes.Buffer
	if _, err := report.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Token Usage Summary", "This run", "qwen-flash", "330", "(all)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "All runs") {
		t.Error("All runs section should be omitted without cumulative totals")
	}
}

func TestReport_WriteToEmpty(t *testing.T) {
	var buf bytes.Buffer
	(&Report{Run: map[string]Totals{}}).WriteTo(&buf)

	if !strings.Contains(buf.String(), "no requests") {
		t.Errorf("Expected empty marker, got %q", buf.String())
	}
}

func TestParseTotals(t *testing.T) {
	totals, err := parseTotals(map[string]string{
		"requests":          "4",
		"prompt_tokens":     "400",
		"completion_tokens": "40",
		"ignored":           "1",
	})
	if err != nil {
		t.Fatalf("parseTotals() failed: %v", err)
	}
	if totals != (Totals{Requests: 4, PromptTokens: 400, CompletionTokens: 40}) {
		t.Errorf("parseTotals() = %+v", totals)
	}

	if _, err := parseTotals(map[string]string{"requests": "x"}); err == nil {
		t.Error("Expected error for non-numeric field")
	}
}
