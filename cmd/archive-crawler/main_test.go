package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/archive-crawler/internal/testutil"
	"github.com/Sternrassler/archive-crawler/pkg/config"
	"github.com/Sternrassler/archive-crawler/pkg/output"
	"github.com/Sternrassler/archive-crawler/pkg/pagination"
	"github.com/Sternrassler/archive-crawler/pkg/record"
	"github.com/Sternrassler/archive-crawler/pkg/usage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// fastConfig disables pacing so tests do not sleep.
const fastConfig = `
crawl:
  page_delay_ms: 0
llm:
  requests_per_second: 0
output:
  preview_rows: 0
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func crawlArgs(t *testing.T, archive *testutil.MockArchive, llm *testutil.MockLLM, out string) []string {
	return []string{
		"--config", writeConfig(t, fastConfig),
		"--prefix", archive.Prefix(),
		"--llm-base-url", llm.BaseURL(),
		"--output", out,
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "archive-crawler dev") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestSchemaCmd(t *testing.T) {
	out, err := execute(t, "schema")
	if err != nil {
		t.Fatalf("schema failed: %v", err)
	}
	for _, want := range []string{`"title":"NewsResult"`, "Title", "Time", "Link"} {
		if !strings.Contains(out, want) {
			t.Errorf("schema output missing %q:\n%s", want, out)
		}
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	t.Setenv("OUTPUT_PATH", "/from/env.csv")
	t.Setenv("LOG_LEVEL", "warn")

	cfgPath := writeConfig(t, `
crawl:
  max_pages: 5
  max_consecutive_failures: 4
output:
  path: "/from/file.csv"
logging:
  level: "debug"
`)

	opts := &crawlOptions{}
	cmd := &cobra.Command{Use: "test"}
	opts.register(cmd)
	if err := cmd.ParseFlags([]string{"--config", cfgPath, "--output", "/from/flag.csv", "--max-pages", "9"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Output.Path != "/from/flag.csv" {
		t.Errorf("flag should override env and file, got %q", cfg.Output.Path)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env should override file, got %q", cfg.Logging.Level)
	}
	if cfg.Crawl.MaxPages != 9 {
		t.Errorf("flag should override file, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.MaxConsecutiveFailures != 4 {
		t.Errorf("file value should survive, got %d", cfg.Crawl.MaxConsecutiveFailures)
	}
}

func TestCrawl_EndToEnd(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")

	archive := testutil.NewMockArchive()
	defer archive.Close()
	for p := 1; p <= 3; p++ {
		archive.SetListing(p, testutil.Items(p, 2))
	}

	llm := testutil.NewMockLLM()
	defer llm.Close()

	out := filepath.Join(t.TempDir(), "news.csv")
	stdout, err := execute(t, crawlArgs(t, archive, llm, out)...)
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	if !strings.Contains(stdout, "Done: 3 pages, 6 records") {
		t.Errorf("missing summary in output:\n%s", stdout)
	}
	if !strings.Contains(stdout, "=== Token Usage Summary ===") {
		t.Errorf("missing usage report in output:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Saved to: ") {
		t.Errorf("missing saved path in output:\n%s", stdout)
	}

	records, err := output.ReadCSV(out)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("Expected 6 records, got %d", len(records))
	}
	if records[0].Title != "新闻 1-1" || records[5].Title != "新闻 3-2" {
		t.Errorf("records out of order: first %q, last %q", records[0].Title, records[5].Title)
	}
	if !strings.HasPrefix(records[0].Link, archive.URL()+"/n1/") {
		t.Errorf("link should be absolute, got %q", records[0].Link)
	}

	if got := archive.Requested(); len(got) != 4 || got[3] != 4 {
		t.Errorf("Expected pages 1-4 requested, got %v", got)
	}
	if llm.GetRequestCount() != 3 {
		t.Errorf("Expected 3 extraction requests, got %d", llm.GetRequestCount())
	}
	if llm.LastAuth != "Bearer sk-test" {
		t.Errorf("unexpected Authorization header %q", llm.LastAuth)
	}
}

func TestCrawl_NoData(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")

	archive := testutil.NewMockArchive()
	defer archive.Close()
	llm := testutil.NewMockLLM()
	defer llm.Close()

	out := filepath.Join(t.TempDir(), "news.csv")
	stdout, err := execute(t, crawlArgs(t, archive, llm, out)...)
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	if !strings.Contains(stdout, "Done: 0 pages, 0 records") {
		t.Errorf("unexpected summary:\n%s", stdout)
	}
	if !strings.Contains(stdout, "No data to save.") {
		t.Errorf("missing no-data message:\n%s", stdout)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("CSV must not be created without records")
	}
	if llm.GetRequestCount() != 0 {
		t.Errorf("Expected no extraction requests, got %d", llm.GetRequestCount())
	}
}

func TestCrawl_FailureLimit(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-test")

	archive := testutil.NewMockArchive()
	defer archive.Close()
	for p := 1; p <= 10; p++ {
		archive.SetStatus(p, http.StatusInternalServerError)
	}
	llm := testutil.NewMockLLM()
	defer llm.Close()

	out := filepath.Join(t.TempDir(), "news.csv")
	stdout, err := execute(t, crawlArgs(t, archive, llm, out)...)
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	if archive.GetRequestCount() != 3 {
		t.Errorf("Expected 3 page requests, got %d", archive.GetRequestCount())
	}
	if !strings.Contains(stdout, "stopped: failure_limit") {
		t.Errorf("unexpected summary:\n%s", stdout)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("stdout closed")
}

func TestFinish_ReportWriteFailureIsLogged(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.Path = filepath.Join(t.TempDir(), "news.csv")
	cfg.Output.PreviewRows = 0

	tracker := usage.NewTracker("run-1", nil, zerolog.Nop())
	if err := tracker.Record(context.Background(), usage.Sample{Model: "qwen-flash", PromptTokens: 10, CompletionTokens: 2}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	result := &pagination.Result{
		Records:    []record.Record{{Title: "标题", Time: "2024-05-01", Link: "http://x/1.html"}},
		Pages:      1,
		StopReason: pagination.StopEndOfArchive,
	}

	logBuf := &bytes.Buffer{}
	err := finish(failingWriter{}, cfg, result, tracker, zerolog.New(logBuf))
	if err != nil {
		t.Fatalf("finish() error = %v", err)
	}

	if !strings.Contains(logBuf.String(), "Failed to write usage report") {
		t.Errorf("Expected usage report failure to be logged, got %q", logBuf.String())
	}
	if !strings.Contains(logBuf.String(), `"usage":"requests=1 prompt=10 completion=2 total=12"`) {
		t.Errorf("Expected run usage in log, got %q", logBuf.String())
	}

	records, err := output.ReadCSV(cfg.Output.Path)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}
}

func TestCrawl_ConfigErrors(t *testing.T) {
	archive := testutil.NewMockArchive()
	defer archive.Close()
	llm := testutil.NewMockLLM()
	defer llm.Close()

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv("DASHSCOPE_API_KEY", "")
		_, err := execute(t, crawlArgs(t, archive, llm, filepath.Join(t.TempDir(), "x.csv"))...)
		if !errors.Is(err, config.ErrMissingAPIKey) {
			t.Errorf("Expected ErrMissingAPIKey, got %v", err)
		}
	})

	t.Run("invalid failure cap", func(t *testing.T) {
		t.Setenv("DASHSCOPE_API_KEY", "sk-test")
		args := append(crawlArgs(t, archive, llm, filepath.Join(t.TempDir(), "x.csv")), "--max-failures", "0")
		_, err := execute(t, args...)
		if !errors.Is(err, config.ErrInvalidFailureLimit) {
			t.Errorf("Expected ErrInvalidFailureLimit, got %v", err)
		}
	})

	t.Run("invalid selector", func(t *testing.T) {
		t.Setenv("DASHSCOPE_API_KEY", "sk-test")
		args := append(crawlArgs(t, archive, llm, filepath.Join(t.TempDir(), "x.csv")), "--selector", "[class=")
		_, err := execute(t, args...)
		if !errors.Is(err, config.ErrInvalidSelector) {
			t.Errorf("Expected ErrInvalidSelector, got %v", err)
		}
	})

	if archive.GetRequestCount() != 0 {
		t.Errorf("config errors must not reach the archive, got %d requests", archive.GetRequestCount())
	}
}

func TestInspectCmd(t *testing.T) {
	archive := testutil.NewMockArchive()
	defer archive.Close()
	archive.SetListing(2, testutil.Items(2, 1))

	stdout, err := execute(t, "inspect", "2", "--prefix", archive.Prefix())
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}

	for _, want := range []string{
		"Status:   200",
		"(1 matches)",
		"[新闻 2-1](" + archive.URL() + "/n1/2024/p2/c1003-1.html)",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("inspect output missing %q:\n%s", want, stdout)
		}
	}

	if _, err := execute(t, "inspect", "99", "--prefix", archive.Prefix()); err == nil {
		t.Error("inspect of a missing page should fail")
	}
	if _, err := execute(t, "inspect", "abc"); err == nil {
		t.Error("inspect with a non-numeric page should fail")
	}
}
