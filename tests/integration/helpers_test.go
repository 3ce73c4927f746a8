package integration

import (
	"testing"
	"time"

	"github.com/Sternrassler/archive-crawler/internal/testutil"
	"github.com/Sternrassler/archive-crawler/pkg/adapter"
	"github.com/Sternrassler/archive-crawler/pkg/extract"
	"github.com/Sternrassler/archive-crawler/pkg/fetch"
	"github.com/Sternrassler/archive-crawler/pkg/pagination"
)

const selector = "[class='t11']"

// newStack wires the real fetch, extract, adapter and pagination packages
// against the mock archive and mock LLM.
func newStack(t *testing.T, archive *testutil.MockArchive, llm *testutil.MockLLM, recorder extract.Recorder) *pagination.Crawler {
	t.Helper()

	fetchCfg := fetch.DefaultConfig()
	fetchCfg.Selector = selector
	fetchCfg.Timeout = 5 * time.Second
	fetcher, err := fetch.New(fetchCfg)
	if err != nil {
		t.Fatalf("fetch.New failed: %v", err)
	}

	extractCfg := extract.DefaultConfig()
	extractCfg.BaseURL = llm.BaseURL()
	extractCfg.APIKey = "sk-integration"
	extractCfg.Timeout = 5 * time.Second
	extractCfg.RequestsPerSecond = 0
	extractor, err := extract.New(extractCfg, recorder)
	if err != nil {
		t.Fatalf("extract.New failed: %v", err)
	}

	cfg := pagination.DefaultConfig()
	cfg.BaseURLPrefix = archive.Prefix()
	cfg.PageDelay = 0

	return pagination.NewCrawler(adapter.New(fetcher, extractor, selector), cfg)
}
