package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Sternrassler/archive-crawler/pkg/extract"
	"github.com/Sternrassler/archive-crawler/pkg/fetch"
	"github.com/Sternrassler/archive-crawler/pkg/record"
)

type fakeSource struct {
	page *fetch.Page
	err  error
}

func (f *fakeSource) Fetch(_ context.Context, url string) (*fetch.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.page
	p.URL = url
	return &p, nil
}

type fakeExtractor struct {
	records []record.Record
	err     error
	calls   int
	last    extract.Request
}

func (f *fakeExtractor) Extract(_ context.Context, req extract.Request) ([]record.Record, error) {
	f.calls++
	f.last = req
	return f.records, f.err
}

func TestFetchPage(t *testing.T) {
	page := &fetch.Page{StatusCode: 200, Content: "[a](http://x/a) [2024]", Matches: 1}
	recs := []record.Record{{Title: "a", Time: "2024", Link: "http://x/a"}}

	tests := []struct {
		name        string
		source      *fakeSource
		extractor   *fakeExtractor
		wantStatus  Status
		wantRecords int
		wantCalls   int
	}{
		{
			name:        "success",
			source:      &fakeSource{page: page},
			extractor:   &fakeExtractor{records: recs},
			wantStatus:  Succeeded,
			wantRecords: 1,
			wantCalls:   1,
		},
		{
			name:       "success with no records",
			source:     &fakeSource{page: page},
			extractor:  &fakeExtractor{records: nil},
			wantStatus: Succeeded,
			wantCalls:  1,
		},
		{
			name:       "http 404",
			source:     &fakeSource{err: &fetch.Error{StatusCode: http.StatusNotFound, Class: fetch.ErrorClassNotFound, Message: "404 Not Found"}},
			extractor:  &fakeExtractor{},
			wantStatus: EndOfArchive,
		},
		{
			name:       "not found message from network layer",
			source:     &fakeSource{err: fmt.Errorf("navigation failed: net::ERR_HTTP_RESPONSE_CODE_FAILURE 404")},
			extractor:  &fakeExtractor{},
			wantStatus: EndOfArchive,
		},
		{
			name:       "server error",
			source:     &fakeSource{err: &fetch.Error{StatusCode: http.StatusBadGateway, Class: fetch.ErrorClassServer, Message: "502 Bad Gateway"}},
			extractor:  &fakeExtractor{},
			wantStatus: TransientFailure,
		},
		{
			name:       "network error",
			source:     &fakeSource{err: &fetch.Error{Class: fetch.ErrorClassNetwork, Message: "request failed", Err: errors.New("connection reset")}},
			extractor:  &fakeExtractor{},
			wantStatus: TransientFailure,
		},
		{
			name:       "empty selection",
			source:     &fakeSource{page: &fetch.Page{StatusCode: 200}},
			extractor:  &fakeExtractor{records: recs},
			wantStatus: TransientFailure,
		},
		{
			name:       "extraction error",
			source:     &fakeSource{page: page},
			extractor:  &fakeExtractor{err: extract.ErrMalformedOutput},
			wantStatus: TransientFailure,
			wantCalls:  1,
		},
		{
			name:       "extraction error mentioning 404 stays transient",
			source:     &fakeSource{page: page},
			extractor:  &fakeExtractor{err: &extract.APIError{StatusCode: 404, Message: "model not found"}},
			wantStatus: TransientFailure,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.source, tt.extractor, "[class='t11']")
			out := a.FetchPage(context.Background(), "http://x/index1.html")

			if out.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v (err: %v)", out.Status, tt.wantStatus, out.Err)
			}
			if len(out.Records) != tt.wantRecords {
				t.Errorf("len(Records) = %d, want %d", len(out.Records), tt.wantRecords)
			}
			if tt.extractor.calls != tt.wantCalls {
				t.Errorf("extractor calls = %d, want %d", tt.extractor.calls, tt.wantCalls)
			}
			if out.Status != Succeeded && out.Err == nil {
				t.Error("failed outcome should carry an error")
			}
			if out.Succeeded() != (tt.wantStatus == Succeeded) {
				t.Errorf("Succeeded() = %v", out.Succeeded())
			}
			if out.IsEndOfArchive() != (tt.wantStatus == EndOfArchive) {
				t.Errorf("IsEndOfArchive() = %v", out.IsEndOfArchive())
			}
		})
	}
}

func TestFetchPage_PassesRequest(t *testing.T) {
	ex := &fakeExtractor{}
	a := New(&fakeSource{page: &fetch.Page{Content: "content", Matches: 2}}, ex, "#list")

	a.FetchPage(context.Background(), "http://x/index7.html")

	if ex.last.URL != "http://x/index7.html" {
		t.Errorf("URL = %q", ex.last.URL)
	}
	if ex.last.Selector != "#list" {
		t.Errorf("Selector = %q", ex.last.Selector)
	}
	if ex.last.Content != "content" {
		t.Errorf("Content = %q", ex.last.Content)
	}
}

func TestStatus_String(t *testing.T) {
	tests := map[Status]string{
		Succeeded:        "succeeded",
		TransientFailure: "transient_failure",
		EndOfArchive:     "end_of_archive",
		Status(42):       "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
