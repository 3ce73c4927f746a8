// Package adapter combines one page fetch and one extraction call into a
// tagged Outcome. It never returns an error: every failure is classified.
package adapter

import (
	"context"
	"errors"

	"github.com/Sternrassler/archive-crawler/pkg/extract"
	"github.com/Sternrassler/archive-crawler/pkg/fetch"
	"github.com/Sternrassler/archive-crawler/pkg/record"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNoMatches is reported when the selector matched nothing on the page.
var ErrNoMatches = errors.New("selector matched no content")

// Status is the classification of one page attempt.
type Status int

const (
	// Succeeded means the page was fetched and extracted; Records may be empty.
	Succeeded Status = iota
	// TransientFailure means the fetch or extraction failed for a reason other
	// than the page not existing.
	TransientFailure
	// EndOfArchive means the page does not exist.
	EndOfArchive
)

// String returns the status name used in logs and metric labels.
func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case TransientFailure:
		return "transient_failure"
	case EndOfArchive:
		return "end_of_archive"
	default:
		return "unknown"
	}
}

// Outcome is the result of one page attempt.
type Outcome struct {
	Records []record.Record
	Status  Status
	Err     error
}

// Succeeded reports whether the page produced a usable result.
func (o Outcome) Succeeded() bool {
	return o.Status == Succeeded
}

// IsEndOfArchive reports whether the page marks the end of the archive.
func (o Outcome) IsEndOfArchive() bool {
	return o.Status == EndOfArchive
}

// PageSource fetches and renders one page.
type PageSource interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Extractor turns rendered page content into records.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) ([]record.Record, error)
}

// Adapter runs fetch then extract for a single URL.
type Adapter struct {
	source    PageSource
	extractor Extractor
	selector  string
	logger    zerolog.Logger
}

// New creates an adapter. selector is passed through to the extractor as context.
func New(source PageSource, extractor Extractor, selector string) *Adapter {
	return &Adapter{
		source:    source,
		extractor: extractor,
		selector:  selector,
		logger:    log.With().Str("component", "adapter").Logger(),
	}
}

// FetchPage fetches url and extracts its records.
func (a *Adapter) FetchPage(ctx context.Context, url string) Outcome {
	page, err := a.source.Fetch(ctx, url)
	if err != nil {
		if fetch.IsNotFound(err) {
			return Outcome{Status: EndOfArchive, Err: err}
		}
		return Outcome{Status: TransientFailure, Err: err}
	}

	if page.Matches == 0 || page.Content == "" {
		a.logger.Debug().Str("url", url).Msg("No content under selector, skipping extraction")
		return Outcome{Status: TransientFailure, Err: ErrNoMatches}
	}

	records, err := a.extractor.Extract(ctx, extract.Request{
		URL:      url,
		Selector: a.selector,
		Content:  page.Content,
	})
	if err != nil {
		return Outcome{Status: TransientFailure, Err: err}
	}

	return Outcome{Records: records, Status: Succeeded}
}
