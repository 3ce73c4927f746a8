// Package testutil provides testing utilities for the archive crawler.
package testutil

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockPageResponse defines the response for one archive page.
type MockPageResponse struct {
	StatusCode  int
	Body        string
	ContentType string
	Delay       time.Duration
}

// ListingItem is one entry rendered into a mock listing page.
type ListingItem struct {
	Title string
	Time  string
	Href  string
}

var pagePath = regexp.MustCompile(`^/index(\d+)\.html$`)

// MockArchive is a paginated archive server: /index<N>.html serves configured
// pages and everything else is 404.
type MockArchive struct {
	server *httptest.Server
	mu     sync.RWMutex
	pages  map[int]MockPageResponse

	// Tracking
	requested []int
}

// NewMockArchive creates a new mock archive server.
func NewMockArchive() *MockArchive {
	mock := &MockArchive{
		pages: make(map[int]MockPageResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := pagePath.FindStringSubmatch(r.URL.Path)
		if m == nil {
			http.NotFound(w, r)
			return
		}
		n, _ := strconv.Atoi(m[1])

		mock.mu.Lock()
		mock.requested = append(mock.requested, n)
		resp, exists := mock.pages[n]
		mock.mu.Unlock()

		if !exists {
			http.NotFound(w, r)
			return
		}

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		contentType := resp.ContentType
		if contentType == "" {
			contentType = "text/html; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		w.Write([]byte(resp.Body))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockArchive) URL() string {
	return m.server.URL
}

// Prefix returns the page URL prefix; page N is Prefix()+N+".html".
func (m *MockArchive) Prefix() string {
	return m.server.URL + "/index"
}

// Close shuts down the mock server.
func (m *MockArchive) Close() {
	m.server.Close()
}

// SetPage configures the response for page n.
func (m *MockArchive) SetPage(n int, resp MockPageResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[n] = resp
}

// SetListing configures page n as a listing of items.
func (m *MockArchive) SetListing(n int, items []ListingItem) {
	m.SetPage(n, MockPageResponse{
		StatusCode: http.StatusOK,
		Body:       ListingPage(fmt.Sprintf("page %d", n), items),
	})
}

// SetStatus configures page n to fail with the given status.
func (m *MockArchive) SetStatus(n int, status int) {
	m.SetPage(n, MockPageResponse{StatusCode: status, Body: http.StatusText(status)})
}

// Requested returns the page numbers requested so far, in order.
func (m *MockArchive) Requested() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.requested...)
}

// GetRequestCount returns the number of page requests made to the server.
func (m *MockArchive) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requested)
}

// ListingPage renders items the way the opinion archive lays out its lists:
// one td.t11 cell with a link and a bracketed timestamp per line.
func ListingPage(title string, items []ListingItem) string {
	var b strings.Builder
	b.WriteString("<html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title></head><body>\n")
	b.WriteString("<div class=\"nav\"><a href=\"/\">首页</a></div>\n")
	b.WriteString("<table><tr><td class=\"t11\">\n")
	for _, item := range items {
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a> [%s]<br>\n",
			html.EscapeString(item.Href), html.EscapeString(item.Title), html.EscapeString(item.Time))
	}
	b.WriteString("</td></tr></table>\n</body></html>")
	return b.String()
}

// Items builds n listing items for page p with predictable values.
func Items(p, n int) []ListingItem {
	items := make([]ListingItem, n)
	for i := range items {
		items[i] = ListingItem{
			Title: fmt.Sprintf("新闻 %d-%d", p, i+1),
			Time:  fmt.Sprintf("2024-05-%02d 10:%02d", p%28+1, i),
			Href:  fmt.Sprintf("/n1/2024/p%d/c1003-%d.html", p, i+1),
		}
	}
	return items
}
