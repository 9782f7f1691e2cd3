package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/remote-caching/internal/cache"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	c := cache.New(cache.WithDir(t.TempDir()), cache.WithLogger(logrus.NewEntry(l)))
	require.NoError(t, c.Init(context.Background(), time.Hour, false))
	t.Cleanup(func() { _ = c.Dispose() })
	return c
}

const page = `<html><head><title>Example Page</title>
<meta name="description" content="A page for tests"></head>
<body><header>nav</header>
<h1>Hello</h1><p>Some <b>bold</b> text.</p>
<a href="/about#team">About</a><a href="mailto:x@example.com">Mail</a>
<script>alert(1)</script>
<footer>foot</footer></body></html>`

func TestFetchMemoizesPage(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	c := newTestCache(t)
	f := NewFetcher(c, time.Minute)
	f.delay = 0

	ps, err := f.Fetch(context.Background(), srv.URL, false)
	require.NoError(t, err)
	assert.Equal(t, "Example Page", ps.Title)
	assert.Equal(t, "A page for tests", ps.Description)
	assert.Contains(t, ps.Text, "Hello")
	assert.Contains(t, ps.Text, "**bold**")
	assert.NotContains(t, ps.Text, "alert")
	assert.Equal(t, []string{srv.URL + "/about"}, ps.Links)

	again, err := f.Fetch(context.Background(), srv.URL, false)
	require.NoError(t, err)
	assert.Equal(t, ps, again)
	assert.EqualValues(t, 1, hits.Load())

	st, err := c.GetCacheStats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.TotalEntries)
}

func TestFetchRejectsBadInput(t *testing.T) {
	f := NewFetcher(newTestCache(t), time.Minute)
	_, err := f.Fetch(context.Background(), "ftp://example.com", false)
	assert.Error(t, err)
}

func TestFetchRejectsBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	c := newTestCache(t)
	f := NewFetcher(c, time.Minute)
	f.delay = 0
	_, err := f.Fetch(context.Background(), srv.URL, false)
	assert.Error(t, err)

	st, err := c.GetCacheStats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, st.TotalEntries)
}

const ddgResults = `<html><body>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&rut=abc">The Go
  Programming Language</a>
  <a class="result__snippet">Go is an open source language.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="https://pkg.go.dev/">Go Packages</a>
  <a class="result__snippet">Discover packages.</a>
</div>
</body></html>`

func TestSearchMemoizesResults(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		fmt.Fprint(w, ddgResults)
	}))
	defer srv.Close()

	s := NewSearcher(newTestCache(t), time.Minute)
	s.endpoint = srv.URL + "/html/"

	got, err := s.Search(context.Background(), "  golang ", 10, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, SearchResult{
		Title:       "The Go Programming Language",
		Description: "Go is an open source language.",
		Link:        "https://go.dev/",
	}, got[0])

	limited, err := s.Search(context.Background(), "golang", 1, false)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
	assert.EqualValues(t, 1, hits.Load())

	_, err = s.Search(context.Background(), "golang", 10, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestSearchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewSearcher(newTestCache(t), time.Minute)
	s.endpoint = srv.URL
	_, err := s.Search(context.Background(), "q", 5, false)
	assert.EqualError(t, err, "duckduckgo status 429")

	_, err = s.Search(context.Background(), "   ", 5, false)
	assert.Error(t, err)
}

func TestExtractDDGURL(t *testing.T) {
	assert.Equal(t, "https://example.com", extractDDGURL("//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com&rut=x"))
	assert.Equal(t, "https://plain.example", extractDDGURL("https://plain.example"))
}

func TestNextUserAgent(t *testing.T) {
	for i := 0; i < 50; i++ {
		assert.Contains(t, userAgents, NextUserAgent())
	}
}

func TestAgentRotatorRoundRobin(t *testing.T) {
	r := &agentRotator{agents: []string{"a", "b", "c"}}
	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, r.next())
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestPageLinksSortedAndCapped(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<html><body><a href="ftp://files.example/x">ftp</a><a href="#top">top</a>`)
	for i := 0; i < maxLinks+10; i++ {
		fmt.Fprintf(&sb, `<a href="/p/%03d">%d</a>`, i, i)
	}
	sb.WriteString(`</body></html>`)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sb.String()))
	require.NoError(t, err)

	links := pageLinks(doc, "https://site.example/index.html")
	require.Len(t, links, maxLinks)
	assert.Equal(t, "https://site.example/index.html", links[0])
	assert.Equal(t, "https://site.example/p/000", links[1])
	assert.True(t, sort.StringsAreSorted(links))
}

func TestSearchCachesFullPageRegardlessOfLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, ddgResults)
	}))
	defer srv.Close()

	s := NewSearcher(newTestCache(t), time.Minute)
	s.endpoint = srv.URL

	first, err := s.Search(context.Background(), "go", 1, false)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	all, err := s.Search(context.Background(), "go", 10, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.EqualValues(t, 1, hits.Load())
}

func TestSearchCapsLargeLimit(t *testing.T) {
	var page strings.Builder
	page.WriteString("<html><body>")
	for i := 0; i < maxResults+5; i++ {
		fmt.Fprintf(&page, `<div class="result results_links results_links_deep web-result"><a class="result__a" href="https://r%d.example/">R%d</a></div>`, i, i)
	}
	page.WriteString("</body></html>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page.String())
	}))
	defer srv.Close()

	s := NewSearcher(newTestCache(t), time.Minute)
	s.endpoint = srv.URL

	got, err := s.Search(context.Background(), "many", 50, false)
	require.NoError(t, err)
	assert.Len(t, got, maxResults)

	got, err = s.Search(context.Background(), "many", 0, false)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}
