package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/leonardcser/remote-caching/internal/cache"
)

type SearchResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

const searchEndpoint = "https://html.duckduckgo.com/html/"

// Searcher queries DuckDuckGo's HTML endpoint and memoizes the results.
type Searcher struct {
	client   *http.Client
	cache    *cache.Cache
	ttl      time.Duration
	endpoint string
}

func NewSearcher(c *cache.Cache, ttl time.Duration) *Searcher {
	return &Searcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cache:    c,
		ttl:      ttl,
		endpoint: searchEndpoint,
	}
}

func (s *Searcher) cacheKey(q string) string { return "web_search|" + q }

// Search returns up to limit results for query. Results are cached per
// query; refresh forces a new request.
func (s *Searcher) Search(ctx context.Context, query string, limit int, refresh bool) ([]SearchResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, maxResults)
	opts := []cache.CallOption{cache.WithTTL(s.ttl)}
	if refresh {
		opts = append(opts, cache.WithForceRefresh())
	}
	results, err := cache.Call(ctx, s.cache, s.cacheKey(q), func(ctx context.Context) ([]SearchResult, error) {
		return s.query(ctx, q)
	}, cache.DecodeAs[[]SearchResult](), opts...)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		return results[:limit], nil
	}
	return results, nil
}

// maxResults is how many results a single query keeps. The whole page is
// cached so a later call with a larger limit is still a hit.
const maxResults = 20

func (s *Searcher) query(ctx context.Context, q string) ([]SearchResult, error) {
	values := url.Values{"q": {q}, "kl": {"us-en"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", NextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	results := parseResults(doc.Find("div.result.results_links.results_links_deep.web-result"), "a.result__a")
	if len(results) == 0 {
		// Layout changed: treat each result anchor as its own block.
		results = parseResults(doc.Find("a.result__a").Parent(), "a.result__a")
	}
	return results, nil
}

// parseResults reads one result per block, skipping blocks without a
// title or link.
func parseResults(blocks *goquery.Selection, anchor string) []SearchResult {
	var out []SearchResult
	blocks.EachWithBreak(func(_ int, b *goquery.Selection) bool {
		a := b.Find(anchor).First()
		r := SearchResult{
			Title:       singleLine(a.Text()),
			Link:        extractDDGURL(strings.TrimSpace(a.AttrOr("href", ""))),
			Description: singleLine(b.Find("a.result__snippet").First().Text()),
		}
		if r.Title != "" && r.Link != "" {
			out = append(out, r)
		}
		return len(out) < maxResults
	})
	return out
}

// extractDDGURL unwraps a DuckDuckGo redirect such as
// //duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com into its target.
// Anything else is returned unchanged.
func extractDDGURL(href string) string {
	abs := href
	if strings.HasPrefix(abs, "//") {
		abs = "https:" + abs
	}
	u, err := url.Parse(abs)
	if err != nil || !strings.HasSuffix(u.Host, "duckduckgo.com") {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
