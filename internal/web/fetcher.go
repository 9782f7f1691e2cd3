package web

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/leonardcser/remote-caching/internal/cache"
)

const (
	RequestTimeout  = 20 * time.Second
	MaxResponseSize = 1 * 1024 * 1024 // 1MB
)

type PageSummary struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Text        string   `json:"text"`
	Links       []string `json:"links"`
}

// Fetcher downloads pages and memoizes their summaries in the cache.
type Fetcher struct {
	cache *cache.Cache
	ttl   time.Duration
	delay time.Duration
}

func NewFetcher(c *cache.Cache, ttl time.Duration) *Fetcher {
	return &Fetcher{cache: c, ttl: ttl, delay: 1 * time.Second}
}

func (f *Fetcher) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
	)
	c.Context = ctx
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       f.delay,
	})
	c.SetRequestTimeout(RequestTimeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", NextUserAgent())
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	return c
}

func (f *Fetcher) cacheKey(rawURL string) string { return "web_fetch|" + rawURL }

// Fetch returns the summary of rawURL, served from the cache while the
// previous fetch is younger than the fetcher's TTL. refresh bypasses the
// cached copy and replaces it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, refresh bool) (*PageSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, errors.New("url must start with http:// or https://")
	}
	opts := []cache.CallOption{cache.WithTTL(f.ttl)}
	if refresh {
		opts = append(opts, cache.WithForceRefresh())
	}
	return cache.Call(ctx, f.cache, f.cacheKey(rawURL), func(ctx context.Context) (*PageSummary, error) {
		return f.visit(ctx, rawURL)
	}, cache.DecodeAs[*PageSummary](), opts...)
}

// response is what a single page download produced.
type response struct {
	url         string
	contentType string
	body        []byte
}

func (f *Fetcher) visit(ctx context.Context, rawURL string) (*PageSummary, error) {
	resp, err := f.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	ct := strings.ToLower(resp.contentType)
	switch {
	case strings.Contains(ct, "text/html"):
		return summarizeHTML(resp)
	case strings.HasPrefix(ct, "text/"):
		return &PageSummary{URL: resp.url, Text: string(resp.body)}, nil
	default:
		return nil, ErrUnsupportedContent
	}
}

// ErrUnsupportedContent is returned for responses that are not text.
var ErrUnsupportedContent = errors.New("unsupported content type: binary files like images or PDFs are not supported")

func (f *Fetcher) download(ctx context.Context, rawURL string) (*response, error) {
	var resp *response
	c := f.newCollector(ctx)
	c.OnResponse(func(r *colly.Response) {
		if ctx.Err() != nil {
			return
		}
		resp = &response{
			url:         r.Request.URL.String(),
			contentType: r.Headers.Get("Content-Type"),
			body:        append([]byte(nil), r.Body...),
		}
	})
	if err := c.Visit(rawURL); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resp == nil || len(resp.body) == 0 {
		return nil, errors.New("empty response body")
	}
	if len(resp.body) > MaxResponseSize {
		resp.body = append(resp.body[:MaxResponseSize], "... [response trimmed due to size]"...)
	}
	return resp, nil
}

const (
	invisible = "script, style, noscript, iframe, object, embed, img, video, picture, svg, canvas, audio, source, track, map, area, form, label, input, button, select, textarea, progress, ins, applet"
	chrome    = "header, footer, aside"
	maxLinks  = 50
)

func summarizeHTML(resp *response) (*PageSummary, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.body))
	if err != nil {
		return nil, err
	}
	doc.Find(invisible).Remove()

	ps := &PageSummary{
		URL:         resp.url,
		Title:       strings.TrimSpace(doc.Find("head > title").First().Text()),
		Description: strings.TrimSpace(doc.Find("meta[name=description]").AttrOr("content", "")),
		Links:       pageLinks(doc, resp.url),
	}

	// Anchors are already captured in Links.
	doc.Find("a").Remove()
	doc.Find(chrome).Remove()

	ps.Text, err = markdownBody(doc)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func markdownBody(doc *goquery.Document) (string, error) {
	body, err := doc.Html()
	if err != nil {
		return "", err
	}
	md, err := htmltomarkdown.ConvertString(body)
	if err != nil {
		return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
	}
	return md, nil
}

// pageLinks resolves every anchor against the page URL and returns the
// distinct http(s) targets without fragments, sorted, at most maxLinks.
func pageLinks(doc *goquery.Document, pageURL string) []string {
	base, _ := url.Parse(pageURL)
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		seen[u.String()] = struct{}{}
	})

	links := make([]string, 0, len(seen))
	for l := range seen {
		links = append(links, l)
	}
	sort.Strings(links)
	if len(links) > maxLinks {
		links = links[:maxLinks]
	}
	return links
}
