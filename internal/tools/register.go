package tools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/remote-caching/internal/cache"
	"github.com/leonardcser/remote-caching/internal/logger"
	web "github.com/leonardcser/remote-caching/internal/web"
)

// Register adds the web and cache tools to s.
func Register(s *server.MCPServer, fetcher *web.Fetcher, searcher *web.Searcher, c *cache.Cache) {
	toolFetch := mcp.NewTool("web-fetch",
		mcp.WithDescription(multiline(
			"Fetches content from a specified URL and returns the parsed content",
			"\nFunctionality:",
			"- Takes a URL as input",
			"- Fetches the URL content and parses it",
			"- Returns the structured content including title, description, text, and links",
			"\nUsage notes:",
			"- The URL must be a fully-formed valid URL",
			"- This tool is read-only and does not modify any files",
			"- Results are kept in a persistent cache; pass refresh=true to bypass it",
		)),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to fetch content from")),
		mcp.WithBoolean("refresh", mcp.Description("Ignore any cached copy and fetch again")),
	)
	s.AddTool(toolFetch, WebFetchHandler(fetcher))
	logger.Infof("Registered web-fetch tool")

	toolSearch := mcp.NewTool("web-search",
		mcp.WithDescription(multiline(
			"Allows you to search the web and use the results to inform responses",
			"\nFunctionality:",
			"- Provides up-to-date information for current events and recent data",
			"- Returns search result information formatted as search result blocks",
			"\nUsage notes:",
			"- Results for the same query are cached for a few minutes; pass refresh=true to bypass it",
		)),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query to use")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results, capped at 20 (default 10)")),
		mcp.WithBoolean("refresh", mcp.Description("Ignore cached results and search again")),
	)
	s.AddTool(toolSearch, WebSearchHandler(searcher))
	logger.Infof("Registered web-search tool")

	toolStats := mcp.NewTool("cache-stats",
		mcp.WithDescription("Reports how many entries the response cache holds, their size and how many have expired"),
	)
	s.AddTool(toolStats, CacheStatsHandler(c))

	toolClear := mcp.NewTool("cache-clear",
		mcp.WithDescription("Removes cached responses. Without a key, the whole cache is cleared"),
		mcp.WithString("key", mcp.Description("Cache key to remove, e.g. web_fetch|https://example.com")),
	)
	s.AddTool(toolClear, CacheClearHandler(c))
	logger.Infof("Registered cache tools")
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
