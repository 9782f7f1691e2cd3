package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	web "github.com/leonardcser/remote-caching/internal/web"
)

type toolHandler = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// WebFetchHandler returns the MCP tool handler for the "web-fetch" tool.
func WebFetchHandler(fetcher *web.Fetcher) toolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ps, err := fetcher.Fetch(ctx, url, req.GetBool("refresh", false))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatPageSummary(ps)), nil
	}
}

// WebSearchHandler returns the MCP tool handler for the "web-search" tool.
func WebSearchHandler(searcher *web.Searcher) toolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		results, err := searcher.Search(ctx, q, req.GetInt("limit", 10), req.GetBool("refresh", false))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatSearchResults(results)), nil
	}
}

// formatPageSummary renders title, description, source, links and body as markdown.
func formatPageSummary(ps *web.PageSummary) string {
	var sb strings.Builder
	if ps.Title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", ps.Title)
	}
	if ps.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", ps.Description)
	}
	if ps.URL != "" {
		fmt.Fprintf(&sb, "Source: %s\n\n", ps.URL)
	}
	if len(ps.Links) > 0 {
		sb.WriteString("## Links\n")
		for _, l := range ps.Links {
			fmt.Fprintf(&sb, "- %s\n", l)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(ps.Text)
	return sb.String()
}

// formatSearchResults renders an ordered list with one URL line per result.
func formatSearchResults(results []web.SearchResult) string {
	if len(results) == 0 {
		return "No results."
	}
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		block := fmt.Sprintf("%d. %s\n   %s", i+1, r.Title, r.Link)
		if r.Description != "" {
			block += "\n   " + r.Description
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n")
}
