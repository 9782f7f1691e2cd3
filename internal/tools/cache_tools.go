package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/remote-caching/internal/cache"
)

// CacheStatsHandler returns the MCP tool handler for the "cache-stats" tool.
func CacheStatsHandler(c *cache.Cache) toolHandler {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := c.GetCacheStats(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatStats(st)), nil
	}
}

// CacheClearHandler returns the MCP tool handler for the "cache-clear" tool.
// Without a key every entry is removed.
func CacheClearHandler(c *cache.Cache) toolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key := req.GetString("key", "")
		if key == "" {
			if err := c.ClearCache(ctx); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText("Cache cleared."), nil
		}
		if err := c.ClearCacheForKey(ctx, key); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Cleared %q.", key)), nil
	}
}

func formatStats(st cache.Stats) string {
	return fmt.Sprintf("Entries: %d\nSize: %d bytes\nExpired: %d", st.TotalEntries, st.TotalSizeBytes, st.ExpiredEntries)
}
