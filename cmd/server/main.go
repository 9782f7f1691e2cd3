package main

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/remote-caching/internal/cache"
	"github.com/leonardcser/remote-caching/internal/config"
	"github.com/leonardcser/remote-caching/internal/logger"
	tools "github.com/leonardcser/remote-caching/internal/tools"
	web "github.com/leonardcser/remote-caching/internal/web"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting Web MCP server")

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("Invalid configuration: %v", err)
		panic(err)
	}

	if cfg.Verbose {
		if err := logger.EnableVerbose(); err != nil {
			logger.Errorf("Failed to enable verbose logging: %v", err)
		}
	}

	ctx := context.Background()
	store := cache.New(
		cache.WithDir(cfg.Dir),
		cache.WithBackend(cfg.Backend),
		cache.WithLogger(logger.Named("RemoteCaching")),
	)
	if err := store.Init(ctx, cfg.DefaultTTL, cfg.Verbose); err != nil {
		logger.Errorf("Failed to open cache in %s: %v", cfg.Dir, err)
		panic(err)
	}
	defer store.Dispose()
	logger.Infof("Opened %s cache in %s", cfg.Backend, cfg.Dir)

	fetcher := web.NewFetcher(store, cfg.FetchTTL)
	searcher := web.NewSearcher(store, cfg.SearchTTL)

	s := server.NewMCPServer(
		"Web MCP",
		"0.2.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)
	tools.Register(s, fetcher, searcher, store)

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}
