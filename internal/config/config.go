// Package config loads the server and CLI settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xhit/go-str2duration/v2"
)

const (
	EnvDir       = "REMOTE_CACHE_DIR"
	EnvBackend   = "REMOTE_CACHE_BACKEND"
	EnvTTL       = "REMOTE_CACHE_TTL"
	EnvVerbose   = "REMOTE_CACHE_VERBOSE"
	EnvFetchTTL  = "WEB_MCP_FETCH_TTL"
	EnvSearchTTL = "WEB_MCP_SEARCH_TTL"
)

// Config holds the cache and web tool settings.
type Config struct {
	Dir        string        `validate:"required"`
	Backend    string        `validate:"oneof=sqlite bolt"`
	DefaultTTL time.Duration `validate:"gt=0"`
	Verbose    bool
	FetchTTL   time.Duration `validate:"gt=0"`
	SearchTTL  time.Duration `validate:"gt=0"`
}

var validate = validator.New()

// Default returns the settings used when no variable is set.
func Default() Config {
	return Config{
		Dir:        DefaultDir(),
		Backend:    "sqlite",
		DefaultTTL: 60 * time.Minute,
		FetchTTL:   15 * time.Minute,
		SearchTTL:  5 * time.Minute,
	}
}

// Load reads the environment on top of Default and validates the result.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()
	if v := getenv(EnvDir); v != "" {
		cfg.Dir = v
	}
	if v := getenv(EnvBackend); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v := getenv(EnvVerbose); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		cfg.Verbose = b
	}
	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{EnvTTL, &cfg.DefaultTTL},
		{EnvFetchTTL, &cfg.FetchTTL},
		{EnvSearchTTL, &cfg.SearchTTL},
	} {
		v := getenv(d.env)
		if v == "" {
			continue
		}
		dur, err := ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", d.env, err)
		}
		*d.dst = dur
	}
	return cfg, cfg.Validate()
}

// Validate checks field constraints.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// ParseDuration accepts Go durations plus day and week units ("1d12h", "2w").
func ParseDuration(s string) (time.Duration, error) {
	return str2duration.ParseDuration(strings.TrimSpace(s))
}

// DefaultDir is the writable directory holding the cache file.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "remote-caching")
}
