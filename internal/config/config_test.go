package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, 15*time.Minute, cfg.FetchTTL)
	assert.Equal(t, 5*time.Minute, cfg.SearchTTL)
	assert.False(t, cfg.Verbose)
	assert.True(t, strings.HasSuffix(cfg.Dir, filepath.Join(".cache", "remote-caching")))
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(envOf(map[string]string{
		EnvDir:       "/tmp/rc",
		EnvBackend:   "BOLT",
		EnvTTL:       "1d2h",
		EnvVerbose:   "true",
		EnvFetchTTL:  "30s",
		EnvSearchTTL: "1w",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/rc", cfg.Dir)
	assert.Equal(t, "bolt", cfg.Backend)
	assert.Equal(t, 26*time.Hour, cfg.DefaultTTL)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 30*time.Second, cfg.FetchTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.SearchTTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{EnvBackend: "redis"}},
		{"bad duration", map[string]string{EnvTTL: "soon"}},
		{"zero ttl", map[string]string{EnvTTL: "0s"}},
		{"bad bool", map[string]string{EnvVerbose: "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(envOf(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration(" 90m ")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)
}
