package cache

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTTL applies when Init is given no positive default.
const DefaultTTL = 60 * time.Minute

// Option configures a Cache handle.
type Option func(*Cache)

// WithDir sets the directory holding the cache file.
func WithDir(dir string) Option {
	return func(c *Cache) { c.dir = dir }
}

// WithBackend selects the store backend by name (BackendSQLite or BackendBolt).
func WithBackend(name string) Option {
	return func(c *Cache) { c.backend = name }
}

// WithOpener replaces the backend lookup with a custom store factory.
func WithOpener(o Opener) Option {
	return func(c *Cache) { c.opener = o }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the diagnostics sink used when verbose.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Cache) { c.log = l }
}

type callConfig struct {
	ttl          time.Duration
	hasTTL       bool
	expiresAt    time.Time
	hasExpiresAt bool
	force        bool
	encoder      Encoder
}

// CallOption tunes a single Call.
type CallOption func(*callConfig)

// WithTTL stores the fetched value for d from now.
func WithTTL(d time.Duration) CallOption {
	return func(c *callConfig) { c.ttl, c.hasTTL = d, true }
}

// WithExpiresAt stores the fetched value until t.
func WithExpiresAt(t time.Time) CallOption {
	return func(c *callConfig) { c.expiresAt, c.hasExpiresAt = t, true }
}

// WithForceRefresh skips the lookup and always calls the remote.
func WithForceRefresh() CallOption {
	return func(c *callConfig) { c.force = true }
}

// WithEncoder replaces JSONEncoder for this call.
func WithEncoder(enc Encoder) CallOption {
	return func(c *callConfig) { c.encoder = enc }
}
