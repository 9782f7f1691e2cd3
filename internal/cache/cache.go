package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leonardcser/remote-caching/internal/logger"
)

var (
	ErrNotInitialized    = errors.New("cache: not initialized, call Init first")
	ErrConflictingExpiry = errors.New("cache: ttl and absolute expiry are mutually exclusive")
)

// Cache memoizes remote calls in a durable table with TTL expiry.
// A zero Cache is not usable; build one with New and call Init before use.
//
// The handle does not serialize data-path calls against each other or
// against Dispose. Two concurrent misses on the same key both call the
// remote and the last write wins.
type Cache struct {
	dir     string
	backend string
	opener  Opener
	now     func() time.Time
	log     *logrus.Entry

	mu         sync.RWMutex
	store      Store
	defaultTTL time.Duration
	verbose    bool
}

// New returns an uninitialized Cache.
func New(opts ...Option) *Cache {
	c := &Cache{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("RemoteCaching")
	}
	return c
}

// Init opens the store and removes every row that expired while the process
// was not running. Calling Init on an initialized Cache does nothing.
// defaultTTL <= 0 selects DefaultTTL.
func (c *Cache) Init(ctx context.Context, defaultTTL time.Duration, verbose bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		return nil
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	opener := c.opener
	if opener == nil {
		o, err := OpenerFor(c.backend)
		if err != nil {
			return err
		}
		opener = o
	}
	dir := c.dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	store, err := opener(ctx, dir)
	if err != nil {
		return err
	}

	n, err := store.DeleteExpired(ctx, c.now())
	if err != nil {
		_ = store.Close()
		return err
	}
	c.store = store
	c.defaultTTL = defaultTTL
	c.verbose = verbose
	if verbose {
		c.log.WithFields(logrus.Fields{"dir": dir, "removed": n}).Info("cache initialized")
	}
	return nil
}

// Dispose closes the store. A later Init opens it again.
func (c *Cache) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

// handle returns the open store, or nil before Init.
func (c *Cache) handle() (Store, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store, c.verbose
}

// Call returns the cached value for key while it is valid, otherwise it
// calls remote, stores the result and returns it.
//
// At most one of WithTTL and WithExpiresAt may be given; without either the
// default TTL applies. A row that cannot be decoded counts as a miss and a
// value that cannot be encoded is returned without being stored. Errors
// from remote and from the store are returned as is.
func Call[T any](ctx context.Context, c *Cache, key string, remote func(context.Context) (T, error), dec Decoder[T], opts ...CallOption) (T, error) {
	var zero T
	var cfg callConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.hasTTL && cfg.hasExpiresAt {
		return zero, ErrConflictingExpiry
	}
	store, verbose := c.handle()
	if store == nil {
		return zero, ErrNotInitialized
	}
	if dec == nil {
		dec = DecodeAs[T]()
	}
	expiresAt := c.expiry(cfg)

	if cfg.force {
		c.debug(verbose, key, "force refresh")
	} else {
		v, ok, err := lookup(ctx, c, store, verbose, key, dec)
		if err != nil {
			return zero, err
		}
		if ok {
			return v, nil
		}
	}

	v, err := remote(ctx)
	if err != nil {
		return zero, err
	}
	if err := c.put(ctx, store, key, v, expiresAt, cfg.encoder); err != nil {
		if errors.Is(err, ErrEncode) {
			c.warn(verbose, key, err, "not storing fetched value")
			return v, nil
		}
		return zero, err
	}
	return v, nil
}

// Lookup returns the value stored for key if it is still valid. An expired
// row is deleted by the read that finds it.
func Lookup[T any](ctx context.Context, c *Cache, key string, dec Decoder[T]) (T, bool, error) {
	var zero T
	store, verbose := c.handle()
	if store == nil {
		return zero, false, ErrNotInitialized
	}
	if dec == nil {
		dec = DecodeAs[T]()
	}
	return lookup(ctx, c, store, verbose, key, dec)
}

func lookup[T any](ctx context.Context, c *Cache, store Store, verbose bool, key string, dec Decoder[T]) (T, bool, error) {
	var zero T
	e, err := store.Get(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if e == nil {
		c.debug(verbose, key, "miss")
		return zero, false, nil
	}
	if now := c.now(); !e.Valid(now) {
		c.debug(verbose, key, "expired")
		if _, err := store.Evict(ctx, key, now); err != nil {
			return zero, false, err
		}
		return zero, false, nil
	}
	v, err := decode(e.Data, dec)
	if err != nil {
		c.warn(verbose, key, err, "treating unreadable entry as a miss")
		return zero, false, nil
	}
	c.debug(verbose, key, "hit")
	return v, true, nil
}

// Put encodes value and stores it under key until expiresAt, replacing any
// existing row. A nil enc selects JSONEncoder. Encode failures wrap ErrEncode
// and leave the store untouched.
func (c *Cache) Put(ctx context.Context, key string, value any, expiresAt time.Time, enc Encoder) error {
	store, _ := c.handle()
	if store == nil {
		return ErrNotInitialized
	}
	return c.put(ctx, store, key, value, expiresAt, enc)
}

func (c *Cache) put(ctx context.Context, store Store, key string, value any, expiresAt time.Time, enc Encoder) error {
	data, err := encode(enc, value)
	if err != nil {
		return err
	}
	return store.Put(ctx, Entry{
		Key:       key,
		Data:      data,
		CreatedAt: c.now(),
		ExpiresAt: expiresAt,
	})
}

func (c *Cache) expiry(cfg callConfig) time.Time {
	if cfg.hasExpiresAt {
		return cfg.expiresAt
	}
	ttl := c.defaultTTLValue()
	if cfg.hasTTL {
		ttl = cfg.ttl
	}
	return c.now().Add(ttl)
}

func (c *Cache) defaultTTLValue() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultTTL
}

// ClearCache deletes every row. It does nothing before Init.
func (c *Cache) ClearCache(ctx context.Context) error {
	store, _ := c.handle()
	if store == nil {
		return nil
	}
	return store.Clear(ctx)
}

// ClearCacheForKey deletes the row for key. It does nothing before Init.
func (c *Cache) ClearCacheForKey(ctx context.Context, key string) error {
	store, _ := c.handle()
	if store == nil {
		return nil
	}
	return store.Delete(ctx, key)
}

// GetCacheStats reports row count, data size and expired rows. Concurrent
// writers may change the table right after the snapshot is taken.
func (c *Cache) GetCacheStats(ctx context.Context) (Stats, error) {
	store, _ := c.handle()
	if store == nil {
		return Stats{}, ErrNotInitialized
	}
	return store.Stats(ctx, c.now())
}

// Sweep deletes every expired row and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	store, _ := c.handle()
	if store == nil {
		return 0, ErrNotInitialized
	}
	return store.DeleteExpired(ctx, c.now())
}

func (c *Cache) debug(verbose bool, key, msg string) {
	if verbose {
		c.log.WithField("key", key).Debug(msg)
	}
}

func (c *Cache) warn(verbose bool, key string, err error, msg string) {
	if verbose {
		c.log.WithFields(logrus.Fields{"key": key, "error": err}).Warn(msg)
	}
}
