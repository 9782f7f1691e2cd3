package cache

import (
	"context"
	"time"
)

// Entry is a single cached row.
type Entry struct {
	Key       string
	Data      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Valid reports whether the entry is still usable at now.
func (e *Entry) Valid(now time.Time) bool {
	return now.UnixMilli() < e.ExpiresAt.UnixMilli()
}

// Stats is a point-in-time view of the stored set.
type Stats struct {
	TotalEntries   int64 `json:"totalEntries"`
	TotalSizeBytes int64 `json:"totalSizeBytes"`
	ExpiredEntries int64 `json:"expiredEntries"`
}

// Store is the durable table the engine runs on. Put and Delete must be
// atomic per key. Implementations must be safe for concurrent use by
// multiple goroutines.
type Store interface {
	// Get returns the row for key, or nil when there is none.
	Get(ctx context.Context, key string) (*Entry, error)
	// Put inserts the row, replacing any existing row with the same key.
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key string) error
	// Evict removes the row for key only if it is no longer valid at now,
	// so a row rewritten since it was read survives. It reports whether a
	// row was removed.
	Evict(ctx context.Context, key string, now time.Time) (bool, error)
	// DeleteExpired removes every row whose expiry is strictly before before.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	Clear(ctx context.Context) error
	// Stats counts rows, their data size and the rows already expired at now.
	Stats(ctx context.Context, now time.Time) (Stats, error)
	Close() error
}

// Opener opens the store living in dir.
type Opener func(ctx context.Context, dir string) (Store, error)

const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// OpenerFor returns the opener for a named backend.
func OpenerFor(backend string) (Opener, error) {
	switch backend {
	case "", BackendSQLite:
		return func(ctx context.Context, dir string) (Store, error) {
			return OpenSQLite(ctx, sqlitePath(dir))
		}, nil
	case BackendBolt:
		return func(_ context.Context, dir string) (Store, error) {
			return OpenBolt(boltPath(dir))
		}, nil
	default:
		return nil, &UnknownBackendError{Backend: backend}
	}
}

// UnknownBackendError is returned for a backend name with no implementation.
type UnknownBackendError struct {
	Backend string
}

func (e *UnknownBackendError) Error() string {
	return "cache: unknown backend " + e.Backend
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }
