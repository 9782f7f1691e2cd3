package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	sq, err := OpenSQLite(ctx, filepath.Join(dir, FileName))
	require.NoError(t, err)
	bl, err := OpenBolt(filepath.Join(dir, BoltFileName))
	require.NoError(t, err)
	mem, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sq.Close()
		_ = bl.Close()
		_ = mem.Close()
	})
	return map[string]Store{"sqlite": sq, "bolt": bl, "memory": mem}
}

func TestStoreGetMissing(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			e, err := s.Get(context.Background(), "nope")
			assert.NoError(t, err)
			assert.Nil(t, e)
		})
	}
}

func TestStorePutReplaces(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, Entry{Key: "k", Data: `"one"`, CreatedAt: base, ExpiresAt: base.Add(time.Second)}))
			require.NoError(t, s.Put(ctx, Entry{Key: "k", Data: `"two"`, CreatedAt: base.Add(time.Millisecond), ExpiresAt: base.Add(time.Hour)}))

			e, err := s.Get(ctx, "k")
			require.NoError(t, err)
			require.NotNil(t, e)
			assert.Equal(t, `"two"`, e.Data)
			assert.True(t, e.CreatedAt.Equal(base.Add(time.Millisecond)))
			assert.True(t, e.ExpiresAt.Equal(base.Add(time.Hour)))

			st, err := s.Stats(ctx, base)
			require.NoError(t, err)
			assert.EqualValues(t, 1, st.TotalEntries)

			// The old expiry no longer matches anything.
			n, err := s.DeleteExpired(ctx, base.Add(time.Minute))
			require.NoError(t, err)
			assert.EqualValues(t, 0, n)
		})
	}
}

func TestStoreDeleteExpiredIsStrict(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, Entry{Key: "edge", Data: "1", CreatedAt: base, ExpiresAt: base}))
			require.NoError(t, s.Put(ctx, Entry{Key: "past", Data: "2", CreatedAt: base, ExpiresAt: base.Add(-time.Second)}))
			require.NoError(t, s.Put(ctx, Entry{Key: "future", Data: "3", CreatedAt: base, ExpiresAt: base.Add(time.Second)}))

			st, err := s.Stats(ctx, base)
			require.NoError(t, err)
			assert.Equal(t, Stats{TotalEntries: 3, TotalSizeBytes: 3, ExpiredEntries: 1}, st)

			n, err := s.DeleteExpired(ctx, base)
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)

			e, err := s.Get(ctx, "edge")
			require.NoError(t, err)
			assert.NotNil(t, e)
			e, err = s.Get(ctx, "past")
			require.NoError(t, err)
			assert.Nil(t, e)
		})
	}
}

func TestStoreDeleteAndClear(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{"a", "b", "c"} {
				require.NoError(t, s.Put(ctx, Entry{Key: k, Data: "{}", CreatedAt: base, ExpiresAt: base.Add(time.Hour)}))
			}
			require.NoError(t, s.Delete(ctx, "a"))
			require.NoError(t, s.Delete(ctx, "a"))
			st, err := s.Stats(ctx, base)
			require.NoError(t, err)
			assert.EqualValues(t, 2, st.TotalEntries)

			require.NoError(t, s.Clear(ctx))
			st, err = s.Stats(ctx, base)
			require.NoError(t, err)
			assert.Equal(t, Stats{}, st)

			require.NoError(t, s.Put(ctx, Entry{Key: "d", Data: "{}", CreatedAt: base, ExpiresAt: base.Add(time.Hour)}))
			e, err := s.Get(ctx, "d")
			require.NoError(t, err)
			assert.NotNil(t, e)
		})
	}
}

func TestEntryValid(t *testing.T) {
	now := time.UnixMilli(1000)
	assert.True(t, (&Entry{ExpiresAt: time.UnixMilli(1001)}).Valid(now))
	assert.False(t, (&Entry{ExpiresAt: time.UnixMilli(1000)}).Valid(now))
	assert.False(t, (&Entry{ExpiresAt: time.UnixMilli(999)}).Valid(now))
}

func TestOpenerFor(t *testing.T) {
	for _, name := range []string{"", BackendSQLite, BackendBolt} {
		o, err := OpenerFor(name)
		assert.NoError(t, err)
		assert.NotNil(t, o)
	}
	_, err := OpenerFor("memcached")
	assert.EqualError(t, err, "cache: unknown backend memcached")
}

func TestStoreEvictOnlyRemovesExpiredRow(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, Entry{Key: "k", Data: `1`, CreatedAt: base, ExpiresAt: base.Add(time.Minute)}))

			removed, err := s.Evict(ctx, "k", base.Add(time.Second))
			require.NoError(t, err)
			assert.False(t, removed)
			e, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.NotNil(t, e)

			removed, err = s.Evict(ctx, "k", base.Add(time.Minute))
			require.NoError(t, err)
			assert.True(t, removed)
			e, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Nil(t, e)

			st, err := s.Stats(ctx, base)
			require.NoError(t, err)
			assert.EqualValues(t, 0, st.TotalEntries)

			removed, err = s.Evict(ctx, "missing", base.Add(time.Hour))
			require.NoError(t, err)
			assert.False(t, removed)
		})
	}
}
