package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

// BoltFileName is the name of the bbolt cache file inside the storage directory.
const BoltFileName = "remote_caching.bolt"

var (
	rowsBucket    = []byte("cache")
	expiresBucket = []byte("cache_expires")
)

func boltPath(dir string) string { return filepath.Join(dir, BoltFileName) }

// boltRow is the value stored under each key in the rows bucket.
type boltRow struct {
	Data      string `msgpack:"d"`
	CreatedAt int64  `msgpack:"c"`
	ExpiresAt int64  `msgpack:"e"`
}

// boltStore keeps rows in one bucket and an expiry index in another. The
// index key is the 8 byte big endian expiry followed by the row key, so a
// cursor walks it in expiry order.
type boltStore struct {
	db *bolt.DB
}

var _ Store = (*boltStore)(nil)

// OpenBolt initializes or opens a bbolt backed Store at the given path.
func OpenBolt(path string) (Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(rowsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(expiresBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func indexKey(expiresAt int64, key string) []byte {
	if expiresAt < 0 {
		expiresAt = 0
	}
	buf := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt))
	copy(buf[8:], key)
	return buf
}

func decodeRow(v []byte) (boltRow, error) {
	var row boltRow
	err := msgpack.Unmarshal(v, &row)
	return row, err
}

func (s *boltStore) Get(_ context.Context, key string) (*Entry, error) {
	var out *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(rowsBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		row, err := decodeRow(v)
		if err != nil {
			return err
		}
		out = &Entry{
			Key:       key,
			Data:      row.Data,
			CreatedAt: fromMillis(row.CreatedAt),
			ExpiresAt: fromMillis(row.ExpiresAt),
		}
		return nil
	})
	return out, err
}

func (s *boltStore) Put(_ context.Context, e Entry) error {
	row := boltRow{Data: e.Data, CreatedAt: millis(e.CreatedAt), ExpiresAt: millis(e.ExpiresAt)}
	buf, err := msgpack.Marshal(&row)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		index := tx.Bucket(expiresBucket)
		if err := unindex(rows, index, e.Key); err != nil {
			return err
		}
		if err := rows.Put([]byte(e.Key), buf); err != nil {
			return err
		}
		return index.Put(indexKey(row.ExpiresAt, e.Key), nil)
	})
}

// unindex drops the index record of the current row for key, if any.
func unindex(rows, index *bolt.Bucket, key string) error {
	v := rows.Get([]byte(key))
	if v == nil {
		return nil
	}
	old, err := decodeRow(v)
	if err != nil {
		return err
	}
	return index.Delete(indexKey(old.ExpiresAt, key))
}

func (s *boltStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		if err := unindex(rows, tx.Bucket(expiresBucket), key); err != nil {
			return err
		}
		return rows.Delete([]byte(key))
	})
}

func (s *boltStore) Evict(_ context.Context, key string, now time.Time) (bool, error) {
	var removed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		v := rows.Get([]byte(key))
		if v == nil {
			return nil
		}
		row, err := decodeRow(v)
		if err != nil {
			return err
		}
		if row.ExpiresAt > millis(now) {
			return nil
		}
		if err := tx.Bucket(expiresBucket).Delete(indexKey(row.ExpiresAt, key)); err != nil {
			return err
		}
		removed = true
		return rows.Delete([]byte(key))
	})
	return removed, err
}

func (s *boltStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	limit := indexKey(millis(before), "")
	var n int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		rows := tx.Bucket(rowsBucket)
		index := tx.Bucket(expiresBucket)
		var stale [][]byte
		c := index.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k[:8], limit) < 0; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := index.Delete(k); err != nil {
				return err
			}
			if err := rows.Delete(k[8:]); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (s *boltStore) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{rowsBucket, expiresBucket} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *boltStore) Stats(_ context.Context, now time.Time) (Stats, error) {
	var st Stats
	limit := indexKey(millis(now), "")
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(rowsBucket).ForEach(func(_, v []byte) error {
			row, err := decodeRow(v)
			if err != nil {
				return err
			}
			st.TotalEntries++
			st.TotalSizeBytes += int64(len(row.Data))
			return nil
		}); err != nil {
			return err
		}
		c := tx.Bucket(expiresBucket).Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k[:8], limit) < 0; k, _ = c.Next() {
			st.ExpiredEntries++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Close closes the underlying database.
func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
