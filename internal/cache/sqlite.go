package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the name of the SQLite cache file inside the storage directory.
const FileName = "remote_caching.db"

const schemaVersion = 1

func sqlitePath(dir string) string { return filepath.Join(dir, FileName) }

type sqliteStore struct {
	db *sql.DB
}

var _ Store = (*sqliteStore)(nil)

// OpenSQLite opens or creates the cache table at path.
// ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (Store, error) {
	memory := path == "" || path == ":memory:"
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if memory {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache(expires_at)`,
		fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion),
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		data               string
		createdAt, expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, created_at, expires_at FROM cache WHERE key = ? LIMIT 1`, key,
	).Scan(&data, &createdAt, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Entry{
		Key:       key,
		Data:      data,
		CreatedAt: fromMillis(createdAt),
		ExpiresAt: fromMillis(expires),
	}, nil
}

func (s *sqliteStore) Put(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (key, data, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		e.Key, e.Data, millis(e.CreatedAt), millis(e.ExpiresAt),
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key)
	return err
}

func (s *sqliteStore) Evict(ctx context.Context, key string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ? AND expires_at <= ?`, key, millis(now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE expires_at < ?`, millis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache`)
	return err
}

func (s *sqliteStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var st Stats
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return st, err
	}
	defer tx.Rollback()

	// LENGTH on a TEXT value counts characters; the cast makes it count bytes.
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(CAST(data AS BLOB))), 0) FROM cache`,
	).Scan(&st.TotalEntries, &st.TotalSizeBytes); err != nil {
		return Stats{}, err
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache WHERE expires_at < ?`, millis(now),
	).Scan(&st.ExpiredEntries); err != nil {
		return Stats{}, err
	}
	return st, tx.Commit()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
