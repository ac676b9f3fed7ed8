package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	key        TEXT PRIMARY KEY,
	value      TEXT,
	ttl        INTEGER,
	created_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_cache_ttl ON cache(ttl, created_at);
`

// SQLiteBackend is the durable cache tier. TTLs are stored alongside
// each row (ttl seconds + creation epoch) and enforced both lazily on
// read and actively by SweepExpired. Every operation touches a single
// key with a single statement, so concurrent readers, writers, and the
// sweep never observe a torn row.
type SQLiteBackend struct {
	db *sql.DB

	// now is the clock; overridden in tests to simulate expiry.
	now func() time.Time
}

// NewSQLite opens (or creates) the cache database at path and applies
// the schema and production pragmas.
func NewSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache: apply pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}

	return &SQLiteBackend{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// Get returns the value for key, treating TTL-elapsed rows as absent
// and deleting them on sight (lazy expiry — a sweep that has not yet
// run must never expose stale data).
func (s *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		ttl       int64
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, ttl, created_at FROM cache WHERE key = ?`, key,
	).Scan(&value, &ttl, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: sqlite get: %w", err)
	}

	if ttl > 0 && s.now().Unix()-createdAt > ttl {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}

	return value, true, nil
}

// Set stores the value with its TTL (0 = no expiry) and creation time.
func (s *SQLiteBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (key, value, ttl, created_at) VALUES (?, ?, ?, ?)`,
		key, value, int64(ttl.Seconds()), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache: sqlite set: %w", err)
	}
	return nil
}

// Delete removes the key; absent keys are a no-op.
func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache: sqlite delete: %w", err)
	}
	return nil
}

// Exists reports raw key presence (TTL is not consulted; expiry is a
// Get/sweep concern).
func (s *SQLiteBackend) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM cache WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: sqlite exists: %w", err)
	}
	return true, nil
}

// Count returns the number of rows, including not-yet-swept expired ones.
func (s *SQLiteBackend) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: sqlite count: %w", err)
	}
	return n, nil
}

// Flush empties the cache table.
func (s *SQLiteBackend) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache`); err != nil {
		return fmt.Errorf("cache: sqlite flush: %w", err)
	}
	return nil
}

// SweepExpired removes all rows whose TTL has elapsed and returns how
// many were deleted. One statement, so it is atomic with respect to
// concurrent single-key reads and writes.
func (s *SQLiteBackend) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache WHERE ttl > 0 AND (created_at + ttl) < ?`, s.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("cache: sqlite sweep: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
