// Package sqlite persists snapshots of the in-memory analysis caches so a restarted
// process can start warm.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tubepulse/tubepulse/pkg/models"
)

// Store keeps cache snapshots in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_name TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	payload BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL,
	PRIMARY KEY (cache_name, fingerprint)
);
`

// New opens a Store at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Save replaces the snapshot of the named cache with records.
func (s *Store) Save(ctx context.Context, name string, records []models.CacheRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ?`, name); err != nil {
		return fmt.Errorf("cache save: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (cache_name, fingerprint, payload, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, name, r.Fingerprint, r.Payload, r.CreatedAt.UnixMilli(), int64(r.TTL.Seconds())); err != nil {
			return fmt.Errorf("cache save %s: %w", r.Fingerprint, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	return nil
}

// Load returns the unexpired records of the named cache, oldest first.
func (s *Store) Load(ctx context.Context, name string) ([]models.CacheRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, payload, created_at, ttl_seconds FROM cache_entries
		 WHERE cache_name = ? AND created_at + ttl_seconds * 1000 >= ?
		 ORDER BY created_at ASC, rowid ASC`,
		name, s.now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("cache load: %w", err)
	}
	defer rows.Close()

	var records []models.CacheRecord
	for rows.Next() {
		var (
			r          models.CacheRecord
			createdMs  int64
			ttlSeconds int64
		)
		if err := rows.Scan(&r.Fingerprint, &r.Payload, &createdMs, &ttlSeconds); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		r.TTL = time.Duration(ttlSeconds) * time.Second
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats returns the number of persisted and expired rows per cache.
func (s *Store) Stats(ctx context.Context) ([]models.SnapshotStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_name, COUNT(*), COALESCE(SUM(CASE WHEN created_at + ttl_seconds * 1000 < ? THEN 1 ELSE 0 END), 0)
		 FROM cache_entries GROUP BY cache_name ORDER BY cache_name`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close()

	var stats []models.SnapshotStats
	for rows.Next() {
		var st models.SnapshotStats
		if err := rows.Scan(&st.Cache, &st.Entries, &st.Expired); err != nil {
			return nil, fmt.Errorf("scan cache stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Clear removes snapshot rows. If expiredOnly is true, only expired rows are removed.
// It returns the number of rows removed.
func (s *Store) Clear(ctx context.Context, expiredOnly bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if expiredOnly {
		res, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE created_at + ttl_seconds * 1000 < ?`, s.now().UnixMilli())
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	}
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
