package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tubepulse/tubepulse/pkg/models"
)

// Tracker records and queries remote analyzer calls.
type Tracker interface {
	// Record stores a call record.
	Record(ctx context.Context, rec models.CallRecord) error
	// CountSince returns the number of calls made since a given time.
	CountSince(ctx context.Context, since time.Time) (int64, error)
	// Summary returns calls aggregated by model and outcome since a given time.
	// A zero since includes all calls.
	Summary(ctx context.Context, since time.Time) ([]models.CallSummary, error)
	// Recent returns the most recent calls, newest first.
	Recent(ctx context.Context, limit int) ([]models.CallRecord, error)
	// Purge deletes calls older than before and returns how many were removed.
	Purge(ctx context.Context, before time.Time) (int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS analysis_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT NOT NULL,
	model TEXT NOT NULL,
	outcome TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_calls_time ON analysis_calls(created_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores a call record. A zero CreatedAt is set to now.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.CallRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO analysis_calls (fingerprint, model, outcome, attempts, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Fingerprint, rec.Model, rec.Outcome, rec.Attempts, rec.LatencyMs, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

// CountSince returns the number of calls made since a given time.
func (t *SQLiteTracker) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analysis_calls WHERE created_at >= ?`,
		since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return n, nil
}

// Summary returns calls aggregated by model and outcome.
func (t *SQLiteTracker) Summary(ctx context.Context, since time.Time) ([]models.CallSummary, error) {
	query := `SELECT model, outcome, COUNT(*), SUM(attempts), AVG(latency_ms) FROM analysis_calls`
	var args []any
	if !since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` GROUP BY model, outcome ORDER BY model, outcome`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.CallSummary
	for rows.Next() {
		var s models.CallSummary
		if err := rows.Scan(&s.Model, &s.Outcome, &s.Calls, &s.TotalAttempts, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Recent returns the most recent calls, newest first.
func (t *SQLiteTracker) Recent(ctx context.Context, limit int) ([]models.CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, fingerprint, model, outcome, attempts, latency_ms, created_at
		 FROM analysis_calls ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent calls: %w", err)
	}
	defer rows.Close()

	var records []models.CallRecord
	for rows.Next() {
		var r models.CallRecord
		if err := rows.Scan(&r.ID, &r.Fingerprint, &r.Model, &r.Outcome, &r.Attempts, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Purge deletes calls older than before.
func (t *SQLiteTracker) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := t.db.ExecContext(ctx, `DELETE FROM analysis_calls WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge calls: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge calls: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
