// Package history provides a SQLite-backed query log. Each handled
// retrieval query may be recorded with its gating outcome so operators
// can audit what was asked and how confident the index was. The log is
// an observability aid: failures to record never fail the query.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry is one recorded retrieval query.
type Entry struct {
	// Query is the raw query text.
	Query string
	// Status is the gate decision ("enough" or "insufficient").
	Status string
	// TopScore is the best context's similarity score.
	TopScore float64
	// MeanTopK is the mean top-k similarity score.
	MeanTopK float64
	// Method is the search method ("rag_only" or "hybrid").
	Method string
	// CreatedAt is when the query was recorded.
	CreatedAt time.Time
}

// QueryLog persists and retrieves handled queries. Implementations
// must be safe for concurrent use.
type QueryLog interface {
	// Append records one handled query.
	Append(ctx context.Context, e Entry) error
	// Recent returns the most recent n entries, oldest-first. If fewer
	// than n entries exist, all are returned.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteLog is a QueryLog backed by a local SQLite database.
type SQLiteLog struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the query log database.
// It resolves to ~/.raggate/history.db, creating the directory if
// needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".raggate")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("history: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteLog at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteLog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	l := &SQLiteLog{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// migrate creates the schema if it does not already exist.
func (l *SQLiteLog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS queries (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    query       TEXT    NOT NULL,
    status      TEXT    NOT NULL CHECK(status IN ('enough','insufficient')),
    top_score   REAL    NOT NULL,
    mean_topk   REAL    NOT NULL,
    method      TEXT    NOT NULL,
    created_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_queries_created
    ON queries (created_at);
`
	if _, err := l.db.Exec(ddl); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append records one handled query.
func (l *SQLiteLog) Append(ctx context.Context, e Entry) error {
	const q = `INSERT INTO queries (query, status, top_score, mean_topk, method, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := l.db.ExecContext(ctx, q, e.Query, e.Status, e.TopScore, e.MeanTopK, e.Method, ts.Unix()); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries, oldest-first. Uses a
// subquery to select the tail then re-order for display.
func (l *SQLiteLog) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `
SELECT query, status, top_score, mean_topk, method, created_at FROM (
    SELECT id, query, status, top_score, mean_topk, method, created_at
    FROM   queries
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := l.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Query, &e.Status, &e.TopScore, &e.MeanTopK, &e.Method, &ts); err != nil {
			return nil, fmt.Errorf("history: recent scan: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (l *SQLiteLog) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("history: close: %w", err)
	}
	return nil
}
