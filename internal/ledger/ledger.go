// Package ledger provides a SQLite-backed record of per-document ingestion
// status. It is the durable "indexed" flag consumers poll after triggering an
// ingestion: processing while the pipeline runs, indexed with a chunk count on
// success, failed with the failing step on error. Records survive restarts.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Status is the lifecycle state of one document in the index.
type Status string

const (
	// StatusProcessing means an ingestion for the document is in flight.
	StatusProcessing Status = "processing"
	// StatusIndexed means the document's chunks are live in the index.
	StatusIndexed Status = "indexed"
	// StatusFailed means the last ingestion attempt aborted; the index holds
	// no chunks for the document.
	StatusFailed Status = "failed"
)

// ErrNotFound is returned by Get when no ingestion was ever recorded for the
// document.
var ErrNotFound = errors.New("ledger: document not found")

// Record is the stored state of one document.
type Record struct {
	DocumentID string
	Status     Status
	// ChunkCount is the number of chunks indexed (StatusIndexed only).
	ChunkCount int
	// FailedStep names the pipeline step that aborted (StatusFailed only).
	FailedStep string
	// Detail is the failure message (StatusFailed only).
	Detail    string
	UpdatedAt time.Time
}

// SQLiteLedger persists ingestion records in a local SQLite database.
// Safe for concurrent use.
type SQLiteLedger struct {
	db *sql.DB
}

// DefaultDBPath returns the default ledger location, ~/.aigw/ledger.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("ledger: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".aigw")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("ledger: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "ledger.db"), nil
}

// Open opens (or creates) a SQLiteLedger at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteLedger, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// migrate creates the schema if it does not already exist.
func (l *SQLiteLedger) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    document_id  TEXT    PRIMARY KEY,
    status       TEXT    NOT NULL CHECK(status IN ('processing','indexed','failed')),
    chunk_count  INTEGER NOT NULL DEFAULT 0,
    failed_step  TEXT    NOT NULL DEFAULT '',
    detail       TEXT    NOT NULL DEFAULT '',
    updated_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
`
	if _, err := l.db.Exec(ddl); err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	return nil
}

// upsert writes the full record for one document, replacing any prior state.
func (l *SQLiteLedger) upsert(ctx context.Context, r Record) error {
	const q = `
INSERT INTO documents (document_id, status, chunk_count, failed_step, detail, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
    status      = excluded.status,
    chunk_count = excluded.chunk_count,
    failed_step = excluded.failed_step,
    detail      = excluded.detail,
    updated_at  = excluded.updated_at`
	_, err := l.db.ExecContext(ctx, q,
		r.DocumentID, string(r.Status), r.ChunkCount, r.FailedStep, r.Detail, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("ledger: upsert %s: %w", r.DocumentID, err)
	}
	return nil
}

// MarkProcessing records that an ingestion for the document has started.
func (l *SQLiteLedger) MarkProcessing(ctx context.Context, documentID string) error {
	return l.upsert(ctx, Record{DocumentID: documentID, Status: StatusProcessing})
}

// MarkIndexed records a successful ingestion and the number of live chunks.
func (l *SQLiteLedger) MarkIndexed(ctx context.Context, documentID string, chunkCount int) error {
	return l.upsert(ctx, Record{DocumentID: documentID, Status: StatusIndexed, ChunkCount: chunkCount})
}

// MarkFailed records an aborted ingestion with the failing step and cause.
func (l *SQLiteLedger) MarkFailed(ctx context.Context, documentID, step string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return l.upsert(ctx, Record{DocumentID: documentID, Status: StatusFailed, FailedStep: step, Detail: detail})
}

// Get returns the recorded state for one document, or ErrNotFound.
func (l *SQLiteLedger) Get(ctx context.Context, documentID string) (Record, error) {
	const q = `
SELECT status, chunk_count, failed_step, detail, updated_at
FROM   documents
WHERE  document_id = ?`

	var r Record
	var status string
	var ts int64
	err := l.db.QueryRowContext(ctx, q, documentID).Scan(&status, &r.ChunkCount, &r.FailedStep, &r.Detail, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("ledger: get %s: %w", documentID, err)
	}
	r.DocumentID = documentID
	r.Status = Status(status)
	r.UpdatedAt = time.Unix(ts, 0)
	return r, nil
}

// Close releases the database connection pool.
func (l *SQLiteLedger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("ledger: close: %w", err)
	}
	return nil
}
