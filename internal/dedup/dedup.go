// Package dedup keeps track of forwarded document ids to prevent duplicates.
// The set is persisted in a SQLite database so it survives restarts, and
// mirrored in memory so membership checks never touch the database.
package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS forwarded_documents (
	document_id  INTEGER PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	forwarded_at INTEGER NOT NULL
)`

// Record is one remembered forward.
type Record struct {
	DocumentID  int64
	Title       string
	ForwardedAt time.Time
}

// Tracker is a durable set of forwarded document ids.
type Tracker struct {
	mu  sync.Mutex
	db  *sql.DB
	ids map[int64]struct{}
}

// Open loads (or creates) a tracker backed by the SQLite database at path.
// The parent directory is created if it does not exist yet.
func Open(path string) (*Tracker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	// synchronous(full) so a forward recorded here has reached disk before
	// the document is reported as handled.
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(full)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping tracker db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tracker schema: %w", err)
	}

	t := &Tracker{
		db:  db,
		ids: make(map[int64]struct{}),
	}
	if err := t.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tracker) load() error {
	rows, err := t.db.Query(`SELECT document_id FROM forwarded_documents`)
	if err != nil {
		return fmt.Errorf("load forwarded ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan forwarded id: %w", err)
		}
		t.ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate forwarded ids: %w", err)
	}
	return nil
}

// Contains reports whether the document has already been forwarded.
func (t *Tracker) Contains(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[id]
	return ok
}

// Add records a forwarded document. The row is committed before the
// in-memory set is updated, so a nil return means the id is durable.
// Adding an id twice is a no-op.
func (t *Tracker) Add(ctx context.Context, id int64, title string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.ExecContext(ctx, `
INSERT OR IGNORE INTO forwarded_documents (document_id, title, forwarded_at)
VALUES (?, ?, ?)
`, id, title, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record forwarded document %d: %w", id, err)
	}
	t.ids[id] = struct{}{}
	return nil
}

// Count returns the number of tracked ids.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

// Records lists every remembered forward, oldest first.
func (t *Tracker) Records(ctx context.Context) ([]Record, error) {
	rows, err := t.db.QueryContext(ctx, `
SELECT document_id, title, forwarded_at
FROM forwarded_documents
ORDER BY forwarded_at ASC, document_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list forwarded documents: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var forwardedAt int64
		if err := rows.Scan(&r.DocumentID, &r.Title, &forwardedAt); err != nil {
			return nil, fmt.Errorf("scan forwarded document: %w", err)
		}
		r.ForwardedAt = time.UnixMilli(forwardedAt).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forwarded documents: %w", err)
	}
	return records, nil
}

// Close releases the database handle.
func (t *Tracker) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	return t.db.Close()
}
