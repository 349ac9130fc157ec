// Package journal keeps a local SQLite log of what the assistant did:
// commands, alerts, button presses and IR learn outcomes.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Kind groups journal entries.
type Kind string

const (
	KindCommand Kind = "command"
	KindAlert   Kind = "alert"
	KindButton  Kind = "button"
	KindLearn   Kind = "learn"
	KindVoice   Kind = "voice"
)

// Entry is one journal row.
type Entry struct {
	ID     int64     `json:"id"`
	At     time.Time `json:"at"`
	Kind   Kind      `json:"kind"`
	Name   string    `json:"name"`
	Detail string    `json:"detail,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	at_ms  INTEGER NOT NULL,
	kind   TEXT    NOT NULL,
	name   TEXT    NOT NULL,
	detail TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS events_at ON events(at_ms);
`

// Journal is safe for concurrent use.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the journal at path with WAL and a busy timeout.
// ":memory:" gives a private in-memory journal.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own database
		db.SetMaxOpenConns(1)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s on %s: %w", pragma, path, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Record appends an entry.
func (j *Journal) Record(ctx context.Context, kind Kind, name, detail string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (at_ms, kind, name, detail) VALUES (?, ?, ?, ?)`,
		j.now().UnixMilli(), string(kind), name, detail)
	if err != nil {
		return fmt.Errorf("record %s %s: %w", kind, name, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at_ms, kind, name, detail FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			atMS int64
			kind string
		)
		if err := rows.Scan(&e.ID, &atMS, &kind, &e.Name, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.At = time.UnixMilli(atMS)
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of entries of kind, or of every kind when
// kind is empty.
func (j *Journal) Count(ctx context.Context, kind Kind) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	} else {
		err = j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE kind = ?`, string(kind)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
