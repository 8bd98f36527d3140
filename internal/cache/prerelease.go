// Package cache provides the prerelease issuance log: a small SQLite
// database recording every prerelease number handed out per tag and base
// version, so numbering survives across process invocations.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// PrereleaseLog tracks issued prerelease sequence numbers keyed by
// (tag, base version).
type PrereleaseLog struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS prerelease_seq (
	tag TEXT NOT NULL,
	base TEXT NOT NULL,
	last INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (tag, base)
);
`

// Open opens or creates the issuance log at {dir}/prerelease.db.
func Open(dir string) (*PrereleaseLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, "prerelease.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening prerelease log: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &PrereleaseLog{db: db, path: dbPath}, nil
}

// Close closes the log database.
func (l *PrereleaseLog) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Next returns the next prerelease number for (tag, base), starting at 0,
// and records the issuance.
func (l *PrereleaseLog) Next(tag, base string) (int, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var last sql.NullInt64
	err = tx.QueryRow(
		`SELECT last FROM prerelease_seq WHERE tag = ? AND base = ?`,
		tag, base,
	).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("querying prerelease sequence: %w", err)
	}

	next := 0
	if last.Valid {
		next = int(last.Int64) + 1
	}

	_, err = tx.Exec(
		`INSERT INTO prerelease_seq (tag, base, last, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(tag, base) DO UPDATE SET
			last = excluded.last,
			updated_at = excluded.updated_at`,
		tag, base, next, nowMs(),
	)
	if err != nil {
		return 0, fmt.Errorf("recording prerelease issuance: %w", err)
	}

	return next, tx.Commit()
}

// Peek returns the number Next would issue, without recording anything.
func (l *PrereleaseLog) Peek(tag, base string) (int, error) {
	var last sql.NullInt64
	err := l.db.QueryRow(
		`SELECT last FROM prerelease_seq WHERE tag = ? AND base = ?`,
		tag, base,
	).Scan(&last)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying prerelease sequence: %w", err)
	}
	return int(last.Int64) + 1, nil
}

// Clear removes all issuance records.
func (l *PrereleaseLog) Clear() error {
	_, err := l.db.Exec(`DELETE FROM prerelease_seq`)
	return err
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
