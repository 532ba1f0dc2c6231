// Package store persists bundles quarantined by the requestBundleStorage
// action (spec.md §4.9) using SQLite, pure Go, no CGO.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite driver
)

// Entry is one quarantined bundle.
type Entry struct {
	ID          int64
	At          time.Time
	SourceEID   string
	DestEID     string
	ReasonEvent string
	Raw         []byte
}

// Store persists quarantined bundles to SQLite.
type Store interface {
	Put(e Entry) (int64, error)
	Get(id int64) (*Entry, error)
	List(limit int) ([]Entry, error)
	Close() error
}

// SQLiteStore is the default Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path and runs migrations.
// Use ":memory:" for an in-memory database, useful for tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("store: setting WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put inserts a quarantined bundle and returns its assigned ID.
func (s *SQLiteStore) Put(e Entry) (int64, error) {
	result, err := s.db.Exec(
		"INSERT INTO quarantine (at, source_eid, dest_eid, reason_event, raw) VALUES (?, ?, ?, ?, ?)",
		e.At, e.SourceEID, e.DestEID, e.ReasonEvent, e.Raw,
	)
	if err != nil {
		return 0, fmt.Errorf("store: inserting quarantine entry: %w", err)
	}
	return result.LastInsertId()
}

// Get returns the quarantined bundle with the given ID, or nil if absent.
func (s *SQLiteStore) Get(id int64) (*Entry, error) {
	var e Entry
	err := s.db.QueryRow(
		"SELECT id, at, source_eid, dest_eid, reason_event, raw FROM quarantine WHERE id = ?", id,
	).Scan(&e.ID, &e.At, &e.SourceEID, &e.DestEID, &e.ReasonEvent, &e.Raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: querying quarantine entry %d: %w", id, err)
	}
	return &e, nil
}

// List returns the most recently quarantined entries, newest first.
func (s *SQLiteStore) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		"SELECT id, at, source_eid, dest_eid, reason_event, raw FROM quarantine ORDER BY at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing quarantine entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.At, &e.SourceEID, &e.DestEID, &e.ReasonEvent, &e.Raw); err != nil {
			return nil, fmt.Errorf("store: scanning quarantine entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const schema = `
CREATE TABLE IF NOT EXISTS quarantine (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    at           DATETIME NOT NULL,
    source_eid   TEXT NOT NULL DEFAULT '',
    dest_eid     TEXT NOT NULL DEFAULT '',
    reason_event TEXT NOT NULL DEFAULT '',
    raw          BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quarantine_at ON quarantine(at);
`

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	return nil
}
