// Package store is the SQLite persistence layer for the code knowledge
// graph: files, nodes, and edges, with transactional per-file generation
// replacement and stub bookkeeping for unresolved references.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrUnavailable marks transient storage failures (locked or busy
// database). Callers may retry with backoff; all other errors are final.
var ErrUnavailable = errors.New("graph store unavailable")

// ErrInvariant marks a violated extraction contract, such as an edge whose
// source is not part of its generation. It signals an upstream bug, not a
// data problem; retrying cannot help.
var ErrInvariant = errors.New("invariant violated")

// Store is the SQLite data access layer for the knowledge graph.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id            INTEGER PRIMARY KEY,
  path          TEXT NOT NULL UNIQUE,
  language      TEXT NOT NULL,
  hash          TEXT,
  line_count    INTEGER DEFAULT 0,
  last_indexed  TIMESTAMP
);

CREATE TABLE IF NOT EXISTS nodes (
  id             INTEGER PRIMARY KEY,
  file_id        INTEGER REFERENCES files(id),
  key            TEXT NOT NULL UNIQUE,
  kind           TEXT NOT NULL,
  name           TEXT NOT NULL,
  qualified_name TEXT NOT NULL,
  start_line     INTEGER DEFAULT 0,
  end_line       INTEGER DEFAULT 0,
  signature      TEXT DEFAULT '',
  doc            TEXT DEFAULT '',
  is_stub        BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS edges (
  id         INTEGER PRIMARY KEY,
  file_id    INTEGER NOT NULL REFERENCES files(id),
  source_id  INTEGER NOT NULL REFERENCES nodes(id),
  target_id  INTEGER NOT NULL REFERENCES nodes(id),
  kind       TEXT NOT NULL,
  line       INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS metadata (
  key    TEXT PRIMARY KEY,
  value  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_language ON files(language);
CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file_id);
CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);
CREATE INDEX IF NOT EXISTS idx_nodes_qualified ON nodes(qualified_name);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);
CREATE INDEX IF NOT EXISTS idx_edges_file ON edges(file_id);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id, kind);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id, kind);
`

// wrap adds the operation to an error, tagging transient SQLite conditions
// with ErrUnavailable so callers can retry them.
func wrap(op string, err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
