// Package semindex maintains the semantic half of the index: one
// embedding per symbol, stored in a SQLite database beside the graph.
// Vectors come from a pluggable Embedder; queries are a brute-force
// cosine scan, which stays comfortably fast at code-repository scale.
package semindex

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// ErrUnavailable marks failures of the embedding backend. Callers treat
// hits as absent rather than failing the whole query.
var ErrUnavailable = errors.New("semantic index unavailable")

// Entry is one symbol to embed.
type Entry struct {
	SymbolKey string
	Path      string
	Kind      string
	Name      string
	Snippet   string
}

// Hit is one search result, scored by cosine similarity in [0, 1].
type Hit struct {
	SymbolKey string
	Path      string
	Kind      string
	Name      string
	Snippet   string
	Score     float64
}

// Index is the on-disk semantic index. Safe for concurrent use; SQLite
// serializes writers and the embedder is required to be thread-safe.
type Index struct {
	db       *sql.DB
	embedder Embedder
}

// Open opens or creates the index database at path.
func Open(path string, embedder Embedder) (*Index, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=30000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open semantic index: %w", err)
	}
	return &Index{db: db, embedder: embedder}, nil
}

func (ix *Index) Close() error { return ix.db.Close() }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS embeddings (
	symbol_key   TEXT PRIMARY KEY,
	file_path    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	name         TEXT NOT NULL,
	snippet      TEXT NOT NULL,
	snippet_hash TEXT NOT NULL,
	dim          INTEGER NOT NULL,
	vector       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embeddings_path ON embeddings(file_path);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Migrate creates the schema and reconciles the stored embedder
// fingerprint: vectors from a different model are useless, so a
// mismatch wipes the table and records the new fingerprint.
func (ix *Index) Migrate() error {
	if _, err := ix.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate semantic index: %w", err)
	}
	if ix.embedder == nil {
		return nil
	}

	want := ix.embedder.Fingerprint()
	var have string
	err := ix.db.QueryRow(`SELECT value FROM metadata WHERE key = 'embedder'`).Scan(&have)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read embedder fingerprint: %w", err)
	}
	if have == want {
		return nil
	}
	if have != "" {
		if _, err := ix.db.Exec(`DELETE FROM embeddings`); err != nil {
			return fmt.Errorf("reset embeddings: %w", err)
		}
	}
	_, err = ix.db.Exec(
		`INSERT INTO metadata (key, value) VALUES ('embedder', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, want,
	)
	if err != nil {
		return fmt.Errorf("record embedder fingerprint: %w", err)
	}
	return nil
}

// Count returns the number of embedded symbols.
func (ix *Index) Count() (int, error) {
	var n int
	if err := ix.db.QueryRow(`SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// DeleteByFile removes all embeddings for symbols declared in path.
func (ix *Index) DeleteByFile(path string) error {
	if _, err := ix.db.Exec(`DELETE FROM embeddings WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// DeleteMissing removes a file's embeddings for symbols not in keep.
// Re-indexing calls this instead of DeleteByFile so surviving symbols
// retain their snippet hashes and skip re-embedding.
func (ix *Index) DeleteMissing(path string, keep []string) error {
	if len(keep) == 0 {
		return ix.DeleteByFile(path)
	}
	placeholders := strings.Repeat("?,", len(keep)-1) + "?"
	args := make([]any, 0, len(keep)+1)
	args = append(args, path)
	for _, k := range keep {
		args = append(args, k)
	}
	_, err := ix.db.Exec(
		`DELETE FROM embeddings WHERE file_path = ? AND symbol_key NOT IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("delete missing embeddings: %w", err)
	}
	return nil
}

// Clear removes every embedding but keeps the fingerprint.
func (ix *Index) Clear() error {
	if _, err := ix.db.Exec(`DELETE FROM embeddings`); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	return nil
}
