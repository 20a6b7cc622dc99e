package semindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Embedder turns text into vectors. Implementations must be safe for
// concurrent use and must return one vector per input, all with the
// same dimensionality.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Fingerprint identifies the provider and model so the index can
	// detect that its stored vectors no longer match.
	Fingerprint() string
}

// embedBatchSize bounds one request to the embedding backend;
// embedConcurrency bounds how many requests run at once.
const (
	embedBatchSize   = 50
	embedConcurrency = 4
)

// IndexSymbols embeds and stores the given entries. Entries whose
// snippet is unchanged since the last run are skipped without calling
// the embedder, so re-indexing an unchanged file costs no API traffic.
func (ix *Index) IndexSymbols(ctx context.Context, entries []Entry) error {
	if ix.embedder == nil || len(entries) == 0 {
		return nil
	}

	pending := make([]Entry, 0, len(entries))
	hashes := make([]string, 0, len(entries))
	for _, e := range entries {
		h := snippetHash(e.Snippet)
		var have string
		err := ix.db.QueryRow(
			`SELECT snippet_hash FROM embeddings WHERE symbol_key = ?`, e.SymbolKey,
		).Scan(&have)
		if err == nil && have == h {
			continue
		}
		pending = append(pending, e)
		hashes = append(hashes, h)
	}

	// Embed batches concurrently; the backend round trip dominates.
	// Upserts land in one transaction afterward since SQLite has one
	// writer.
	vectors := make([][]float32, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(pending); start += embedBatchSize {
		start := start
		end := min(start+embedBatchSize, len(pending))
		batch := pending[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, e := range batch {
				texts[i] = e.Snippet
			}
			vs, err := ix.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("%w: embed batch: %v", ErrUnavailable, err)
			}
			if len(vs) != len(batch) {
				return fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(vs), len(batch))
			}
			copy(vectors[start:end], vs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("begin embeddings: %w", err)
	}
	defer tx.Rollback()
	for i, e := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := tx.Exec(
			`INSERT INTO embeddings (symbol_key, file_path, kind, name, snippet, snippet_hash, dim, vector)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(symbol_key) DO UPDATE SET
			   file_path = excluded.file_path, kind = excluded.kind, name = excluded.name,
			   snippet = excluded.snippet, snippet_hash = excluded.snippet_hash,
			   dim = excluded.dim, vector = excluded.vector`,
			e.SymbolKey, e.Path, e.Kind, e.Name, e.Snippet, hashes[i],
			len(vectors[i]), encodeVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("store embedding: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit embeddings: %w", err)
	}
	return nil
}

func snippetHash(snippet string) string {
	sum := sha256.Sum256([]byte(snippet))
	return hex.EncodeToString(sum[:])
}

// Snippet renders the text embedded for one symbol. The layout mirrors
// what a reader would want back from a search hit: what it is, what it
// says about itself, and where it lives.
func Snippet(kind, name, doc, signature, path string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n", titleKind(kind), name)
	if doc != "" {
		fmt.Fprintf(&b, "# %s\n", firstLine(doc))
	}
	if signature != "" {
		b.WriteString(signature)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "# File: %s", path)
	return b.String()
}

func titleKind(kind string) string {
	if kind == "" {
		return kind
	}
	return strings.ToUpper(kind[:1]) + kind[1:]
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
