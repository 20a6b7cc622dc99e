package semindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// DefaultMinScore filters out hits with near-zero similarity that a
// brute-force scan would otherwise surface for any query.
const DefaultMinScore = 0.25

// Search embeds the query and returns the k nearest symbols by cosine
// similarity, best first, ties broken by symbol key. Hits below
// minScore are dropped; pass a negative minScore to keep everything.
// Non-empty kinds restrict hits to those symbol kinds.
func (ix *Index) Search(ctx context.Context, query string, k int, minScore float64, kinds ...string) ([]Hit, error) {
	if ix.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrUnavailable)
	}
	if k <= 0 {
		k = 10
	}
	var kindSet map[string]bool
	if len(kinds) > 0 {
		kindSet = make(map[string]bool, len(kinds))
		for _, kind := range kinds {
			kindSet[kind] = true
		}
	}

	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrUnavailable, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for query", ErrUnavailable, len(vectors))
	}
	queryVec := vectors[0]

	rows, err := ix.db.QueryContext(ctx,
		`SELECT symbol_key, file_path, kind, name, snippet, vector FROM embeddings`,
	)
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var blob []byte
		if err := rows.Scan(&h.SymbolKey, &h.Path, &h.Kind, &h.Name, &h.Snippet, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if kindSet != nil && !kindSet[h.Kind] {
			continue
		}
		h.Score = cosine(queryVec, decodeVector(blob))
		if h.Score < minScore {
			continue
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].SymbolKey < hits[j].SymbolKey
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// cosine returns similarity in [-1, 1], or 0 for mismatched or zero
// vectors.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Vectors are stored as little-endian float32 blobs.

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
