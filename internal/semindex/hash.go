package semindex

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic, offline embedder: each token hashes
// into a bucket of a fixed-size vector, so similarity reduces to token
// overlap. It needs no network and always produces the same vector for
// the same text, which makes indexing usable without an embedding
// service and keeps tests hermetic.
type HashEmbedder struct {
	Dim int
}

const defaultHashDim = 256

func (e *HashEmbedder) dim() int {
	if e.Dim > 0 {
		return e.Dim
	}
	return defaultHashDim
}

func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embedOne(text)
	}
	return vectors, nil
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	dim := e.dim()
	vec := make([]float32, dim)
	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		vec[h.Sum64()%uint64(dim)]++
	}

	var norm float64
	for _, f := range vec {
		norm += float64(f) * float64(f)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// tokenize lowercases and splits on non-alphanumeric runes, splitting
// snake_case and keeping digits with their word.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (e *HashEmbedder) Fingerprint() string {
	return fmt.Sprintf("hash/%d", e.dim())
}
