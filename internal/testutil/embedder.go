package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder. Texts that share
// words get a high cosine score, which is enough to exercise retrieval
// without a remote model.
type HashEmbedder struct {
	Dim   int
	Calls atomic.Int64
}

// Embed hashes each lower-cased word into one of Dim buckets.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h.Calls.Add(1)
	dim := h.Dim
	if dim <= 0 {
		dim = 64
	}
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[int(f.Sum32())%dim]++
	}
	vec[0] += 0.01 // never all-zero
	return vec, nil
}
