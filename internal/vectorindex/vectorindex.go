// Package vectorindex stores embedded chunks per document namespace and
// answers nearest-neighbour queries against them.
//
// Store is the backend contract (Pinecone in production, an in-memory cosine
// index for development and tests). Adapter wraps a Store with batching and a
// degraded-mode breaker and is what the rest of the application talks to.
package vectorindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrIndexNotFound is returned by a Store when the backing index does not
// exist.
var ErrIndexNotFound = errors.New("vector index not found")

// Metadata is stored next to each vector.
type Metadata struct {
	Text       string `json:"text"`
	PageNumber int    `json:"pageNumber"`
}

// Record is one vector addressed by a content hash.
type Record struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

// Match is a query hit.
type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// IndexSpec describes the index created when none exists.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    string
	Cloud     string
	Region    string
}

// Store is a namespace-scoped vector backend.
type Store interface {
	EnsureIndex(ctx context.Context, spec IndexSpec) error
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)
}

// Namespace maps a storage key to its namespace: the key decomposed (NFKD)
// with every non-ASCII rune dropped, so "résumé.pdf" becomes "resume.pdf".
// When that drops anything, a short hash of the raw key is appended
// ("resume.pdf~1a2b...") so distinct keys never share a namespace.
func Namespace(key string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, key)
	if err != nil {
		out = asciiOnly(key)
	}
	if out == key {
		return out
	}
	sum := sha256.Sum256([]byte(key))
	return out + "~" + hex.EncodeToString(sum[:namespaceHashBytes])
}

// namespaceHashBytes is how much of the key digest disambiguates a lossy
// namespace.
const namespaceHashBytes = 8

func asciiOnly(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if r <= unicode.MaxASCII {
			b = append(b, r)
		}
	}
	return string(b)
}
