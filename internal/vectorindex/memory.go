package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process cosine-similarity index. Namespaces are fully
// isolated from each other.
type MemoryStore struct {
	mu  sync.RWMutex
	ns  map[string]map[string]Record
	dim int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ns: make(map[string]map[string]Record)}
}

// EnsureIndex records the dimension; vectors of any other length are
// rejected afterwards.
func (m *MemoryStore) EnsureIndex(_ context.Context, spec IndexSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim == 0 {
		m.dim = spec.Dimension
	}
	return nil
}

// Upsert inserts or overwrites records by id.
func (m *MemoryStore) Upsert(_ context.Context, namespace string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.ns[namespace]
	if !ok {
		bucket = make(map[string]Record)
		m.ns[namespace] = bucket
	}
	for _, r := range records {
		if m.dim > 0 && len(r.Values) != m.dim {
			return errDimension(len(r.Values), m.dim)
		}
		vals := append([]float32(nil), r.Values...)
		r.Values = vals
		bucket[r.ID] = r
	}
	return nil
}

// Query ranks the namespace by cosine similarity.
func (m *MemoryStore) Query(_ context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket := m.ns[namespace]
	out := make([]Match, 0, len(bucket))
	for id, r := range bucket {
		out = append(out, Match{ID: id, Score: cosine(vector, r.Values), Metadata: r.Metadata})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Count returns the number of records in namespace.
func (m *MemoryStore) Count(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ns[namespace])
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func errDimension(got, want int) error {
	return fmt.Errorf("vector dimension %d does not match index dimension %d", got, want)
}
