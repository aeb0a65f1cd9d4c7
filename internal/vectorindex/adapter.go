package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-chatpdf-backend/internal/observability"
)

// DefaultBatchSize bounds the records sent per upsert call.
const DefaultBatchSize = 100

// FallbackID identifies the canned match served in degraded mode.
const FallbackID = "fallback"

// Adapter fronts a Store with batched upserts and a query breaker.
//
// The first failed query latches the adapter into degraded mode for the life
// of the process: later queries skip the store and return the fallback match
// (or nothing when no fallback text is configured). Concurrent failures may
// race to set the flag; the outcome is the same.
type Adapter struct {
	store     Store
	batchSize int
	fallback  string
	degraded  atomic.Bool
}

// NewAdapter wraps store. batchSize <= 0 uses DefaultBatchSize.
func NewAdapter(store Store, batchSize int, fallbackText string) *Adapter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Adapter{store: store, batchSize: batchSize, fallback: fallbackText}
}

// Degraded reports whether the breaker has tripped.
func (a *Adapter) Degraded() bool { return a.degraded.Load() }

// EnsureIndex creates the backing index when missing.
func (a *Adapter) EnsureIndex(ctx context.Context, spec IndexSpec) error {
	if err := a.store.EnsureIndex(ctx, spec); err != nil {
		observability.VectorOps.WithLabelValues("ensure_index", observability.OutcomeError).Inc()
		return err
	}
	observability.VectorOps.WithLabelValues("ensure_index", observability.OutcomeOK).Inc()
	return nil
}

// Upsert sends records in batches, one store call per batch. The first
// failing batch stops the run and its error is returned.
func (a *Adapter) Upsert(ctx context.Context, namespace string, records []Record) error {
	total := (len(records) + a.batchSize - 1) / a.batchSize
	for i := 0; i < len(records); i += a.batchSize {
		end := i + a.batchSize
		if end > len(records) {
			end = len(records)
		}
		n := i/a.batchSize + 1
		if err := a.store.Upsert(ctx, namespace, records[i:end]); err != nil {
			observability.VectorOps.WithLabelValues("upsert", observability.OutcomeError).Inc()
			return fmt.Errorf("upsert batch %d/%d: %w", n, total, err)
		}
		observability.VectorOps.WithLabelValues("upsert", observability.OutcomeOK).Inc()
		zerolog.Ctx(ctx).Debug().Str("namespace", namespace).Int("batch", n).Int("batches", total).Msg("upserted vector batch")
	}
	return nil
}

// Query returns up to topK matches sorted by score, highest first. It never
// fails: errors trip the breaker and yield the fallback result.
func (a *Adapter) Query(ctx context.Context, namespace string, vector []float32, topK int) []Match {
	if a.degraded.Load() {
		observability.VectorOps.WithLabelValues("query", observability.OutcomeFallback).Inc()
		return a.fallbackMatches()
	}

	matches, err := a.store.Query(ctx, namespace, vector, topK)
	if err != nil {
		if a.degraded.CompareAndSwap(false, true) {
			observability.VectorDegraded.Set(1)
			zerolog.Ctx(ctx).Error().Err(err).Str("namespace", namespace).Msg("vector query failed, switching to degraded mode")
		}
		observability.VectorOps.WithLabelValues("query", observability.OutcomeError).Inc()
		return a.fallbackMatches()
	}
	observability.VectorOps.WithLabelValues("query", observability.OutcomeOK).Inc()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

func (a *Adapter) fallbackMatches() []Match {
	if a.fallback == "" {
		return nil
	}
	return []Match{{ID: FallbackID, Score: 0, Metadata: Metadata{Text: a.fallback}}}
}
