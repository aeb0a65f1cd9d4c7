// Package embedding turns text into fixed-dimension vectors through a remote
// embedding model.
//
// An Embedder is built once per process and shared. It holds the pacing
// limiter that spaces out upstream calls, so concurrent callers queue behind
// each other instead of tripping upstream rate limits. Races on the limiter
// only make pacing slightly imprecise.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-chatpdf-backend/internal/config"
	"github.com/tbourn/go-chatpdf-backend/internal/observability"
)

var (
	// ErrQuotaExceeded is returned without retrying when upstream reports an
	// exhausted quota.
	ErrQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrRateLimited is returned once the rate-limit retries are used up.
	ErrRateLimited = errors.New("embedding rate limited")
	// ErrEmptyEmbedding is returned when upstream answers without a vector.
	ErrEmptyEmbedding = errors.New("empty embedding")
	// ErrDimensionMismatch is returned when the vector length differs from the
	// configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Model is a single remote embedding call.
type Model interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// Embedder normalizes input, paces and retries calls to a Model, and
// optionally caches results.
type Embedder struct {
	model      Model
	limiter    *rate.Limiter
	backoff    time.Duration
	maxRetries int
	maxChars   int
	dimension  int
	cache      Cache

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an Embedder from cfg. cache may be nil.
func New(model Model, cfg config.EmbedderConfig, cache Cache) *Embedder {
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.PacingInterval > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.PacingInterval), 1)
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 8000
	}
	retries := cfg.MaxRateLimitRetry
	if retries < 0 {
		retries = 0
	}
	return &Embedder{
		model:      model,
		limiter:    lim,
		backoff:    cfg.RateLimitBackoff,
		maxRetries: retries,
		maxChars:   maxChars,
		dimension:  cfg.Dimension,
		cache:      cache,
		sleep:      sleepCtx,
	}
}

// Dimension returns the configured vector length (0 when unchecked).
func (e *Embedder) Dimension() int { return e.dimension }

// Normalize replaces newlines with spaces, trims, and cuts the text to at
// most maxChars runes.
func Normalize(text string, maxChars int) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if maxChars > 0 {
		n := 0
		for i := range text {
			if n == maxChars {
				return text[:i]
			}
			n++
		}
	}
	return text
}

// fits reports whether a vector has the configured dimension.
func (e *Embedder) fits(vec []float32) bool {
	return len(vec) > 0 && (e.dimension <= 0 || len(vec) == e.dimension)
}

// Embed returns the vector for text. A quota error fails fast with
// ErrQuotaExceeded; a rate-limit error is retried after a fixed backoff at most
// maxRetries times.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	log := zerolog.Ctx(ctx)
	text = Normalize(text, e.maxChars)

	key := ""
	if e.cache != nil {
		key = CacheKey(e.model.Name(), text)
		if vec, ok := e.cache.Get(ctx, key); ok {
			if e.fits(vec) {
				observability.EmbeddingRequests.WithLabelValues(observability.OutcomeCached).Inc()
				return vec, nil
			}
			// stale entry from another model configuration; recompute and overwrite
			log.Debug().Int("cached_dim", len(vec)).Int("want_dim", e.dimension).Msg("discarding cached embedding")
		}
	}

	for attempt := 0; ; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vec, err := e.model.Embed(ctx, text)
		if err == nil {
			if len(vec) == 0 {
				observability.EmbeddingRequests.WithLabelValues(observability.OutcomeError).Inc()
				return nil, ErrEmptyEmbedding
			}
			if e.dimension > 0 && len(vec) != e.dimension {
				observability.EmbeddingRequests.WithLabelValues(observability.OutcomeError).Inc()
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), e.dimension)
			}
			observability.EmbeddingRequests.WithLabelValues(observability.OutcomeOK).Inc()
			if e.cache != nil {
				e.cache.Set(ctx, key, vec)
			}
			return vec, nil
		}

		switch classify(err) {
		case classQuota:
			observability.EmbeddingRequests.WithLabelValues(observability.OutcomeQuota).Inc()
			log.Error().Err(err).Msg("embedding quota exceeded")
			return nil, fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		case classRateLimit:
			observability.EmbeddingRequests.WithLabelValues(observability.OutcomeRateLimited).Inc()
			if attempt >= e.maxRetries {
				return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			log.Warn().Err(err).Dur("backoff", e.backoff).Int("attempt", attempt+1).Msg("embedding rate limited, backing off")
			if err := e.sleep(ctx, e.backoff); err != nil {
				return nil, err
			}
		default:
			observability.EmbeddingRequests.WithLabelValues(observability.OutcomeError).Inc()
			return nil, fmt.Errorf("embed: %w", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
