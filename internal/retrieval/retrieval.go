// Package retrieval builds the context block inserted into the generation
// prompt: embed the question, fetch the nearest chunks of the chat's document,
// keep the most relevant ones and cap the total length.
//
// Context is best-effort. Any failure yields an empty string and the caller
// falls back to a context-free prompt.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chatpdf-backend/internal/config"
	"github.com/tbourn/go-chatpdf-backend/internal/vectorindex"
)

// Defaults applied when a RetrievalConfig field is unset.
const (
	DefaultTopK            = 5
	DefaultPrimaryMinScore = 0.7
	DefaultRelaxedMinScore = 0.5
	DefaultMaxContextChars = 3000
)

// Embedder turns the user question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Querier returns nearest neighbours. It does not fail; an unavailable index
// yields no matches or a fallback match.
type Querier interface {
	Query(ctx context.Context, namespace string, vector []float32, topK int) []vectorindex.Match
}

// Assembler produces context blocks.
type Assembler struct {
	embedder Embedder
	index    Querier
	cfg      config.RetrievalConfig
}

// NewAssembler fills unset fields of cfg with the defaults.
func NewAssembler(e Embedder, q Querier, cfg config.RetrievalConfig) *Assembler {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.PrimaryMinScore == 0 && cfg.RelaxedMinScore == 0 {
		cfg.PrimaryMinScore, cfg.RelaxedMinScore = DefaultPrimaryMinScore, DefaultRelaxedMinScore
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	return &Assembler{embedder: e, index: q, cfg: cfg}
}

// GetContext returns the context block for query within namespace, or "" when
// nothing can be retrieved.
func (a *Assembler) GetContext(ctx context.Context, query, namespace string) string {
	tr := otel.Tracer("retrieval/Assembler")
	ctx, span := tr.Start(ctx, "GetContext",
		trace.WithAttributes(attribute.String("namespace", namespace)),
	)
	defer span.End()
	log := zerolog.Ctx(ctx)

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		log.Warn().Err(err).Str("namespace", namespace).Msg("context: query embedding failed")
		span.RecordError(err)
		return ""
	}

	matches := a.index.Query(ctx, namespace, vec, a.cfg.TopK)
	selected := SelectMatches(matches, a.cfg.PrimaryMinScore, a.cfg.RelaxedMinScore)
	out := Truncate(Join(selected), a.cfg.MaxContextChars)

	span.SetAttributes(
		attribute.Int("matches", len(matches)),
		attribute.Int("selected", len(selected)),
	)
	log.Debug().Int("matches", len(matches)).Int("selected", len(selected)).Int("chars", len([]rune(out))).Msg("context assembled")
	return out
}

// SelectMatches applies the relevance tiers: matches scoring above primary;
// if none, those above relaxed; if still none, every match. The result keeps
// ranking order (score descending).
func SelectMatches(matches []vectorindex.Match, primary, relaxed float64) []vectorindex.Match {
	if len(matches) == 0 {
		return nil
	}
	ranked := append([]vectorindex.Match(nil), matches...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	for _, floor := range []float64{primary, relaxed} {
		if out := above(ranked, floor); len(out) > 0 {
			return out
		}
	}
	return ranked
}

func above(ms []vectorindex.Match, floor float64) []vectorindex.Match {
	var out []vectorindex.Match
	for _, m := range ms {
		if m.Score > floor {
			out = append(out, m)
		}
	}
	return out
}

// Join concatenates match texts with newlines.
func Join(matches []vectorindex.Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m.Metadata.Text)
	}
	return strings.Join(parts, "\n")
}

// Truncate returns at most limit characters (runes) of s.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
