// Package llm generates assistant replies through an ordered chain of
// strategies. Exactly one link supplies the text of a turn; the errors of the
// links that failed before it are kept on the Result.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chatpdf-backend/internal/observability"
)

var (
	// ErrModelNotFound marks failures caused by an unknown or unavailable
	// model. Only this class unlocks the direct REST link.
	ErrModelNotFound = errors.New("model not found")
	// ErrEmptyResponse is returned when the upstream answered without text.
	ErrEmptyResponse = errors.New("empty completion")
	// ErrChainExhausted is returned when every link failed.
	ErrChainExhausted = errors.New("all generation strategies failed")
)

// Message is one conversation entry in a prompt.
type Message struct {
	Role    string
	Content string
}

// Prompt is what a strategy turns into text: a system instruction followed by
// the conversation so far, newest last.
type Prompt struct {
	System   string
	Messages []Message
}

// Strategy is one link of the fallback chain.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Gated strategies run only when the previous link failed with an error they
// accept. Strategies without a gate always run.
type Gated interface {
	Accepts(prev error) bool
}

// Attempt records a failed link.
type Attempt struct {
	Strategy string
	Err      error
}

// Result is the outcome of a chain run.
type Result struct {
	Text     string
	Strategy string
	Attempts []Attempt
}

// Chain runs strategies in order until one succeeds.
type Chain struct {
	links []Strategy
}

// NewChain builds a chain from links in priority order.
func NewChain(links ...Strategy) *Chain {
	return &Chain{links: links}
}

// Generate returns the first successful link's text. When every runnable link
// fails it returns ErrChainExhausted together with the collected attempts.
func (c *Chain) Generate(ctx context.Context, p Prompt) (Result, error) {
	tr := otel.Tracer("llm/Chain")
	ctx, span := tr.Start(ctx, "Generate", trace.WithAttributes(attribute.Int("messages", len(p.Messages))))
	defer span.End()

	log := zerolog.Ctx(ctx)
	var res Result
	var prev error
	for _, s := range c.links {
		if g, ok := s.(Gated); ok && !g.Accepts(prev) {
			continue
		}
		text, err := s.Generate(ctx, p)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyResponse
		}
		if err != nil {
			observability.GenerationResults.WithLabelValues(s.Name(), observability.OutcomeError).Inc()
			log.Warn().Err(err).Str("strategy", s.Name()).Msg("generation strategy failed")
			res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name(), Err: err})
			prev = err
			continue
		}
		observability.GenerationResults.WithLabelValues(s.Name(), observability.OutcomeOK).Inc()
		res.Text, res.Strategy = text, s.Name()
		span.SetAttributes(attribute.String("strategy", s.Name()), attribute.Int("failed_links", len(res.Attempts)))
		return res, nil
	}
	span.RecordError(ErrChainExhausted)
	return res, ErrChainExhausted
}

// IsModelNotFound reports whether err belongs to the model-not-found class:
// ErrModelNotFound, an upstream 404, or a message naming a missing model.
func IsModelNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrModelNotFound) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "model") && strings.Contains(msg, "not found")
}

// ModelName strips the "models/" resource prefix some endpoints return.
func ModelName(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), "models/")
}
