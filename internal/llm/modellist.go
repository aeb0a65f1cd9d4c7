package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/tbourn/go-chatpdf-backend/internal/config"
)

// ModelListStrategy picks the first preferred model the endpoint lists and
// asks it for a chat completion through the OpenAI-compatible client.
type ModelListStrategy struct {
	client    *openai.Client
	preferred []string
	ttl       time.Duration
	maxTokens int
	temp      float32
	topP      float32
	now       func() time.Time

	mu        sync.Mutex
	available map[string]struct{}
	fetchedAt time.Time
}

// NewModelListStrategy builds the primary link from cfg. A nil httpClient
// uses http.DefaultClient. With cfg.CompatTopK set, cfg.TopK travels as
// "top_k" on every completion request.
func NewModelListStrategy(cfg config.LLMConfig, httpClient *http.Client) *ModelListStrategy {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.CompatTopK {
		httpClient = compatHTTPClient(httpClient, cfg.TopK)
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	preferred := make([]string, 0, len(cfg.PreferredModels))
	for _, m := range cfg.PreferredModels {
		if n := ModelName(m); n != "" {
			preferred = append(preferred, n)
		}
	}
	return &ModelListStrategy{
		client:    openai.NewClientWithConfig(oc),
		preferred: preferred,
		ttl:       cfg.ModelListTTL,
		maxTokens: cfg.MaxOutputTokens,
		temp:      float32(cfg.Temperature),
		topP:      float32(cfg.TopP),
		now:       time.Now,
	}
}

// Name implements Strategy.
func (s *ModelListStrategy) Name() string { return "model_list" }

// Generate implements Strategy.
func (s *ModelListStrategy) Generate(ctx context.Context, p Prompt) (string, error) {
	model, err := s.pick(ctx)
	if err != nil {
		return "", err
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(p.Messages)+1)
	if p.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	for _, m := range p.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   s.maxTokens,
		Temperature: s.temp,
		TopP:        s.topP,
	})
	if err != nil {
		if IsModelNotFound(err) {
			s.invalidate()
			return "", fmt.Errorf("%w: %s: %v", ErrModelNotFound, model, err)
		}
		return "", fmt.Errorf("chat completion (%s): %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// pick returns the first preferred model present in the (cached) model list.
// When the list cannot be fetched it falls back to the first preferred model.
func (s *ModelListStrategy) pick(ctx context.Context) (string, error) {
	if len(s.preferred) == 0 {
		return "", fmt.Errorf("%w: no preferred models configured", ErrModelNotFound)
	}
	available, err := s.models(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("model list unavailable; using first preferred model")
		return s.preferred[0], nil
	}
	for _, m := range s.preferred {
		if _, ok := available[m]; ok {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: none of %v listed", ErrModelNotFound, s.preferred)
}

func (s *ModelListStrategy) models(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.available != nil && s.now().Sub(s.fetchedAt) < s.ttl {
		return s.available, nil
	}
	list, err := s.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(list.Models))
	for _, m := range list.Models {
		set[ModelName(m.ID)] = struct{}{}
	}
	s.available, s.fetchedAt = set, s.now()
	return set, nil
}

func (s *ModelListStrategy) invalidate() {
	s.mu.Lock()
	s.available = nil
	s.mu.Unlock()
}
