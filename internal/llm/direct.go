package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tbourn/go-chatpdf-backend/internal/config"
	"github.com/tbourn/go-chatpdf-backend/internal/domain"
)

// DirectStrategy calls the generateContent REST endpoint without the client
// library. It runs only after a model-not-found failure.
type DirectStrategy struct {
	baseURL string
	apiKey  string
	model   string
	gen     generationConfig
	http    *http.Client
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// HTTPError is a non-2xx answer from the REST endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("generate content: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("generate content: status=%d body=%s", e.StatusCode, e.Body)
}

// NewDirectStrategy uses the first preferred model. A nil httpClient uses
// one bounded by cfg.Timeout.
func NewDirectStrategy(cfg config.LLMConfig, httpClient *http.Client) *DirectStrategy {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := "gemini-1.5-flash"
	if len(cfg.PreferredModels) > 0 {
		model = ModelName(cfg.PreferredModels[0])
	}
	return &DirectStrategy{
		baseURL: strings.TrimRight(cfg.DirectBaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		gen: generationConfig{
			Temperature:     cfg.Temperature,
			TopP:            cfg.TopP,
			TopK:            cfg.TopK,
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
		http: httpClient,
	}
}

// Name implements Strategy.
func (s *DirectStrategy) Name() string { return "direct" }

// Accepts implements Gated.
func (s *DirectStrategy) Accepts(prev error) bool { return IsModelNotFound(prev) }

// Generate implements Strategy.
func (s *DirectStrategy) Generate(ctx context.Context, p Prompt) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: contents(p), GenerationConfig: s.gen})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", s.baseURL, s.model, url.QueryEscape(s.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate content: %w", err)
	}
	for _, c := range out.Candidates {
		for _, pt := range c.Content.Parts {
			if pt.Text != "" {
				return pt.Text, nil
			}
		}
	}
	return "", ErrEmptyResponse
}

// contents maps the prompt onto the REST schema. The endpoint has no system
// role, so the instruction leads as the first user turn.
func contents(p Prompt) []content {
	out := make([]content, 0, len(p.Messages)+1)
	if p.System != "" {
		out = append(out, content{Role: "user", Parts: []part{{Text: p.System}}})
	}
	for _, m := range p.Messages {
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		out = append(out, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return out
}
