package embedding

import (
	"context"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIModel calls an OpenAI-compatible embeddings endpoint. Pointed at
// Gemini's compatibility base URL it serves Google's embedding models.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel creates a client for model at baseURL. An empty baseURL keeps
// the library default; a nil httpClient uses http.DefaultClient.
func NewOpenAIModel(apiKey, baseURL, model string, httpClient *http.Client) *OpenAIModel {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(cfg), model: model}
}

// Name returns the model identifier.
func (m *OpenAIModel) Name() string { return m.model }

// Embed requests a single embedding.
func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(m.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Data[0].Embedding, nil
}
