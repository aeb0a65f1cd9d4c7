package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-chatpdf-backend/internal/config"
)

// PineconeStore talks to the Pinecone REST API. The control plane
// (BaseURL) resolves the index host; vectors go to that host.
type PineconeStore struct {
	cfg       config.PineconeConfig
	http      *http.Client
	indexName string

	// PollInterval spaces DescribeIndex calls while a new index warms up.
	PollInterval time.Duration

	mu   sync.RWMutex
	host string
}

// NewPineconeStore validates cfg and returns a store. The index host is
// resolved lazily (or by EnsureIndex).
func NewPineconeStore(cfg config.PineconeConfig) (*PineconeStore, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Pinecone API key")
	}
	if strings.TrimSpace(cfg.IndexName) == "" {
		return nil, fmt.Errorf("missing Pinecone index name")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "2025-10"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.pinecone.io"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &PineconeStore{
		cfg:          cfg,
		http:         &http.Client{Timeout: cfg.Timeout},
		indexName:    cfg.IndexName,
		PollInterval: 2 * time.Second,
	}, nil
}

// -------------------- Control plane --------------------

type indexDescription struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

type createIndexRequest struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Spec      struct {
		Serverless struct {
			Cloud  string `json:"cloud"`
			Region string `json:"region"`
		} `json:"serverless"`
	} `json:"spec"`
}

func (s *PineconeStore) describeIndex(ctx context.Context, name string) (*indexDescription, error) {
	u := strings.TrimRight(s.cfg.BaseURL, "/") + "/indexes/" + name
	out, status, err := doJSON[indexDescription](s, ctx, http.MethodGet, u, nil)
	if status == http.StatusNotFound {
		return nil, ErrIndexNotFound
	}
	return out, err
}

// EnsureIndex creates the index when it is missing and waits until it is
// ready. An existing index is left untouched.
func (s *PineconeStore) EnsureIndex(ctx context.Context, spec IndexSpec) error {
	log := zerolog.Ctx(ctx)
	if spec.Name == "" {
		spec.Name = s.indexName
	}

	desc, err := s.describeIndex(ctx, spec.Name)
	switch {
	case err == nil:
		log.Debug().Str("index", spec.Name).Msg("pinecone index exists")
	case errors.Is(err, ErrIndexNotFound):
		log.Info().Str("index", spec.Name).Int("dimension", spec.Dimension).Str("metric", spec.Metric).Msg("creating pinecone index")
		var req createIndexRequest
		req.Name, req.Dimension, req.Metric = spec.Name, spec.Dimension, spec.Metric
		req.Spec.Serverless.Cloud, req.Spec.Serverless.Region = spec.Cloud, spec.Region
		u := strings.TrimRight(s.cfg.BaseURL, "/") + "/indexes"
		created, status, err := doJSON[indexDescription](s, ctx, http.MethodPost, u, req)
		if err != nil && status != http.StatusConflict {
			return fmt.Errorf("pinecone create_index: %w", err)
		}
		desc = created
		if desc == nil || !desc.Status.Ready {
			if desc, err = s.waitReady(ctx, spec.Name); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("pinecone describe_index: %w", err)
	}

	if strings.TrimSpace(desc.Host) == "" {
		return fmt.Errorf("pinecone describe_index returned empty host")
	}
	s.setHost(desc.Host)
	return nil
}

func (s *PineconeStore) waitReady(ctx context.Context, name string) (*indexDescription, error) {
	for {
		desc, err := s.describeIndex(ctx, name)
		if err == nil && desc.Status.Ready && desc.Host != "" {
			return desc, nil
		}
		if err != nil && !errors.Is(err, ErrIndexNotFound) {
			return nil, fmt.Errorf("pinecone wait ready: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.PollInterval):
		}
	}
}

// -------------------- Data plane --------------------

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int64 `json:"upsertedCount"`
}

type queryRequest struct {
	Namespace       string    `json:"namespace,omitempty"`
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type queryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type queryResponse struct {
	Matches []queryMatch `json:"matches"`
}

// Upsert writes records in a single request.
func (s *PineconeStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	host, err := s.resolveHost(ctx)
	if err != nil {
		return err
	}
	req := upsertRequest{Namespace: namespace, Vectors: make([]pineconeVector, 0, len(records))}
	for _, r := range records {
		req.Vectors = append(req.Vectors, pineconeVector{
			ID:     r.ID,
			Values: r.Values,
			Metadata: map[string]any{
				"text":       r.Metadata.Text,
				"pageNumber": r.Metadata.PageNumber,
			},
		})
	}
	_, _, err = doJSON[upsertResponse](s, ctx, http.MethodPost, dataURL(host, "/vectors/upsert"), req)
	return err
}

// Query returns up to topK matches with metadata.
func (s *PineconeStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	if topK <= 0 {
		topK = 5
	}
	host, err := s.resolveHost(ctx)
	if err != nil {
		return nil, err
	}
	resp, _, err := doJSON[queryResponse](s, ctx, http.MethodPost, dataURL(host, "/query"), queryRequest{
		Namespace:       namespace,
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, Match{ID: m.ID, Score: m.Score, Metadata: metadataFrom(m.Metadata)})
	}
	return out, nil
}

// -------------------- helpers --------------------

func (s *PineconeStore) setHost(h string) {
	s.mu.Lock()
	s.host = strings.TrimSpace(h)
	s.mu.Unlock()
}

func (s *PineconeStore) resolveHost(ctx context.Context) (string, error) {
	s.mu.RLock()
	h := s.host
	s.mu.RUnlock()
	if h != "" {
		return h, nil
	}
	desc, err := s.describeIndex(ctx, s.indexName)
	if err != nil {
		return "", fmt.Errorf("pinecone describe_index: %w", err)
	}
	if strings.TrimSpace(desc.Host) == "" {
		return "", fmt.Errorf("pinecone describe_index returned empty host")
	}
	s.setHost(desc.Host)
	return desc.Host, nil
}

// dataURL builds a data-plane URL. Pinecone reports bare hostnames; hosts that
// already carry a scheme are used as-is.
func dataURL(host, path string) string {
	if strings.Contains(host, "://") {
		return strings.TrimRight(host, "/") + path
	}
	return "https://" + host + path
}

func metadataFrom(m map[string]any) Metadata {
	var md Metadata
	if t, ok := m["text"].(string); ok {
		md.Text = t
	}
	switch p := m["pageNumber"].(type) {
	case float64:
		md.PageNumber = int(p)
	case int:
		md.PageNumber = p
	}
	return md
}

// doJSON sends body as JSON and decodes a 2xx response into T. The HTTP
// status is returned alongside so callers can branch on 404/409.
func doJSON[T any](s *PineconeStore, ctx context.Context, method, url string, body any) (*T, int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Api-Key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pinecone-Api-Version", s.cfg.APIVersion)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("pinecone http %d: %s", resp.StatusCode, string(raw))
	}

	var out T
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("pinecone decode error: %w; raw=%s", err, string(raw))
		}
	}
	return &out, resp.StatusCode, nil
}
