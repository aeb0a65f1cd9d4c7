package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/tbourn/go-chatpdf-backend/internal/config"
)

// GCSStore keeps objects in a single Google Cloud Storage bucket.
type GCSStore struct {
	client        *gcs.Client
	bucket        string
	publicBaseURL string
}

// NewGCSStore creates a storage client from cfg. Credentials come from
// CredentialsFile when set, otherwise from the ambient Google credentials.
func NewGCSStore(ctx context.Context, cfg config.StorageConfig, opts ...option.ClientOption) (*GCSStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("missing GCS bucket")
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(gcs.ScopeReadWrite))
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/")}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error { return s.client.Close() }

// Download copies the object into a temporary file.
func (s *GCSStore) Download(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("gcs read %q: %w", key, err)
	}
	defer r.Close()
	return copyToTemp(r)
}

// Upload writes r to key.
func (s *GCSStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return s.URL(key), nil
}

// URL returns the public URL for key.
func (s *GCSStore) URL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

// PresignUpload returns a V4 signed POST policy that accepts at most maxBytes
// and expires after expiry.
func (s *GCSStore) PresignUpload(_ context.Context, key string, maxBytes int64, expiry time.Duration) (*PresignedPost, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrInvalidKey
	}
	expires := time.Now().Add(expiry)
	policy, err := s.client.Bucket(s.bucket).GenerateSignedPostPolicyV4(key, &gcs.PostPolicyV4Options{
		Expires: expires,
		Conditions: []gcs.PostPolicyV4Condition{
			gcs.ConditionContentLengthRange(0, uint64(maxBytes)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sign post policy: %w", err)
	}
	return &PresignedPost{URL: policy.URL, Fields: policy.Fields, Key: key, Expires: expires}, nil
}
