// Package storage keeps uploaded documents in an object store. GCS is the
// production backend; a local-directory backend serves development and tests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no object exists under the key.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey rejects keys that are empty or escape the store root.
	ErrInvalidKey = errors.New("invalid object key")
	// ErrPresignUnsupported is returned by backends without signed uploads.
	ErrPresignUnsupported = errors.New("presigned uploads not supported by this storage driver")
)

// Store is the object storage contract used by ingestion and uploads.
type Store interface {
	// Download copies the object to a new temporary file and returns its path.
	// The caller removes the file.
	Download(ctx context.Context, key string) (string, error)
	// Upload stores r under key and returns the retrieval URL.
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// URL returns the retrieval URL for key.
	URL(key string) string
}

// PresignedPost is a browser-direct upload form.
type PresignedPost struct {
	URL     string            `json:"url"`
	Fields  map[string]string `json:"fields"`
	Key     string            `json:"file_key"`
	Expires time.Time         `json:"expires_at"`
}

// Presigner issues signed POST policies limited in size and lifetime.
type Presigner interface {
	PresignUpload(ctx context.Context, key string, maxBytes int64, expiry time.Duration) (*PresignedPost, error)
}

var whitespace = regexp.MustCompile(`\s`)

// FileKey builds the storage key for an uploaded file:
// uploads/<unix-ms>-<name with whitespace replaced by dashes>.
func FileKey(name string, now time.Time) string {
	return fmt.Sprintf("uploads/%d-%s", now.UnixMilli(), SanitizeName(name))
}

// SanitizeName replaces whitespace with dashes and strips any directory part.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return whitespace.ReplaceAllString(name, "-")
}

// copyToTemp streams r into a new temporary file and returns its path.
func copyToTemp(r io.Reader) (string, error) {
	f, err := os.CreateTemp("", "chatpdf-*.pdf")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
