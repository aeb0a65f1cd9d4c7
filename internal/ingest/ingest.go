// Package ingest turns a stored document into vectors in the document's
// namespace: download, parse pages, chunk, embed concurrently, upsert.
//
// Ingestion is all-or-nothing from the caller's point of view. Any failure is
// returned and the caller must not create a chat for the document.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-chatpdf-backend/internal/chunker"
	"github.com/tbourn/go-chatpdf-backend/internal/observability"
	"github.com/tbourn/go-chatpdf-backend/internal/vectorindex"
)

// Downloader fetches a stored object into a local temporary file.
type Downloader interface {
	Download(ctx context.Context, key string) (string, error)
}

// Embedder turns chunk text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Upserter writes records into a namespace.
type Upserter interface {
	Upsert(ctx context.Context, namespace string, records []vectorindex.Record) error
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	Storage  Downloader
	Parser   Parser
	Splitter *chunker.Splitter
	Embedder Embedder
	Index    Upserter
	// Concurrency bounds in-flight embedding calls (min 1).
	Concurrency int
}

// RecordID is the content hash used as vector id. Identical text always maps
// to the same id, so re-ingesting a document overwrites instead of
// duplicating.
func RecordID(text string) string {
	sum := sha256.Sum256([]byte(chunker.Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Ingest indexes the document stored under key and returns its first record.
func (p *Pipeline) Ingest(ctx context.Context, key string) (first *vectorindex.Record, err error) {
	tr := otel.Tracer("ingest/Pipeline")
	ctx, span := tr.Start(ctx, "Ingest", trace.WithAttributes(attribute.String("file.key", key)))
	defer span.End()

	start := time.Now()
	log := zerolog.Ctx(ctx).With().Str("file_key", key).Logger()
	defer func() {
		outcome := observability.OutcomeOK
		if err != nil {
			outcome = observability.OutcomeError
			span.RecordError(err)
			log.Error().Err(err).Dur("took", time.Since(start)).Msg("ingestion failed")
		}
		observability.IngestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	path, err := p.Storage.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer os.Remove(path)

	parser := p.Parser
	if parser == nil {
		parser = PDFParser{}
	}
	pages, err := parser.Pages(path)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	splitter := p.Splitter
	if splitter == nil {
		splitter = chunker.New(0, -1, 0)
	}
	chunks := splitter.SplitPages(key, pages)
	if len(chunks) == 0 {
		return nil, ErrNoText
	}
	log.Info().Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("document split")

	records, err := p.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	ns := vectorindex.Namespace(key)
	if err := p.Index.Upsert(ctx, ns, records); err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}

	span.SetAttributes(attribute.Int("records", len(records)), attribute.String("namespace", ns))
	log.Info().Str("namespace", ns).Int("records", len(records)).Dur("took", time.Since(start)).Msg("document indexed")
	return &records[0], nil
}

// embedAll embeds every chunk with bounded concurrency. The first error
// cancels the rest. Records keep chunk order; duplicate texts collapse to one
// record.
func (p *Pipeline) embedAll(ctx context.Context, chunks []chunker.Chunk) ([]vectorindex.Record, error) {
	limit := p.Concurrency
	if limit < 1 {
		limit = 1
	}
	out := make([]vectorindex.Record, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, c := range chunks {
		g.Go(func() error {
			vec, err := p.Embedder.Embed(gctx, c.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %d (page %d): %w", i, c.PageNumber, err)
			}
			out[i] = vectorindex.Record{
				ID:       RecordID(c.Text),
				Values:   vec,
				Metadata: vectorindex.Metadata{Text: c.MetadataText, PageNumber: c.PageNumber},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(out))
	uniq := out[:0]
	for _, r := range out {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		uniq = append(uniq, r)
	}
	return uniq, nil
}
