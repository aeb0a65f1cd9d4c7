// Package app assembles the long-lived components of the backend from a
// config.Config: database, object storage, embedder, vector index, ingestion
// pipeline, context assembler, generation chain, payment gateway client, and
// the HTTP server that exposes them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatpdf-backend/internal/billing"
	"github.com/tbourn/go-chatpdf-backend/internal/chunker"
	"github.com/tbourn/go-chatpdf-backend/internal/config"
	"github.com/tbourn/go-chatpdf-backend/internal/embedding"
	httpapi "github.com/tbourn/go-chatpdf-backend/internal/http"
	"github.com/tbourn/go-chatpdf-backend/internal/ingest"
	"github.com/tbourn/go-chatpdf-backend/internal/llm"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"
	"github.com/tbourn/go-chatpdf-backend/internal/retrieval"
	"github.com/tbourn/go-chatpdf-backend/internal/storage"
	"github.com/tbourn/go-chatpdf-backend/internal/vectorindex"
)

// shutdownGrace bounds how long in-flight requests may finish after a stop
// signal.
const shutdownGrace = 15 * time.Second

// App holds the wired components. Build it with New and release it with Close.
type App struct {
	Cfg       config.Config
	DB        *gorm.DB
	Files     storage.Store
	Presigner storage.Presigner
	Index     *vectorindex.Adapter
	Embedder  *embedding.Embedder
	Pipeline  *ingest.Pipeline
	Assembler *retrieval.Assembler
	Generator *llm.Chain
	Gateway   *billing.Client

	closers []func() error
}

// Options override collaborators that otherwise come from cfg. Tests use
// them to run without network access.
type Options struct {
	DB          *gorm.DB
	Files       storage.Store
	VectorStore vectorindex.Store
	Model       embedding.Model
	Strategies  []llm.Strategy
	HTTPClient  *http.Client
}

// New builds every component. Remote collaborators are constructed but not
// contacted, except for the vector index which is ensured when ensureIndex
// is set.
func New(ctx context.Context, cfg config.Config, opts Options, ensureIndex bool) (*App, error) {
	a := &App{Cfg: cfg}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.LLM.Timeout}
	}

	// Relational store
	a.DB = opts.DB
	if a.DB == nil {
		db, err := repo.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.DB = db
		a.onClose(func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
	}
	if err := repo.AutoMigrate(a.DB); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Object storage
	if err := a.openStorage(ctx, opts.Files); err != nil {
		a.Close()
		return nil, err
	}

	// Embedder with in-process and optional shared cache
	model := opts.Model
	if model == nil {
		model = embedding.NewOpenAIModel(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.EmbeddingModel, httpClient)
	}
	a.Embedder = embedding.New(model, cfg.Embedder, a.embeddingCache())

	// Vector index
	vstore := opts.VectorStore
	if vstore == nil {
		if cfg.Pinecone.APIKey == "" {
			log.Warn().Msg("PINECONE_API_KEY not set; using the in-memory vector index")
			vstore = vectorindex.NewMemoryStore()
		} else {
			pc, err := vectorindex.NewPineconeStore(cfg.Pinecone)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("vector index: %w", err)
			}
			vstore = pc
		}
	}
	a.Index = vectorindex.NewAdapter(vstore, cfg.Pinecone.BatchSize, cfg.Pinecone.FallbackText)
	if ensureIndex {
		spec := vectorindex.IndexSpec{
			Name:      cfg.Pinecone.IndexName,
			Dimension: cfg.Embedder.Dimension,
			Metric:    cfg.Pinecone.Metric,
			Cloud:     cfg.Pinecone.Cloud,
			Region:    cfg.Pinecone.Region,
		}
		if err := a.Index.EnsureIndex(ctx, spec); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure index %q: %w", spec.Name, err)
		}
	}

	// Ingestion and retrieval
	a.Pipeline = &ingest.Pipeline{
		Storage:     a.Files,
		Parser:      ingest.PDFParser{},
		Splitter:    chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap, cfg.Chunker.MetadataBytes),
		Embedder:    a.Embedder,
		Index:       a.Index,
		Concurrency: cfg.Ingest.EmbedConcurrency,
	}
	a.Assembler = retrieval.NewAssembler(a.Embedder, a.Index, cfg.Retrieval)

	// Generation chain: model list → direct REST (model-not-found only) → apology
	links := opts.Strategies
	if len(links) == 0 {
		links = []llm.Strategy{
			llm.NewModelListStrategy(cfg.LLM, httpClient),
			llm.NewDirectStrategy(cfg.LLM, httpClient),
			llm.StaticStrategy{Text: cfg.LLM.Apology},
		}
	}
	a.Generator = llm.NewChain(links...)

	a.Gateway = billing.NewClient(cfg.Razorpay, &http.Client{Timeout: 30 * time.Second})
	return a, nil
}

func (a *App) openStorage(ctx context.Context, files storage.Store) error {
	if files != nil {
		a.Files = files
		if p, isPresigner := files.(storage.Presigner); isPresigner {
			a.Presigner = p
		}
		return nil
	}
	switch a.Cfg.Storage.Driver {
	case "gcs":
		gs, err := storage.NewGCSStore(ctx, a.Cfg.Storage)
		if err != nil {
			return fmt.Errorf("object storage: %w", err)
		}
		a.Files, a.Presigner = gs, gs
		a.onClose(gs.Close)
	default:
		ls, err := storage.NewLocalStore(a.Cfg.Storage.LocalDir, a.Cfg.Storage.PublicBaseURL)
		if err != nil {
			return fmt.Errorf("object storage: %w", err)
		}
		a.Files = ls
	}
	return nil
}

func (a *App) embeddingCache() embedding.Cache {
	var tiers embedding.Tiered
	if a.Cfg.Embedder.CacheSize > 0 {
		tiers = append(tiers, embedding.NewLRUCache(a.Cfg.Embedder.CacheSize))
	}
	if a.Cfg.Redis.Addr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     a.Cfg.Redis.Addr,
			Password: a.Cfg.Redis.Password,
			DB:       a.Cfg.Redis.DB,
		})
		a.onClose(rdb.Close)
		tiers = append(tiers, embedding.NewRedisCache(rdb, a.Cfg.Embedder.CacheTTL))
	}
	if len(tiers) == 0 {
		return nil
	}
	return tiers
}

func (a *App) onClose(fn func() error) { a.closers = append(a.closers, fn) }

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Handler returns the gin engine with every route registered.
func (a *App) Handler() *gin.Engine {
	gin.SetMode(a.Cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Backends{
		DB:        a.DB,
		Files:     a.Files,
		Presigner: a.Presigner,
		Ingester:  a.ingester(),
		Context:   a.Assembler,
		Generator: a.Generator,
		Gateway:   a.Gateway,
		Index:     a.Index,
	}, a.Cfg)
	return r
}

// Ingest runs the pipeline for key under the configured timeout.
func (a *App) Ingest(ctx context.Context, key string) (*vectorindex.Record, error) {
	return a.ingester().Ingest(ctx, key)
}

func (a *App) ingester() timedIngester {
	return timedIngester{p: a.Pipeline, timeout: a.Cfg.Ingest.Timeout}
}

type timedIngester struct {
	p       *ingest.Pipeline
	timeout time.Duration
}

func (t timedIngester) Ingest(ctx context.Context, key string) (*vectorindex.Record, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.p.Ingest(ctx, key)
}

// Serve listens on cfg.Port until ctx is done, then drains in-flight
// requests for up to shutdownGrace.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", a.Cfg.Port),
		Handler:           a.Handler(),
		ReadTimeout:       a.Cfg.ReadTimeout,
		ReadHeaderTimeout: a.Cfg.ReadHeaderTimeout,
		WriteTimeout:      a.Cfg.WriteTimeout,
		IdleTimeout:       a.Cfg.IdleTimeout,
		MaxHeaderBytes:    a.Cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return log.Logger.WithContext(context.Background()) },
	}
	return serve(ctx, srv, zerolog.Ctx(ctx))
}

func serve(ctx context.Context, srv *http.Server, l *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		l.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, failed := <-errCh:
		if failed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	l.Info().Msg("shutting down http server")
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
