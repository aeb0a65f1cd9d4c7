// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage, model endpoints, the vector index,
// billing, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "chatpdf-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects the relational store. A non-empty URL selects
// Postgres; otherwise the SQLite file at Path is used.
type DatabaseConfig struct {
	Path string // DB_PATH
	URL  string // DATABASE_URL
}

// AuthConfig configures bearer-token verification. An empty JWTSecret puts
// the API in development mode, where X-User-ID is trusted.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// LLMConfig describes the hosted generation and embedding endpoints.
type LLMConfig struct {
	APIKey          string   // GEMINI_API_KEY
	BaseURL         string   // OpenAI-compatible endpoint used by the client library
	DirectBaseURL   string   // low-level REST endpoint used by the fallback link
	PreferredModels []string // ordered, fastest/cheapest first
	EmbeddingModel  string
	MaxOutputTokens int
	Temperature     float64
	TopP            float64
	TopK            int
	CompatTopK      bool // LLM_COMPAT_TOP_K: also send TopK to the OpenAI-compatible endpoint
	ModelListTTL    time.Duration
	Timeout         time.Duration
	Apology         string
	MaxHistory      int
}

// EmbedderConfig controls request pacing and input limits for embeddings.
type EmbedderConfig struct {
	Dimension         int
	PacingInterval    time.Duration
	MaxChars          int
	RateLimitBackoff  time.Duration
	MaxRateLimitRetry int
	CacheSize         int // in-process LRU entries; 0 disables
	CacheTTL          time.Duration
}

// PineconeConfig configures the vector index service.
type PineconeConfig struct {
	APIKey       string
	BaseURL      string
	APIVersion   string
	IndexName    string
	Cloud        string
	Region       string
	Metric       string
	BatchSize    int
	FallbackText string
	Timeout      time.Duration
}

// RetrievalConfig holds the context assembly constants.
type RetrievalConfig struct {
	TopK            int
	PrimaryMinScore float64
	RelaxedMinScore float64
	MaxContextChars int
}

// ChunkerConfig sets chunk sizing.
type ChunkerConfig struct {
	Size          int
	Overlap       int
	MetadataBytes int
}

// IngestConfig bounds a single ingestion run.
type IngestConfig struct {
	EmbedConcurrency int
	Timeout          time.Duration
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Driver          string // gcs|local
	Bucket          string
	CredentialsFile string
	LocalDir        string
	PublicBaseURL   string
	MaxUploadBytes  int64
	PresignExpiry   time.Duration
}

// RedisConfig enables a shared embedding cache when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RazorpayConfig configures checkout and webhook verification.
type RazorpayConfig struct {
	KeyID             string
	KeySecret         string
	WebhookSecret     string
	BaseURL           string
	PlanName          string
	PlanDescription   string
	PlanAmount        int64 // smallest currency unit
	Currency          string
	SubscriptionGrace time.Duration
	PeriodLength      time.Duration
	PublicBaseURL     string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 120s, generation can be slow
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Domain
	Database  DatabaseConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Embedder  EmbedderConfig
	Pinecone  PineconeConfig
	Retrieval RetrievalConfig
	Chunker   ChunkerConfig
	Ingest    IngestConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Razorpay  RazorpayConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Database: DatabaseConfig{
			Path: getenv("DB_PATH", "app.db"),
			URL:  getenv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getenv("AUTH_JWT_SECRET", ""),
			Issuer:    getenv("AUTH_JWT_ISSUER", ""),
		},
		LLM: LLMConfig{
			APIKey:          getenv("GEMINI_API_KEY", ""),
			BaseURL:         getenv("GEMINI_OPENAI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
			DirectBaseURL:   getenv("GEMINI_DIRECT_BASE_URL", "https://generativelanguage.googleapis.com/v1"),
			PreferredModels: splitCSV(getenv("GEMINI_MODELS", "gemini-1.5-flash,gemini-1.5-flash-002,gemini-1.5-pro,gemini-1.5-pro-002")),
			EmbeddingModel:  getenv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
			MaxOutputTokens: getint("LLM_MAX_OUTPUT_TOKENS", 2048),
			Temperature:     getfloat("LLM_TEMPERATURE", 0.7),
			TopP:            getfloat("LLM_TOP_P", 0.8),
			TopK:            getint("LLM_TOP_K", 40),
			CompatTopK:      getbool("LLM_COMPAT_TOP_K", true),
			ModelListTTL:    getdur("LLM_MODEL_LIST_TTL", 5*time.Minute),
			Timeout:         getdur("LLM_TIMEOUT", 60*time.Second),
			Apology:         getenv("LLM_APOLOGY", "I'm sorry, but I'm having trouble answering right now. Please try again in a moment."),
			MaxHistory:      getint("LLM_MAX_HISTORY", 20),
		},
		Embedder: EmbedderConfig{
			Dimension:         getint("EMBEDDING_DIMENSION", 768),
			PacingInterval:    getdur("EMBED_PACING_INTERVAL", 200*time.Millisecond),
			MaxChars:          getint("EMBED_MAX_CHARS", 8000),
			RateLimitBackoff:  getdur("EMBED_RATE_LIMIT_BACKOFF", time.Second),
			MaxRateLimitRetry: getint("EMBED_MAX_RATE_LIMIT_RETRIES", 1),
			CacheSize:         getint("EMBED_CACHE_SIZE", 1024),
			CacheTTL:          getdur("EMBED_CACHE_TTL", 24*time.Hour),
		},
		Pinecone: PineconeConfig{
			APIKey:       getenv("PINECONE_API_KEY", ""),
			BaseURL:      getenv("PINECONE_BASE_URL", "https://api.pinecone.io"),
			APIVersion:   getenv("PINECONE_API_VERSION", "2025-10"),
			IndexName:    getenv("PINECONE_INDEX_NAME", "chatpdf"),
			Cloud:        getenv("PINECONE_CLOUD", "aws"),
			Region:       getenv("PINECONE_REGION", "us-east-1"),
			Metric:       getenv("PINECONE_METRIC", "cosine"),
			BatchSize:    getint("PINECONE_BATCH_SIZE", 100),
			FallbackText: getenv("VECTOR_FALLBACK_TEXT", ""),
			Timeout:      getdur("PINECONE_TIMEOUT", 30*time.Second),
		},
		Retrieval: RetrievalConfig{
			TopK:            getint("RETRIEVAL_TOP_K", 5),
			PrimaryMinScore: getfloat("RETRIEVAL_PRIMARY_MIN_SCORE", 0.7),
			RelaxedMinScore: getfloat("RETRIEVAL_RELAXED_MIN_SCORE", 0.5),
			MaxContextChars: getint("RETRIEVAL_MAX_CONTEXT_CHARS", 3000),
		},
		Chunker: ChunkerConfig{
			Size:          getint("CHUNK_SIZE", 2000),
			Overlap:       getint("CHUNK_OVERLAP", 200),
			MetadataBytes: getint("CHUNK_METADATA_BYTES", 36000),
		},
		Ingest: IngestConfig{
			EmbedConcurrency: getint("INGEST_EMBED_CONCURRENCY", 4),
			Timeout:          getdur("INGEST_TIMEOUT", 5*time.Minute),
		},
		Storage: StorageConfig{
			Driver:          strings.ToLower(getenv("STORAGE_DRIVER", "local")),
			Bucket:          getenv("GCS_BUCKET", ""),
			CredentialsFile: getenv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			LocalDir:        getenv("STORAGE_LOCAL_DIR", "data/uploads"),
			PublicBaseURL:   getenv("STORAGE_PUBLIC_BASE_URL", ""),
			MaxUploadBytes:  int64(getint("MAX_UPLOAD_BYTES", 10<<20)),
			PresignExpiry:   getdur("PRESIGN_EXPIRY", 600*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},
		Razorpay: RazorpayConfig{
			KeyID:             getenv("RAZORPAY_KEY_ID", ""),
			KeySecret:         getenv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret:     getenv("RAZORPAY_WEBHOOK_SECRET", ""),
			BaseURL:           getenv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
			PlanName:          getenv("RAZORPAY_PLAN_NAME", "ChatPDF Pro"),
			PlanDescription:   getenv("RAZORPAY_PLAN_DESCRIPTION", "Unlimited PDF sessions!"),
			PlanAmount:        int64(getint("RAZORPAY_PLAN_AMOUNT", 200000)),
			Currency:          getenv("RAZORPAY_CURRENCY", "INR"),
			SubscriptionGrace: getdur("SUBSCRIPTION_GRACE", 24*time.Hour),
			PeriodLength:      getdur("SUBSCRIPTION_PERIOD", 30*24*time.Hour),
			PublicBaseURL:     strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "chatpdf-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Razorpay.WebhookSecret == "" {
		cfg.Razorpay.WebhookSecret = cfg.Razorpay.KeySecret
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.Database.Path) == "" && strings.TrimSpace(cfg.Database.URL) == "" {
		return cfg, errors.New("DB_PATH or DATABASE_URL must be set")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	if cfg.Embedder.Dimension <= 0 {
		return cfg, errors.New("EMBEDDING_DIMENSION must be > 0")
	}
	if cfg.Embedder.PacingInterval < 0 || cfg.Embedder.RateLimitBackoff < 0 {
		return cfg, errors.New("embedder durations must be >= 0")
	}
	if cfg.Embedder.MaxChars <= 0 {
		return cfg, errors.New("EMBED_MAX_CHARS must be > 0")
	}
	if cfg.Embedder.MaxRateLimitRetry < 0 {
		return cfg, errors.New("EMBED_MAX_RATE_LIMIT_RETRIES must be >= 0")
	}
	if cfg.Chunker.Size <= 0 || cfg.Chunker.Overlap < 0 || cfg.Chunker.Overlap >= cfg.Chunker.Size {
		return cfg, errors.New("CHUNK_OVERLAP must be >= 0 and smaller than CHUNK_SIZE")
	}
	if cfg.Chunker.MetadataBytes <= 0 {
		return cfg, errors.New("CHUNK_METADATA_BYTES must be > 0")
	}
	if cfg.Pinecone.BatchSize <= 0 {
		return cfg, errors.New("PINECONE_BATCH_SIZE must be > 0")
	}
	if cfg.Retrieval.TopK <= 0 {
		return cfg, errors.New("RETRIEVAL_TOP_K must be > 0")
	}
	if cfg.Retrieval.MaxContextChars <= 0 {
		return cfg, errors.New("RETRIEVAL_MAX_CONTEXT_CHARS must be > 0")
	}
	if cfg.Retrieval.RelaxedMinScore > cfg.Retrieval.PrimaryMinScore {
		return cfg, errors.New("RETRIEVAL_RELAXED_MIN_SCORE must not exceed RETRIEVAL_PRIMARY_MIN_SCORE")
	}
	if cfg.Ingest.EmbedConcurrency < 1 {
		return cfg, errors.New("INGEST_EMBED_CONCURRENCY must be >= 1")
	}
	switch cfg.Storage.Driver {
	case "local":
		if strings.TrimSpace(cfg.Storage.LocalDir) == "" {
			return cfg, errors.New("STORAGE_LOCAL_DIR must not be empty")
		}
	case "gcs":
		if strings.TrimSpace(cfg.Storage.Bucket) == "" {
			return cfg, errors.New("GCS_BUCKET must be set when STORAGE_DRIVER=gcs")
		}
	default:
		return cfg, errors.New("STORAGE_DRIVER must be one of: local, gcs")
	}
	if cfg.Storage.MaxUploadBytes <= 0 {
		return cfg, errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.Razorpay.SubscriptionGrace < 0 {
		return cfg, errors.New("SUBSCRIPTION_GRACE must be >= 0")
	}

	return cfg, nil
}

// RequiredEnv lists the credentials the server cannot run without.
// check-env reports on these.
var RequiredEnv = []string{
	"GEMINI_API_KEY",
	"PINECONE_API_KEY",
	"RAZORPAY_KEY_ID",
	"RAZORPAY_KEY_SECRET",
}

// OptionalEnv lists settings that enable additional integrations.
var OptionalEnv = []string{
	"DATABASE_URL",
	"GCS_BUCKET",
	"GOOGLE_APPLICATION_CREDENTIALS",
	"REDIS_ADDR",
	"AUTH_JWT_SECRET",
	"RAZORPAY_WEBHOOK_SECRET",
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
