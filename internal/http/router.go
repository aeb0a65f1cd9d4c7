// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, redacted logging, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-chatpdf-backend/docs" // registers the OpenAPI document
	"github.com/tbourn/go-chatpdf-backend/internal/config"
	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/http/handlers"
	"github.com/tbourn/go-chatpdf-backend/internal/http/middleware"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"
	"github.com/tbourn/go-chatpdf-backend/internal/services"
	"github.com/tbourn/go-chatpdf-backend/internal/storage"
)

// maxPromptRunes bounds a single user message.
const maxPromptRunes = 4000

// chatRepoShim adapts the repository free functions to services.ChatRepo.
type chatRepoShim struct{}

func (chatRepoShim) CreateChat(ctx context.Context, db *gorm.DB, c *domain.Chat) (*domain.Chat, error) {
	return repo.CreateChat(ctx, db, c)
}

func (chatRepoShim) GetChat(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Chat, error) {
	return repo.GetChat(ctx, db, id, userID)
}

func (chatRepoShim) GetChatByNamespace(ctx context.Context, db *gorm.DB, namespace string) (*domain.Chat, error) {
	return repo.GetChatByNamespace(ctx, db, namespace)
}

func (chatRepoShim) CountChats(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountChats(ctx, db, userID)
}

func (chatRepoShim) ListChatsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Chat, error) {
	return repo.ListChatsPage(ctx, db, userID, offset, limit)
}

// Backends are the long-lived collaborators the services are built from.
// Presigner and Index may be nil.
type Backends struct {
	DB        *gorm.DB
	Files     storage.Store
	Presigner storage.Presigner
	Ingester  services.Ingester
	Context   services.ContextFetcher
	Generator services.Generator
	Gateway   services.PaymentGateway
	Index     handlers.IndexHealth
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: request-scoped logger + scrubbed access log
//  4. Recovery: capture panics after logger
//  5. Body size limit
//  6. Metrics
//  7. gzip (never on the event stream)
//  8. CORS and security headers
//
// On the authenticated group: Auth → Idempotency validator → rate limiter, so
// limits are keyed by user and replays bypass them.
func RegisterRoutes(r *gin.Engine, b Backends, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))
	r.Use(middleware.Recovery())
	r.Use(middleware.BodyLimit(cfg.Storage.MaxUploadBytes + 1<<20))
	r.Use(middleware.Metrics())
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{"^" + regexp.QuoteMeta(joinPath(apiBase, "/chat")) + "$"}),
	))
	r.Use(corsMiddleware(cfg.CORS)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Dependency injection: services ← repo/db/pipeline
	h := handlers.New(handlers.Deps{
		Chats:    services.NewChatService(b.DB, chatRepoShim{}, b.Ingester, b.Files),
		Messages: &services.MessageService{DB: b.DB},
		Conversation: &services.ConversationService{
			DB:             b.DB,
			Context:        b.Context,
			Generator:      b.Generator,
			Apology:        cfg.LLM.Apology,
			MaxHistory:     cfg.LLM.MaxHistory,
			MaxPromptRunes: maxPromptRunes,
			IdempotencyTTL: cfg.IdempotencyTTL,
		},
		Billing:        services.NewBillingService(b.DB, b.Gateway, cfg.Razorpay),
		Files:          b.Files,
		Presigner:      b.Presigner,
		Index:          b.Index,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		PresignExpiry:  cfg.Storage.PresignExpiry,
	})

	// Infra
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if local, isLocal := b.Files.(*storage.LocalStore); isLocal {
		r.Static(storage.FilesRoute, local.Root())
	}

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	authOpts := middleware.AuthOptions{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer}

	api := groupWithPrefix(r, apiBase)

	// Signature-authenticated; the gateway retries on non-2xx, so no limiter.
	api.POST("/webhook", h.RazorpayWebhook)
	// Anonymous callers are answered with isPro=false.
	api.GET("/subscription", middleware.Auth(authOpts), rl.Handler(), h.SubscriptionStatus)

	required := authOpts
	required.Required = true
	user := api.Group("",
		middleware.Auth(required),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyLookup(b.DB)),
		rl.Handler(),
	)
	{
		user.POST("/create-chat", h.CreateChat)
		user.GET("/chats", h.ListChats)
		user.GET("/chats/:id/messages", h.ListMessages)

		user.POST("/chat", h.Chat)
		user.POST("/get-messages", h.GetMessages)
		user.POST("/fallback-chat", h.LatestMessage)

		user.POST("/upload", h.Upload)
		user.POST("/upload/presign", h.PresignUpload)

		user.GET("/razorpay", h.Checkout)
	}
}

func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, chatID, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, chatID, key, now)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return false, nil
		case err != nil:
			return false, err
		}
		return rec != nil, nil
	}
}

// corsMiddleware allows every origin when none is configured, otherwise
// exactly the configured ones. Credentials are never allowed with "*".
func corsMiddleware(cc config.CORSConfig) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match",
		},
		ExposeHeaders: []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cc.AllowedOrigins) == 0 {
		base.AllowAllOrigins = true
		// ACAO on same-origin requests too, so browser health checks work
		star := func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		}
		return []gin.HandlerFunc{star, cors.New(base)}
	}
	// Echo allowlisted origins ourselves; gin-contrib/cors skips requests
	// whose Origin matches the Host.
	allowed := make(map[string]struct{}, len(cc.AllowedOrigins))
	for _, o := range cc.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	echo := func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, isAllowed := allowed[origin]; isAllowed {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	}
	base.AllowOrigins = cc.AllowedOrigins
	base.AllowCredentials = true
	return []gin.HandlerFunc{echo, cors.New(base)}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	return prefix + p
}
