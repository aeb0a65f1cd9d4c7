package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/http/middleware"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"
	"github.com/tbourn/go-chatpdf-backend/internal/services"
	"github.com/tbourn/go-chatpdf-backend/internal/storage"
	"github.com/tbourn/go-chatpdf-backend/internal/vectorindex"
)

// ---------- test DB + repo shim ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// testChatRepo adapts the repo functions to services.ChatRepo.
type testChatRepo struct{}

func (testChatRepo) CreateChat(ctx context.Context, db *gorm.DB, c *domain.Chat) (*domain.Chat, error) {
	return repo.CreateChat(ctx, db, c)
}

func (testChatRepo) GetChat(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Chat, error) {
	return repo.GetChat(ctx, db, id, userID)
}

func (testChatRepo) GetChatByNamespace(ctx context.Context, db *gorm.DB, namespace string) (*domain.Chat, error) {
	return repo.GetChatByNamespace(ctx, db, namespace)
}

func (testChatRepo) CountChats(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountChats(ctx, db, userID)
}

func (testChatRepo) ListChatsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Chat, error) {
	return repo.ListChatsPage(ctx, db, userID, offset, limit)
}

func seedChat(t *testing.T, db *gorm.DB, userID, key string) *domain.Chat {
	t.Helper()
	c, err := repo.CreateChat(context.Background(), db, &domain.Chat{
		UserID: userID, PdfName: "doc", PdfURL: "http://files/" + key, FileKey: key, Namespace: key,
	})
	if err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	return c
}

func seedMessage(t *testing.T, db *gorm.DB, chatID, role, content string) *domain.Message {
	t.Helper()
	m, err := repo.CreateMessage(context.Background(), db, chatID, role, content)
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}

// ---------- fakes ----------

type fakeIngester struct {
	err  error
	keys []string
}

func (f *fakeIngester) Ingest(_ context.Context, key string) (*vectorindex.Record, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	return &vectorindex.Record{ID: "rec-1"}, nil
}

// memStore is an in-memory storage.Store.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (s *memStore) Download(context.Context, string) (string, error) {
	return "", storage.ErrNotFound
}

func (s *memStore) Upload(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	return s.URL(key), nil
}

func (s *memStore) URL(key string) string { return "https://files.example/" + key }

type fakeIndex struct{ degraded bool }

func (f fakeIndex) Degraded() bool { return f.degraded }

// ---------- router ----------

type env struct {
	db    *gorm.DB
	ing   *fakeIngester
	files *memStore
	h     *Handlers
	r     *gin.Engine
}

func newEnv(t *testing.T, d Deps) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	ing := &fakeIngester{}
	files := newMemStore()

	if d.Chats == nil {
		d.Chats = services.NewChatService(db, testChatRepo{}, ing, files)
	}
	if d.Messages == nil {
		d.Messages = &services.MessageService{DB: db}
	}
	if d.Files == nil {
		d.Files = files
	}
	h := New(d)
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }

	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/health", h.Health)
	r.POST("/webhook", h.RazorpayWebhook)
	r.GET("/subscription", middleware.Auth(middleware.AuthOptions{}), h.SubscriptionStatus)

	api := r.Group("", middleware.Auth(middleware.AuthOptions{Required: true}))
	api.POST("/create-chat", h.CreateChat)
	api.GET("/chats", h.ListChats)
	api.POST("/chat", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil), h.Chat)
	api.POST("/get-messages", h.GetMessages)
	api.POST("/fallback-chat", h.LatestMessage)
	api.GET("/chats/:id/messages", h.ListMessages)
	api.POST("/upload", h.Upload)
	api.POST("/upload/presign", h.PresignUpload)
	api.GET("/razorpay", h.Checkout)

	return &env{db: db, ing: ing, files: files, h: h, r: r}
}

// do sends a request as user (empty for anonymous).
func (e *env) do(method, path, user string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (%s)", w.Code, status, w.Body.String())
	}
	if got := decode[ErrorResponse](t, w); got.Code != code {
		t.Fatalf("code = %q, want %q", got.Code, code)
	}
}
