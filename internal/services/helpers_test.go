package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/llm"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"
)

// ---------- test helpers ----------

var testNow = time.Unix(1700000000, 0)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedChat(t *testing.T, db *gorm.DB, userID, key string) *domain.Chat {
	t.Helper()
	c, err := repo.CreateChat(context.Background(), db, &domain.Chat{
		UserID:    userID,
		PdfName:   "doc.pdf",
		PdfURL:    "http://files/" + key,
		FileKey:   key,
		Namespace: key,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	return c
}

type fakeFetcher struct {
	block     string
	gotQuery  string
	gotNS     string
	callCount int
}

func (f *fakeFetcher) GetContext(_ context.Context, query, namespace string) string {
	f.callCount++
	f.gotQuery, f.gotNS = query, namespace
	return f.block
}

type fakeGenerator struct {
	text   string
	err    error
	prompt llm.Prompt
	calls  int
}

func (g *fakeGenerator) Generate(_ context.Context, p llm.Prompt) (llm.Result, error) {
	g.calls++
	g.prompt = p
	if g.err != nil {
		return llm.Result{Attempts: []llm.Attempt{{Strategy: "model_list", Err: g.err}}}, g.err
	}
	return llm.Result{Text: g.text, Strategy: "model_list"}, nil
}
