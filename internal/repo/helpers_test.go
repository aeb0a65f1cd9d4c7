package repo

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedChat(t *testing.T, db *gorm.DB, id, userID string, at time.Time) *domain.Chat {
	t.Helper()
	c := &domain.Chat{ID: id, UserID: userID, PdfName: id + ".pdf", PdfURL: "http://files/" + id, FileKey: "uploads/" + id, Namespace: "uploads/" + id, CreatedAt: at}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	return c
}
