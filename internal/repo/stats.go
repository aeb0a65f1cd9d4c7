// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for weak
// ETag generation in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
)

// ChatsStats returns the number of chats owned by userID and the newest
// CreatedAt among them (nil when the user has none). Chats are immutable, so
// creation time is the only change marker.
func ChatsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Chat{}).Where("user_id = ?", userID)
	return statsOf(q)
}

// MessagesStats returns the number of messages in chatID and the newest
// CreatedAt among them (nil when the chat is empty).
func MessagesStats(ctx context.Context, db *gorm.DB, chatID string) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID)
	return statsOf(q)
}

func statsOf(q *gorm.DB) (int64, *time.Time, error) {
	var count int64
	if err := q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var row struct {
		CreatedAt time.Time
	}
	if err := q.Session(&gorm.Session{}).Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
