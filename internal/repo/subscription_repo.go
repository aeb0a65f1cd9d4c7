// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for subscriptions.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
)

// GetSubscription returns the subscription row of userID or ErrNotFound.
func GetSubscription(ctx context.Context, db *gorm.DB, userID string) (*domain.Subscription, error) {
	var s domain.Subscription
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSubscription inserts s, or, when the user already has a row, updates
// only the listed columns. The unique index on user_id keeps one row per user
// even when two webhook deliveries race.
func UpsertSubscription(ctx context.Context, db *gorm.DB, s *domain.Subscription, updateCols []string) error {
	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	cols := append([]string{"updated_at"}, updateCols...)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).
		Create(s).Error
}
