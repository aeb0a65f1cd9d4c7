package domain

import "time"

// Idempotency records the assistant message produced by a completed chat turn,
// keyed by (user_id, chat_id, key). A retried POST /chat carrying the same
// Idempotency-Key replays that message instead of generating a new one.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(256);not null;uniqueIndex:ux_user_chat_key,priority:1"`
	ChatID    string    `gorm:"type:char(36);not null;uniqueIndex:ux_user_chat_key,priority:2"`
	Key       string    `gorm:"type:varchar(256);not null;uniqueIndex:ux_user_chat_key,priority:3"`
	MessageID string    `gorm:"type:char(36);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
