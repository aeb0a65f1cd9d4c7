// Package domain defines the persistence models for chats, messages, and
// subscriptions. These types are mapped with GORM and form the core data layer
// of the PDF chat application.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat is a conversation bound to exactly one uploaded document. It is created
// only after the document has been fully indexed and is never mutated.
//
// Fields:
//   - ID: time-ordered UUID primary key (char(36)).
//   - UserID: identifier of the chat owner; indexed for efficient retrieval.
//   - PdfName: human-readable document name.
//   - PdfURL: retrieval URL of the stored document.
//   - FileKey: opaque storage key of the document (unique).
//   - Namespace: vector-index namespace derived from FileKey (unique), so one
//     namespace belongs to exactly one chat.
type Chat struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(256);not null;index:idx_user_chats"`
	PdfName   string    `json:"pdf_name"   gorm:"type:text;not null"`
	PdfURL    string    `json:"pdf_url"    gorm:"type:text;not null"`
	FileKey   string    `json:"file_key"   gorm:"type:text;not null;uniqueIndex:ux_chats_file_key"`
	Namespace string    `json:"-"          gorm:"type:text;not null;uniqueIndex:ux_chats_namespace"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_user_chats"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// Message is a single append-only utterance within a chat.
//
// IDs are UUIDv7, so ordering by (created_at, id) is insertion order even when
// two rows share a timestamp.
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    string    `json:"chat_id"    gorm:"type:char(36);not null;index:idx_chat_msgs,priority:1"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('system','user','assistant')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chat_msgs,priority:2"`

	// Chat is the parent conversation. Messages are cascade-deleted
	// if their chat is removed.
	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Subscription records the paid plan of a user as reported by verified
// payment webhooks. There is at most one row per user. Expiry is derived at
// read time (see Active); rows are never deleted.
type Subscription struct {
	ID                     string         `json:"id"                       gorm:"type:char(36);primaryKey"`
	UserID                 string         `json:"user_id"                  gorm:"type:varchar(256);not null;uniqueIndex:ux_subscription_user"`
	ExternalCustomerID     string         `json:"external_customer_id"     gorm:"type:varchar(256)"`
	ExternalSubscriptionID string         `json:"external_subscription_id" gorm:"type:varchar(256)"`
	PlanID                 *string        `json:"plan_id,omitempty"        gorm:"type:varchar(256)"`
	CurrentPeriodEnd       *time.Time     `json:"current_period_end,omitempty"`
	LastEvent              string         `json:"last_event"               gorm:"type:varchar(64)"`
	LastPayload            datatypes.JSON `json:"-"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "user_subscriptions" }

// Active reports whether the subscription is still within its paid period
// plus grace at time now.
func (s *Subscription) Active(now time.Time, grace time.Duration) bool {
	if s == nil || s.CurrentPeriodEnd == nil {
		return false
	}
	return s.CurrentPeriodEnd.Add(grace).After(now)
}
