// Package services – MessageService
//
// This file implements MessageService, the read side of chat messages: the
// full ordered history of a chat, a paginated view of it, and the most recent
// message. Every method checks that the chat belongs to the caller first.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include chat/user identifiers and pagination parameters where applicable.

package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageService serves message history.
type MessageService struct {
	DB *gorm.DB
}

// List returns every message of a chat in insertion order.
func (s *MessageService) List(ctx context.Context, userID, chatID string) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if err := s.ensureChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	items, err := repo.ListMessages(ctx, s.DB, chatID, 0)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Message{}
	}
	return items, nil
}

// ListPage returns paginated messages for a chat.
func (s *MessageService) ListPage(ctx context.Context, userID, chatID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if err := s.ensureChat(ctx, userID, chatID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountMessages(ctx, s.DB, chatID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(ctx, s.DB, chatID, offset, pageSize)
	return items, total, err
}

// Latest returns the most recent message of a chat, or ErrMessageNotFound
// when the chat has none.
func (s *MessageService) Latest(ctx context.Context, userID, chatID string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Latest", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	if err := s.ensureChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	m, err := repo.LatestMessage(ctx, s.DB, chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	return m, err
}

func (s *MessageService) ensureChat(ctx context.Context, userID, chatID string) error {
	if _, err := repo.GetChat(ctx, s.DB, chatID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	return nil
}
