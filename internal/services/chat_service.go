// Package services – ChatService
//
// This file implements the ChatService, which manages the lifecycle of chats.
// A chat is created only after its document has been ingested; a failed
// ingestion leaves no row behind. The service also derives a display name for
// documents uploaded without one and lists a user's chats page by page.
//
// Service-level errors (e.g., ErrChatNotFound) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"
	"github.com/tbourn/go-chatpdf-backend/internal/vectorindex"
)

// ChatRepo defines the repository contract required by ChatService.
// Implementations are responsible for persistence of chat aggregates.
type ChatRepo interface {
	// CreateChat inserts a new chat row.
	CreateChat(ctx context.Context, db *gorm.DB, c *domain.Chat) (*domain.Chat, error)

	// GetChat fetches a chat by ID ensuring it belongs to the user.
	GetChat(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Chat, error)

	// GetChatByNamespace fetches the chat bound to a vector namespace,
	// regardless of owner.
	GetChatByNamespace(ctx context.Context, db *gorm.DB, namespace string) (*domain.Chat, error)

	// CountChats returns the total number of chats for pagination.
	CountChats(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListChatsPage returns a page of chats belonging to the user.
	ListChatsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Chat, error)
}

// Ingester indexes a stored document.
type Ingester interface {
	Ingest(ctx context.Context, key string) (*vectorindex.Record, error)
}

// URLResolver maps a storage key to its retrieval URL.
type URLResolver interface {
	URL(key string) string
}

// ChatService provides chat-level operations: creation after ingestion,
// lookup with ownership checks, and paginated listing.
type ChatService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the chat repository used by this service.
	Repo ChatRepo
	// Ingest indexes the document before the chat row is written.
	Ingest Ingester
	// Files resolves the document URL stored on the chat.
	Files URLResolver

	// NameMaxLen caps stored document names by rune length.
	NameMaxLen int
	// NameLocale drives title casing of names derived from storage keys.
	NameLocale language.Tag
}

// NewChatService constructs a ChatService with sane defaults for names.
func NewChatService(db *gorm.DB, r ChatRepo, ing Ingester, files URLResolver) *ChatService {
	return &ChatService{
		DB:         db,
		Repo:       r,
		Ingest:     ing,
		Files:      files,
		NameMaxLen: 120,
		NameLocale: language.Und,
	}
}

// Create ingests the document under fileKey and, only when that succeeds,
// inserts a chat owned by userID.
//
// A namespace belongs to exactly one chat. When the owner repeats a request
// for the same key the existing chat is returned without ingesting again;
// any other claim on a bound namespace fails with ErrDocumentInUse before the
// index is touched.
func (s *ChatService) Create(ctx context.Context, userID, fileKey, fileName string) (*domain.Chat, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("file.key", fileKey),
		),
	)
	defer span.End()

	fileKey = strings.TrimSpace(fileKey)
	if fileKey == "" {
		return nil, ErrInvalidFileKey
	}

	ns := vectorindex.Namespace(fileKey)
	existing, err := s.Repo.GetChatByNamespace(ctx, s.DB, ns)
	switch {
	case err == nil:
		if existing.UserID == userID && existing.FileKey == fileKey {
			return existing, nil
		}
		span.RecordError(ErrDocumentInUse)
		return nil, ErrDocumentInUse
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	if _, err := s.Ingest.Ingest(ctx, fileKey); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrIngestFailed, err)
	}

	name := s.clip(normalizeTitle(fileName))
	if name == "" {
		name = s.clip(s.nameFromKey(fileKey))
	}
	url := ""
	if s.Files != nil {
		url = s.Files.URL(fileKey)
	}

	chat, err := s.Repo.CreateChat(ctx, s.DB, &domain.Chat{
		UserID:    userID,
		PdfName:   name,
		PdfURL:    url,
		FileKey:   fileKey,
		Namespace: ns,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDocumentInUse
		}
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("chat_id", chat.ID).Str("file_key", fileKey).Msg("chat created")
	return chat, nil
}

// Get returns a chat owned by userID or ErrChatNotFound.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
	c, err := s.Repo.GetChat(ctx, s.DB, chatID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListPage returns a page of chats for a user (paginated).
// It applies defaults for invalid page/pageSize and returns total count.
func (s *ChatService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Chat, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountChats(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Chat{}, 0, nil
	}

	items, err := s.Repo.ListChatsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// nameFromKey turns "uploads/1700000000000-annual-report.pdf" into
// "Annual Report".
func (s *ChatService) nameFromKey(key string) string {
	base := path.Base(key)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = uploadPrefixRE.ReplaceAllString(base, "")
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	base = normalizeTitle(base)
	if base == "" {
		return "Untitled document"
	}
	loc := s.NameLocale
	if loc == language.Und {
		loc = language.English
	}
	return cases.Title(loc).String(base)
}

// clip truncates a name to the configured maximum rune length.
func (s *ChatService) clip(name string) string {
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	s = whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	return s
}

var (
	// whitespaceRE collapses consecutive whitespace to a single space.
	whitespaceRE = regexp.MustCompile(`\s+`)
	// uploadPrefixRE matches the millisecond timestamp upload keys start with.
	uploadPrefixRE = regexp.MustCompile(`^\d{10,}-`)
)
