// Chat HTTP handlers.
//
// This file exposes the chat lifecycle endpoints:
//   - POST /create-chat   (ingest an uploaded PDF, then create the chat)
//   - GET  /chats         (list, paginated, ETag support)
//
// It also declares the service contracts every handler in this package
// depends on, and the Handlers wiring.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/llm"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"
	"github.com/tbourn/go-chatpdf-backend/internal/services"
	"github.com/tbourn/go-chatpdf-backend/internal/storage"
	"github.com/tbourn/go-chatpdf-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChatService creates and lists document chats.
type ChatService interface {
	// Create ingests fileKey and inserts the chat only when ingestion succeeds.
	Create(ctx context.Context, userID, fileKey, fileName string) (*domain.Chat, error)
	// ListPage returns a page of the user's chats and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Chat, int64, error)
}

// MessageService reads chat history.
type MessageService interface {
	List(ctx context.Context, userID, chatID string) ([]domain.Message, error)
	ListPage(ctx context.Context, userID, chatID string, page, pageSize int) ([]domain.Message, int64, error)
	Latest(ctx context.Context, userID, chatID string) (*domain.Message, error)
}

// ConversationService runs one chat turn and records whether it was delivered.
type ConversationService interface {
	Reply(ctx context.Context, userID, chatID string, history []llm.Message, idemKey string) (*services.Turn, error)
	Streamed(ctx context.Context, turn *services.Turn, writeErr error)
}

// BillingService answers plan questions and applies payment webhooks.
type BillingService interface {
	Checkout(ctx context.Context, userID string) (*services.CheckoutSession, error)
	IsPro(ctx context.Context, userID string) (bool, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (bool, error)
}

// IndexHealth reports whether vector queries are served from the fallback.
type IndexHealth interface {
	Degraded() bool
}

//
// Handler wiring
//

// Deps carries the collaborators of Handlers. Presigner and Index may be nil.
type Deps struct {
	Chats        ChatService
	Messages     MessageService
	Conversation ConversationService
	Billing      BillingService
	Files        storage.Store
	Presigner    storage.Presigner
	Index        IndexHealth

	MaxUploadBytes int64
	PresignExpiry  time.Duration
}

// Handlers groups the HTTP endpoints of the API.
type Handlers struct {
	chatSvc ChatService
	msgSvc  MessageService
	convSvc ConversationService
	billSvc BillingService
	files   storage.Store
	presign storage.Presigner
	index   IndexHealth

	maxUpload     int64
	presignExpiry time.Duration
	now           func() time.Time
}

// New constructs Handlers from d.
func New(d Deps) *Handlers {
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	expiry := d.PresignExpiry
	if expiry <= 0 {
		expiry = 600 * time.Second
	}
	return &Handlers{
		chatSvc:       d.Chats,
		msgSvc:        d.Messages,
		convSvc:       d.Conversation,
		billSvc:       d.Billing,
		files:         d.Files,
		presign:       d.Presigner,
		index:         d.Index,
		maxUpload:     maxUpload,
		presignExpiry: expiry,
		now:           time.Now,
	}
}

//
// DTOs
//

// CreateChatRequest names an uploaded document to chat with.
type CreateChatRequest struct {
	FileKey  string `json:"file_key" example:"uploads/1717171717171-manual.pdf"`
	FileName string `json:"file_name" example:"manual.pdf"`
}

// CreateChatResponse returns the new chat id.
type CreateChatResponse struct {
	ChatID string `json:"chat_id" example:"01920f4c-2b3a-7cde-8f01-23456789abcd"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListChatsResponse wraps a page of chats and pagination information.
type ListChatsResponse struct {
	Chats      []domain.Chat `json:"chats"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context, defaultSize, maxSize int) (page, pageSize int) {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"), defaultSize, maxSize)
}

func paginate(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// weakETag sets a weak validator built from (count, newest timestamp) and
// reports whether If-None-Match already matches it.
func weakETag(c *gin.Context, scope, id string, count int64, latest *time.Time) bool {
	var ts int64
	if latest != nil {
		ts = latest.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d:%d"`, scope, id, count, ts)
	c.Header("ETag", etag)
	return c.GetHeader("If-None-Match") == etag
}

//
// Handlers
//

// CreateChat godoc
// @ID          createChat
// @Summary     Create a chat for an uploaded PDF
// @Description Runs the ingestion pipeline for file_key and, only when it succeeds, creates the chat.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.CreateChatRequest  true  "Uploaded document"
//
// @Success     200  {object}  handlers.CreateChatResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     409  {object}  handlers.ErrorResponse  "Document already belongs to a chat"
// @Failure     500  {object}  handlers.ErrorResponse  "Ingestion failed"
// @Router      /create-chat [post]
func (h *Handlers) CreateChat(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.FileKey) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file_key is required")
		return
	}

	ch, err := h.chatSvc.Create(c.Request.Context(), uid, req.FileKey, req.FileName)
	switch {
	case err == nil:
		ok(c, http.StatusOK, CreateChatResponse{ChatID: ch.ID})
	case errors.Is(err, services.ErrInvalidFileKey):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrDocumentInUse):
		fail(c, http.StatusConflict, ErrCodeDocumentInUse, err.Error())
	case errors.Is(err, services.ErrIngestFailed):
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeIngestFailed, services.ErrIngestFailed.Error())
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create chat")
	}
}

// ListChats godoc
// @ID          listChats
// @Summary     List chats (paginated)
// @Description Returns a page of the user's chats, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListChatsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c, 20, 100)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, isSvc := h.chatSvc.(*services.ChatService); isSvc {
		db = svc.DB
	}
	if db != nil {
		if count, latest, err := repo.ChatsStats(ctx, db, uid); err == nil {
			if weakETag(c, "chats", uid, count, latest) {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.chatSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list chats")
		return
	}
	ok(c, http.StatusOK, ListChatsResponse{Chats: items, Pagination: paginate(page, pageSize, total)})
}
