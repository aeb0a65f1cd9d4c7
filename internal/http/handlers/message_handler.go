// Message HTTP handlers.
//
// This file exposes read access to chat history:
//   - POST /get-messages          (full ordered history of a chat)
//   - POST /fallback-chat         (most recent message of a chat)
//   - GET  /chats/{id}/messages   (paginated history, ETag support)
//
// Ownership is enforced by the service: a chat of another user is reported
// as not found.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"
	"github.com/tbourn/go-chatpdf-backend/internal/services"
)

//
// DTOs
//

// ChatRef identifies a chat in POST bodies.
type ChatRef struct {
	ChatID string `json:"chatId" example:"01920f4c-2b3a-7cde-8f01-23456789abcd"`
}

// MessageDTO is the client shape of a stored message.
type MessageDTO struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      string    `json:"role" example:"assistant"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListMessagesResponse contains a page of chat messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []MessageDTO `json:"messages"`
	Pagination Pagination   `json:"pagination"`
}

func toDTO(m domain.Message) MessageDTO {
	return MessageDTO{ID: m.ID, Content: m.Content, Role: m.Role, CreatedAt: m.CreatedAt}
}

func toDTOs(ms []domain.Message) []MessageDTO {
	out := make([]MessageDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, toDTO(m))
	}
	return out
}

// bindChatRef decodes {chatId} and writes 400 when it is missing.
func bindChatRef(c *gin.Context) (string, bool) {
	var ref ChatRef
	if err := c.ShouldBindJSON(&ref); err != nil || strings.TrimSpace(ref.ChatID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chatId is required")
		return "", false
	}
	return strings.TrimSpace(ref.ChatID), true
}

// historyError maps message-service errors onto responses.
func historyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrChatNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no messages yet")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not load messages")
	}
}

//
// Handlers
//

// GetMessages godoc
// @ID          getMessages
// @Summary     Chat history
// @Description Returns every message of the chat in insertion order.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.ChatRef  true  "Chat"
//
// @Success     200  {array}   handlers.MessageDTO
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /get-messages [post]
func (h *Handlers) GetMessages(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	chatID, okRef := bindChatRef(c)
	if !okRef {
		return
	}
	msgs, err := h.msgSvc.List(c.Request.Context(), uid, chatID)
	if err != nil {
		historyError(c, err)
		return
	}
	ok(c, http.StatusOK, toDTOs(msgs))
}

// LatestMessage godoc
// @ID          latestMessage
// @Summary     Most recent message
// @Description Returns the newest message of the chat. Clients use it to recover a reply when the stream broke.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.ChatRef  true  "Chat"
//
// @Success     200  {object}  handlers.MessageDTO
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat or message not found"
// @Router      /fallback-chat [post]
func (h *Handlers) LatestMessage(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	chatID, okRef := bindChatRef(c)
	if !okRef {
		return
	}
	m, err := h.msgSvc.Latest(c.Request.Context(), uid, chatID)
	if err != nil {
		historyError(c, err)
		return
	}
	ok(c, http.StatusOK, toDTO(*m))
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages (paginated)
// @Description Returns a page of messages, oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
//
// @Param       id             path    string  true   "Chat ID"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "Chat not found"
// @Router      /chats/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	ctx := c.Request.Context()
	chatID := strings.TrimSpace(c.Param("id"))
	page, pageSize := clampPagination(c, 50, 200)

	var db *gorm.DB
	if svc, isSvc := h.msgSvc.(*services.MessageService); isSvc {
		db = svc.DB
	}
	if db != nil {
		// ownership first so a foreign chat never leaks its validator
		if _, err := repo.GetChat(ctx, db, chatID, uid); err == nil {
			if count, latest, err := repo.MessagesStats(ctx, db, chatID); err == nil {
				if weakETag(c, "msgs", chatID, count, latest) {
					c.Status(http.StatusNotModified)
					return
				}
			}
		}
	}

	items, total, err := h.msgSvc.ListPage(ctx, uid, chatID, page, pageSize)
	if err != nil {
		historyError(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: toDTOs(items), Pagination: paginate(page, pageSize, total)})
}
