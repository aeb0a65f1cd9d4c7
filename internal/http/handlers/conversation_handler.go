package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatpdf-backend/internal/http/middleware"
	"github.com/tbourn/go-chatpdf-backend/internal/http/stream"
	"github.com/tbourn/go-chatpdf-backend/internal/llm"
	"github.com/tbourn/go-chatpdf-backend/internal/services"
)

// HeaderReplayed marks a chat turn served from its idempotency record.
const HeaderReplayed = "Idempotency-Replayed"

// ChatMessage is one entry of the client-side conversation.
type ChatMessage struct {
	Role    string `json:"role" example:"user"`
	Content string `json:"content" example:"What does chapter 2 say about warranty?"`
}

// ChatRequest is the body of POST /chat. The last message must be the user's.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	ChatID   string        `json:"chatId" example:"01920f4c-2b3a-7cde-8f01-23456789abcd"`
}

// Chat godoc
// @ID          chat
// @Summary     Ask a question about the chat's document
// @Description Persists the user message, answers from the document context and streams the reply as server-sent events in chat.completion.chunk frames, terminated by [DONE]. An Idempotency-Key replays a completed turn without generating again.
// @Tags        Chat
// @Accept      json
// @Produce     text/event-stream
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string                false  "Retry-safe key for this turn"
// @Param       body             body    handlers.ChatRequest  true   "Conversation"
//
// @Success     200  {string}  string                  "event stream"
// @Header      200  {string}  Idempotency-Replayed    "true when the turn was replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chatId is required")
		return
	}

	history := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		history = append(history, llm.Message{Role: strings.ToLower(strings.TrimSpace(m.Role)), Content: m.Content})
	}
	idemKey, _ := middleware.GetIdempotencyKey(c)

	ctx := c.Request.Context()
	turn, err := h.convSvc.Reply(ctx, uid, chatID, history, idemKey)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyPrompt):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "last message must be a non-empty user message")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
		case errors.Is(err, services.ErrChatNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		case errors.Is(err, context.Canceled):
			// client went away; nothing to write
			c.Abort()
		default:
			_ = c.Error(err)
			fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, "could not answer")
		}
		return
	}

	if turn.Replayed {
		c.Header(HeaderReplayed, "true")
	}
	stream.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)

	a := turn.Assistant
	werr := stream.Write(c.Writer, "chatcmpl-"+a.ID, turn.Strategy, a.Content, a.CreatedAt)
	h.convSvc.Streamed(ctx, turn, werr)
	if werr != nil {
		middleware.LoggerFrom(c).Warn().Err(werr).Str("chat_id", chatID).Msg("stream interrupted")
	}
}
