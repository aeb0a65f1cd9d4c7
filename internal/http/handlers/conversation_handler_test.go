package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/http/middleware"
	"github.com/tbourn/go-chatpdf-backend/internal/http/stream"
	"github.com/tbourn/go-chatpdf-backend/internal/llm"
	"github.com/tbourn/go-chatpdf-backend/internal/services"
)

type fakeConv struct {
	turn *services.Turn
	err  error

	gotUser, gotChat, gotKey string
	gotHistory               []llm.Message
	streamed                 []error
}

func (f *fakeConv) Reply(_ context.Context, userID, chatID string, history []llm.Message, idemKey string) (*services.Turn, error) {
	f.gotUser, f.gotChat, f.gotHistory, f.gotKey = userID, chatID, history, idemKey
	return f.turn, f.err
}

func (f *fakeConv) Streamed(_ context.Context, _ *services.Turn, writeErr error) {
	f.streamed = append(f.streamed, writeErr)
}

func assistantTurn(text string, replayed bool) *services.Turn {
	return &services.Turn{
		State:     services.StatePersisted,
		Assistant: &domain.Message{ID: "m-1", Role: domain.RoleAssistant, Content: text, CreatedAt: time.Unix(1700000000, 0)},
		Strategy:  "model_list",
		Replayed:  replayed,
	}
}

func TestChat_StreamsReply(t *testing.T) {
	conv := &fakeConv{turn: assistantTurn("Page two says\nhello.", false)}
	e := newEnv(t, Deps{Conversation: conv})

	w := e.do(http.MethodPost, "/chat", "u1", ChatRequest{
		ChatID:   "c-1",
		Messages: []ChatMessage{{Role: "User", Content: "hi"}, {Role: "assistant", Content: "hello"}, {Role: "user", Content: "what is on page 2?"}},
	}, middleware.HeaderIdempotencyKey, "turn-1")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, stream.ContentType) {
		t.Fatalf("content type = %q", ct)
	}
	if w.Header().Get(HeaderReplayed) != "" {
		t.Fatal("fresh turn marked as replay")
	}
	text, err := stream.Parse(w.Body)
	if err != nil || text != "Page two says\nhello." {
		t.Fatalf("parsed %q, %v", text, err)
	}

	if conv.gotUser != "u1" || conv.gotChat != "c-1" || conv.gotKey != "turn-1" {
		t.Fatalf("reply args = %q %q %q", conv.gotUser, conv.gotChat, conv.gotKey)
	}
	if len(conv.gotHistory) != 3 || conv.gotHistory[0].Role != "user" {
		t.Fatalf("history = %+v", conv.gotHistory)
	}
	if len(conv.streamed) != 1 || conv.streamed[0] != nil {
		t.Fatalf("streamed = %v", conv.streamed)
	}
}

func TestChat_ReplayHeader(t *testing.T) {
	conv := &fakeConv{turn: assistantTurn("recorded", true)}
	e := newEnv(t, Deps{Conversation: conv})

	w := e.do(http.MethodPost, "/chat", "u1", ChatRequest{ChatID: "c-1", Messages: []ChatMessage{{Role: "user", Content: "q"}}},
		middleware.HeaderIdempotencyKey, "turn-1")
	if w.Header().Get(HeaderReplayed) != "true" {
		t.Fatalf("missing replay header: %v", w.Header())
	}
	if text, _ := stream.Parse(w.Body); text != "recorded" {
		t.Fatalf("text = %q", text)
	}
}

func TestChat_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrEmptyPrompt, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrTooLong, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrChatNotFound, http.StatusNotFound, ErrCodeNotFound},
		{errors.New("db down"), http.StatusInternalServerError, ErrCodeAnswerFailed},
	}
	for _, tc := range cases {
		e := newEnv(t, Deps{Conversation: &fakeConv{err: tc.err}})
		w := e.do(http.MethodPost, "/chat", "u1", ChatRequest{ChatID: "c", Messages: []ChatMessage{{Role: "user", Content: "q"}}})
		wantError(t, w, tc.status, tc.code)
	}
}

func TestChat_Validation(t *testing.T) {
	conv := &fakeConv{turn: assistantTurn("x", false)}
	e := newEnv(t, Deps{Conversation: conv})

	wantError(t, e.do(http.MethodPost, "/chat", "u1", ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "q"}}}), http.StatusBadRequest, ErrCodeBadRequest)
	wantError(t, e.do(http.MethodPost, "/chat", "", ChatRequest{ChatID: "c"}), http.StatusUnauthorized, ErrCodeUnauthorized)
	w := e.do(http.MethodPost, "/chat", "u1", ChatRequest{ChatID: "c"}, middleware.HeaderIdempotencyKey, "bad key!")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad idempotency key: %d", w.Code)
	}
	if conv.gotChat != "" {
		t.Fatal("service called on invalid input")
	}
}
