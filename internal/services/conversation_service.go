// Package services – ConversationService
//
// This file implements the per-turn orchestration of a chat:
//
//	Received → ContextFetched → Generating → Persisted → Streamed
//
// with Errored reachable from every step. The user message is persisted
// before anything else, so a cancelled or failed turn still leaves it in the
// history. Retrieval is best-effort; generation goes through the fallback
// chain and always yields text unless every link fails.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/llm"
	"github.com/tbourn/go-chatpdf-backend/internal/observability"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"
)

// TurnState is a step of the per-turn state machine.
type TurnState string

const (
	StateReceived       TurnState = "received"
	StateContextFetched TurnState = "context_fetched"
	StateGenerating     TurnState = "generating"
	StatePersisted      TurnState = "persisted"
	StateStreamed       TurnState = "streamed"
	StateErrored        TurnState = "errored"
)

// ContextFetcher returns the context block for a query; "" when nothing
// relevant was found or retrieval failed.
type ContextFetcher interface {
	GetContext(ctx context.Context, query, namespace string) string
}

// Generator produces the assistant text for a prompt.
type Generator interface {
	Generate(ctx context.Context, p llm.Prompt) (llm.Result, error)
}

// Turn is the outcome of one Reply call.
type Turn struct {
	State     TurnState
	User      *domain.Message
	Assistant *domain.Message
	// Strategy names the generation link that produced the reply.
	Strategy string
	// ContextChars is the length of the context block in runes.
	ContextChars int
	// Replayed is set when the reply came from an idempotency record.
	Replayed bool
}

// ConversationService runs chat turns.
type ConversationService struct {
	DB        *gorm.DB
	Context   ContextFetcher
	Generator Generator

	// Apology replaces the reply when every generation link failed.
	Apology string
	// MaxHistory bounds the client-supplied messages forwarded to the model.
	MaxHistory int
	// MaxPromptRunes bounds the user message.
	MaxPromptRunes int
	// IdempotencyTTL is how long a recorded turn can be replayed.
	IdempotencyTTL time.Duration
}

const (
	contextPromptTemplate = `You are a helpful AI assistant. You have access to the following context about a document:
START CONTEXT BLOCK
%s
END OF CONTEXT BLOCK

Only use information from the context to answer questions. If the context doesn't provide the answer, say "I'm sorry, but I don't know the answer to that question."
Don't make up or invent information not present in the context.`

	personaPrompt = `You are a helpful AI assistant answering questions about a PDF document the user uploaded.
No passage of the document matched this question. Say so briefly and suggest how the user could rephrase it.
Don't make up or invent information about the document.`
)

// SystemPrompt builds the system instruction for a context block.
func SystemPrompt(contextBlock string) string {
	if strings.TrimSpace(contextBlock) == "" {
		return personaPrompt
	}
	return fmt.Sprintf(contextPromptTemplate, contextBlock)
}

// Reply runs one turn for the last user message in history. With a non-empty
// idemKey a turn already recorded under that key is returned as-is.
func (s *ConversationService) Reply(ctx context.Context, userID, chatID string, history []llm.Message, idemKey string) (turn *Turn, err error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Reply",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("user.id", userID),
			attribute.Int("history", len(history)),
		),
	)
	defer span.End()

	log := zerolog.Ctx(ctx).With().Str("chat_id", chatID).Logger()
	turn = &Turn{State: StateReceived}
	defer func() {
		if err != nil {
			turn.State = StateErrored
			span.RecordError(err)
			observability.ChatTurns.WithLabelValues(string(StateErrored)).Inc()
		}
		span.SetAttributes(attribute.String("turn.state", string(turn.State)))
	}()

	prompt, err := s.lastUserPrompt(history)
	if err != nil {
		return turn, err
	}

	chat, err := repo.GetChat(ctx, s.DB, chatID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return turn, ErrChatNotFound
		}
		return turn, err
	}

	if idemKey != "" {
		if prev := s.replay(ctx, userID, chatID, idemKey); prev != nil {
			turn.Assistant, turn.Replayed, turn.State = prev, true, StatePersisted
			log.Info().Str("message_id", prev.ID).Msg("chat turn replayed")
			return turn, nil
		}
	}

	turn.User, err = repo.CreateMessage(ctx, s.DB, chatID, domain.RoleUser, prompt)
	if err != nil {
		return turn, fmt.Errorf("persist user message: %w", err)
	}

	block := ""
	if s.Context != nil {
		block = s.Context.GetContext(ctx, prompt, chat.Namespace)
	}
	turn.ContextChars = utf8.RuneCountInString(block)
	turn.State = StateContextFetched
	log.Debug().Int("context_chars", turn.ContextChars).Msg("context fetched")

	turn.State = StateGenerating
	res, genErr := s.Generator.Generate(ctx, llm.Prompt{
		System:   SystemPrompt(block),
		Messages: s.window(history),
	})
	text, strategy := res.Text, res.Strategy
	if genErr != nil {
		if ctx.Err() != nil {
			return turn, ctx.Err()
		}
		log.Warn().Err(genErr).Int("failed_links", len(res.Attempts)).Msg("generation chain exhausted; sending apology")
		text, strategy = s.apology(), "apology"
	}
	turn.Strategy = strategy

	turn.Assistant, err = repo.CreateMessage(ctx, s.DB, chatID, domain.RoleAssistant, text)
	if err != nil {
		return turn, fmt.Errorf("persist assistant message: %w", err)
	}
	turn.State = StatePersisted

	if idemKey != "" {
		ttl := s.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		if _, ierr := repo.CreateIdempotency(ctx, s.DB, userID, chatID, idemKey, turn.Assistant.ID, 200, ttl); ierr != nil && !errors.Is(ierr, repo.ErrDuplicate) {
			log.Warn().Err(ierr).Msg("idempotency record not stored")
		}
	}

	log.Info().
		Str("strategy", strategy).
		Int("context_chars", turn.ContextChars).
		Str("message_id", turn.Assistant.ID).
		Msg("chat turn persisted")
	return turn, nil
}

// Streamed closes a persisted turn once its frames were written. A write
// error moves the turn to Errored; the messages stay persisted.
func (s *ConversationService) Streamed(ctx context.Context, turn *Turn, writeErr error) {
	if turn == nil || turn.State != StatePersisted {
		return
	}
	if writeErr != nil {
		turn.State = StateErrored
		zerolog.Ctx(ctx).Warn().Err(writeErr).Msg("chat stream interrupted")
	} else {
		turn.State = StateStreamed
	}
	observability.ChatTurns.WithLabelValues(string(turn.State)).Inc()
}

// lastUserPrompt validates the history and returns the text of its last entry.
func (s *ConversationService) lastUserPrompt(history []llm.Message) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyPrompt
	}
	last := history[len(history)-1]
	prompt := strings.TrimSpace(last.Content)
	if last.Role != domain.RoleUser || prompt == "" {
		return "", ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > s.MaxPromptRunes {
		return "", ErrTooLong
	}
	return prompt, nil
}

// window keeps the newest MaxHistory user/assistant messages. System messages
// from the client are dropped; the server owns the system prompt.
func (s *ConversationService) window(history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	if s.MaxHistory > 0 && len(out) > s.MaxHistory {
		out = out[len(out)-s.MaxHistory:]
	}
	return out
}

func (s *ConversationService) replay(ctx context.Context, userID, chatID, key string) *domain.Message {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, chatID, key, time.Now().UTC())
	if err != nil {
		return nil
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if err != nil {
		return nil
	}
	return m
}

func (s *ConversationService) apology() string {
	if s.Apology != "" {
		return s.Apology
	}
	return "I'm sorry, but I'm having trouble answering right now. Please try again in a moment."
}
