package services

import (
	"context"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatpdf-backend/internal/chunker"
	"github.com/tbourn/go-chatpdf-backend/internal/config"
	"github.com/tbourn/go-chatpdf-backend/internal/domain"
	"github.com/tbourn/go-chatpdf-backend/internal/ingest"
	"github.com/tbourn/go-chatpdf-backend/internal/llm"
	"github.com/tbourn/go-chatpdf-backend/internal/repo"
	"github.com/tbourn/go-chatpdf-backend/internal/retrieval"
	"github.com/tbourn/go-chatpdf-backend/internal/storage"
	"github.com/tbourn/go-chatpdf-backend/internal/testutil"
	"github.com/tbourn/go-chatpdf-backend/internal/vectorindex"
)

// repoChats adapts the repo package functions to ChatRepo.
type repoChats struct{}

func (repoChats) CreateChat(ctx context.Context, db *gorm.DB, c *domain.Chat) (*domain.Chat, error) {
	return repo.CreateChat(ctx, db, c)
}
func (repoChats) GetChat(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Chat, error) {
	return repo.GetChat(ctx, db, id, userID)
}
func (repoChats) GetChatByNamespace(ctx context.Context, db *gorm.DB, namespace string) (*domain.Chat, error) {
	return repo.GetChatByNamespace(ctx, db, namespace)
}
func (repoChats) CountChats(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountChats(ctx, db, userID)
}
func (repoChats) ListChatsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Chat, error) {
	return repo.ListChatsPage(ctx, db, userID, offset, limit)
}

// echoStrategy answers with the context block it was given, so the test can
// see what reached the model.
type echoStrategy struct{}

func (echoStrategy) Name() string { return "echo" }
func (echoStrategy) Generate(_ context.Context, p llm.Prompt) (string, error) {
	return p.System, nil
}

func TestPDFToAnswer_EndToEnd(t *testing.T) {
	ctx := context.Background()
	db := newSvcDB(t)

	files, err := storage.NewLocalStore(t.TempDir(), "http://localhost:8080")
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	key := storage.FileKey("Product Manual.pdf", testNow)
	pdf := testutil.MinimalPDF(
		"Chapter one explains how to unpack the device and charge the battery overnight.",
		"The warranty covers accidental water damage for twenty four months after purchase.",
	)
	if _, err := files.Upload(ctx, key, strings.NewReader(string(pdf)), "application/pdf"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	emb := &testutil.HashEmbedder{Dim: 128}
	index := vectorindex.NewAdapter(vectorindex.NewMemoryStore(), 100, "")
	pipeline := &ingest.Pipeline{
		Storage:     files,
		Parser:      ingest.PDFParser{},
		Splitter:    chunker.New(2000, 200, 36000),
		Embedder:    emb,
		Index:       index,
		Concurrency: 2,
	}

	chats := NewChatService(db, repoChats{}, pipeline, files)
	chat, err := chats.Create(ctx, "u1", key, "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if chat.PdfName != "Product Manual" || !strings.HasPrefix(chat.PdfURL, "http://localhost:8080/files/uploads/") {
		t.Fatalf("chat = %+v", chat)
	}

	conv := &ConversationService{
		DB:        db,
		Context:   retrieval.NewAssembler(emb, index, config.RetrievalConfig{}),
		Generator: llm.NewChain(echoStrategy{}, llm.StaticStrategy{Text: "sorry"}),
	}
	turn, err := conv.Reply(ctx, "u1", chat.ID, []llm.Message{{Role: domain.RoleUser, Content: "Does the warranty cover accidental water damage?"}}, "")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if turn.Strategy != "echo" || turn.ContextChars == 0 {
		t.Fatalf("turn = %+v", turn)
	}

	msgs, err := (&MessageService{DB: db}).List(ctx, "u1", chat.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "accidental water damage for twenty four months") {
		t.Fatalf("page-2 passage missing from the persisted reply: %q", msgs[1].Content)
	}
}
