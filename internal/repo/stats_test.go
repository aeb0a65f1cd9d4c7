package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-chatpdf-backend/internal/domain"
)

func TestChatsStats_NoTable(t *testing.T) {
	db := newTestDB(t)
	if _, _, err := ChatsStats(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error due to missing chats table")
	}
}

func TestChatsStats_EmptyAndLatest(t *testing.T) {
	db := newTestDB(t, &domain.Chat{})
	ctx := context.Background()

	n, latest, err := ChatsStats(ctx, db, "u1")
	if err != nil || n != 0 || latest != nil {
		t.Fatalf("empty: n=%d latest=%v err=%v", n, latest, err)
	}

	t1 := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	seedChat(t, db, "a", "u1", t1)
	seedChat(t, db, "b", "u1", t1.Add(time.Hour))

	n, latest, err = ChatsStats(ctx, db, "u1")
	if err != nil || n != 2 || latest == nil || !latest.Equal(t1.Add(time.Hour)) {
		t.Fatalf("stats: n=%d latest=%v err=%v", n, latest, err)
	}
}

func TestMessagesStats_CountsPerChat(t *testing.T) {
	db := newTestDB(t, &domain.Chat{}, &domain.Message{})
	ctx := context.Background()
	seedChat(t, db, "c1", "u1", time.Now().UTC())
	seedChat(t, db, "c2", "u1", time.Now().UTC())

	for i := 0; i < 3; i++ {
		if _, err := CreateMessage(ctx, db, "c1", domain.RoleUser, "x"); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}
	n, latest, err := MessagesStats(ctx, db, "c1")
	if err != nil || n != 3 || latest == nil {
		t.Fatalf("c1 stats: n=%d latest=%v err=%v", n, latest, err)
	}
	n, latest, err = MessagesStats(ctx, db, "c2")
	if err != nil || n != 0 || latest != nil {
		t.Fatalf("c2 stats: n=%d latest=%v err=%v", n, latest, err)
	}
}
