package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"eatup/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestMessageRepoInsertAndList(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewMessageRepo(db)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	msgs := []domain.Message{
		{ID: "2", GroupID: "a1", Content: "later", SentAt: base.Add(time.Minute), Author: domain.Author{ID: "jane-id", Email: "jane@example.com"}},
		{ID: "1", GroupID: "a1", Content: "earlier", SentAt: base, Author: domain.Author{Email: "sam@example.com"}, Edited: true},
		{ID: "9", GroupID: "other", Content: "elsewhere", SentAt: base},
	}
	for _, m := range msgs {
		if err := repo.InsertConfirmed(ctx, m); err != nil {
			t.Fatalf("insert %s: %v", m.ID, err)
		}
	}

	got, err := repo.ListRecentByGroup(ctx, "a1", 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages for a1, got %d", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("expected chronological order, got %s then %s", got[0].ID, got[1].ID)
	}
	if !got[0].Edited {
		t.Fatalf("expected edited flag to round trip")
	}
	if got[1].Author.ID != "jane-id" || got[1].Author.Email != "jane@example.com" {
		t.Fatalf("expected author to round trip, got %+v", got[1].Author)
	}
	if !got[0].SentAt.Equal(base) {
		t.Fatalf("expected timestamp to round trip, got %v", got[0].SentAt)
	}
}

func TestMessageRepoSkipsPendingEntries(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewMessageRepo(db)

	if err := repo.InsertConfirmed(ctx, domain.Message{
		ID:      domain.PendingIDPrefix + "abc",
		GroupID: "a1",
		Content: "not yet confirmed",
		Pending: true,
	}); err != nil {
		t.Fatalf("insert pending: %v", err)
	}

	got, err := repo.ListRecentByGroup(ctx, "a1", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("pending entries must never be cached, got %d rows", len(got))
	}
}

func TestMessageRepoInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewMessageRepo(db)

	msg := domain.Message{ID: "42", GroupID: "a1", Content: "hello", SentAt: time.Now()}
	if err := repo.InsertConfirmed(ctx, msg); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	msg.Content = "hello (edited)"
	msg.Edited = true
	if err := repo.InsertConfirmed(ctx, msg); err != nil {
		t.Fatalf("redelivered insert: %v", err)
	}

	got, err := repo.ListRecentByGroup(ctx, "a1", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one row after redelivery, got %d", len(got))
	}
	if got[0].Content != "hello (edited)" || !got[0].Edited {
		t.Fatalf("expected latest content to win, got %+v", got[0])
	}
}

func TestMessageRepoReplaceGroupSnapshot(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewMessageRepo(db)

	if err := repo.InsertConfirmed(ctx, domain.Message{ID: "stale", GroupID: "a1", Content: "old", SentAt: time.Now()}); err != nil {
		t.Fatalf("seed stale row: %v", err)
	}

	snapshot := []domain.Message{
		{ID: "1", GroupID: "a1", Content: "fresh", SentAt: time.Now()},
		{ID: domain.PendingIDPrefix + "x", GroupID: "a1", Content: "skip me", Pending: true},
	}
	if err := repo.ReplaceGroupSnapshot(ctx, "a1", snapshot); err != nil {
		t.Fatalf("replace snapshot: %v", err)
	}

	got, err := repo.ListRecentByGroup(ctx, "a1", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("expected only the snapshot row, got %+v", got)
	}
}

func TestClearDatabase(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	msgRepo := NewMessageRepo(db)
	groupRepo := NewGroupRepo(db)

	if err := groupRepo.Upsert(ctx, domain.Group{ID: "a1", Name: "Avondeten"}); err != nil {
		t.Fatalf("seed group: %v", err)
	}
	if err := msgRepo.InsertConfirmed(ctx, domain.Message{ID: "1", GroupID: "a1", Content: "hoi"}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	if err := ClearDatabase(ctx, db); err != nil {
		t.Fatalf("clear database: %v", err)
	}

	groups, err := groupRepo.ListSortedByName(ctx)
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected no groups after clear, got %d", len(groups))
	}
	msgs, err := msgRepo.ListRecentByGroup(ctx, "a1", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages after clear, got %d", len(msgs))
	}
}
