package persistence

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"eatup/internal/domain"
)

func TestGroupRepoUpsertAndList(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()
	repo := NewGroupRepo(db)

	groups := []domain.Group{
		{ID: "b2", Name: "brunch", MissedMessages: 2, MemberNames: []string{"Jane", "Sam"}},
		{ID: "a1", Name: "Avondeten"},
	}
	for _, g := range groups {
		if err := repo.Upsert(ctx, g); err != nil {
			t.Fatalf("upsert %s: %v", g.ID, err)
		}
	}

	got, err := repo.ListSortedByName(ctx)
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Avondeten" || got[1].Name != "brunch" {
		t.Fatalf("expected case-insensitive name order, got %+v", got)
	}
	if !reflect.DeepEqual(got[1].MemberNames, []string{"Jane", "Sam"}) {
		t.Fatalf("expected member names to round trip, got %+v", got[1].MemberNames)
	}
	if got[1].MissedMessages != 2 {
		t.Fatalf("expected missed counter 2, got %d", got[1].MissedMessages)
	}
}

func TestGroupRepoUpsertNeverLowersMissedCounter(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()
	repo := NewGroupRepo(db)

	if err := repo.Upsert(ctx, domain.Group{ID: "a1", Name: "Avondeten", MissedMessages: 3}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// A stale backend snapshot with a lower counter must not clear badges.
	if err := repo.Upsert(ctx, domain.Group{ID: "a1", Name: "Avondeten", MissedMessages: 0}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.ListSortedByName(ctx)
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if got[0].MissedMessages != 3 {
		t.Fatalf("expected counter to stay at 3, got %d", got[0].MissedMessages)
	}

	if err := repo.ResetMissed(ctx, "a1"); err != nil {
		t.Fatalf("reset missed: %v", err)
	}
	got, err = repo.ListSortedByName(ctx)
	if err != nil {
		t.Fatalf("list groups after reset: %v", err)
	}
	if got[0].MissedMessages != 0 {
		t.Fatalf("expected explicit reset to clear counter, got %d", got[0].MissedMessages)
	}
}
