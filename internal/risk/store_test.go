package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/matiasvillaverde/trust-core/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open("")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	seedAccount(t, db, "acct-1")
	return NewStore(db)
}

func TestGetLevelDefaultsToThree(t *testing.T) {
	s := newTestStore(t)
	ls, err := s.GetLevel(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetLevel: %v", err)
	}
	if ls.CurrentLevel != Level3 {
		t.Fatalf("default level=%d, expected Level3", ls.CurrentLevel)
	}
}

func TestSetLevelRejectsInvalidLevel(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.SetLevel(context.Background(), "acct-1", Level(9), "bad", "manual_override")
	if !errors.Is(err, ErrInvalidLevel) {
		t.Fatalf("expected ErrInvalidLevel, got %v", err)
	}
}

func TestSetLevelPersistsAndRecordsHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ls, change, err := s.SetLevel(ctx, "acct-1", Level4, "strong win rate", "performance_upgrade")
	if err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if ls.CurrentLevel != Level4 {
		t.Fatalf("current level=%d, expected Level4", ls.CurrentLevel)
	}
	if change.OldLevel != Level3 || change.NewLevel != Level4 {
		t.Fatalf("unexpected change record: %+v", change)
	}

	persisted, err := s.GetLevel(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetLevel: %v", err)
	}
	if persisted.CurrentLevel != Level4 {
		t.Fatalf("persisted level=%d, expected Level4", persisted.CurrentLevel)
	}

	history, err := s.History(ctx, "acct-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].NewLevel != Level4 {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestCreateDeactivateListRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r, err := s.CreateRule(ctx, Rule{AccountID: "acct-1", Name: RuleRiskPerTrade, Percentage: 1, Level: LevelError, Active: true})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected CreateRule to default the ID")
	}

	active, err := s.ListActive(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active rule, got %d", len(active))
	}

	if err := s.Deactivate(ctx, r.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	active, err = s.ListActive(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListActive after deactivate: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected 0 active rules after deactivate, got %d", len(active))
	}

	all, err := s.ListAll(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 rule total, got %d", len(all))
	}
}
