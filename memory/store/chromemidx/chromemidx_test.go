package chromemidx

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pragnyanramtha/longmem/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	var tick float64
	clock := func() float64 {
		tick++
		return tick
	}
	s, err := New(zerolog.Nop(), clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAddDuplicateKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mem := core.Memory{Type: core.MemoryTypeFact, Category: "work", Key: "employer", Value: "Acme"}
	if _, err := s.Add(ctx, mem, []float32{1, 0, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(ctx, mem, []float32{0, 1, 0}); err != core.ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestSearchVectorExcludesExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Add(ctx, core.Memory{Type: core.MemoryTypeFact, Key: "k1", Value: "v1"}, []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(ctx, core.Memory{Type: core.MemoryTypeFact, Key: "k2", Value: "v2"}, []float32{0, 1, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Expire(ctx, id1); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	matches, err := s.SearchVector(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("SearchVector: %v", err)
	}
	for _, m := range matches {
		if m.ID == id1 {
			t.Fatalf("expired memory returned by SearchVector")
		}
	}
}

func TestUpdateEmbeddingSupersedesOldVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, core.Memory{Type: core.MemoryTypeFact, Key: "k1", Value: "v1"}, []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	newVal := "v1-updated"
	if err := s.Update(ctx, id, core.UpdateFields{Value: &newVal}, []float32{0, 0, 1}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Value != newVal {
		t.Fatalf("expected updated value, got %q", got.Value)
	}

	matches, err := s.SearchVector(ctx, []float32{0, 0, 1}, 10)
	if err != nil {
		t.Fatalf("SearchVector: %v", err)
	}
	count := 0
	for _, m := range matches {
		if m.ID == id {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one current-version hit for %s, got %d", id, count)
	}
}

func TestSearchFTSRanksTermOverlap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, core.Memory{Type: core.MemoryTypeFact, Key: "job", Value: "works at Acme as an engineer"}, []float32{1, 0, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(ctx, core.Memory{Type: core.MemoryTypeFact, Key: "pet", Value: "has a dog named Rex"}, []float32{0, 1, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	matches, err := s.SearchFTS(ctx, "Acme engineer", 10)
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(matches) == 0 || matches[0].Score <= 0 {
		t.Fatalf("expected a positive-score match for the job memory, got %+v", matches)
	}
}

func TestTouchAdvancesLastUsedTurn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, core.Memory{Type: core.MemoryTypeFact, Key: "k1", Value: "v1"}, []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Touch(ctx, id, 5); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := s.Touch(ctx, id, 2); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.LastUsedTurn != 5 {
		t.Fatalf("expected last_used_turn to stay at max(5,2)=5, got %d", got.LastUsedTurn)
	}
}

func TestProfileAndTurnLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.LogTurn(ctx, core.RoleUser, "hi", nil)
	if err != nil {
		t.Fatalf("LogTurn: %v", err)
	}
	id2, err := s.LogTurn(ctx, core.RoleAssistant, "hello", []string{"m1"})
	if err != nil {
		t.Fatalf("LogTurn: %v", err)
	}
	if id2 != id1+1 {
		t.Fatalf("expected monotone turn ids, got %d then %d", id1, id2)
	}

	if err := s.ProfileUpsert(ctx, "name", "Alex", id1); err != nil {
		t.Fatalf("ProfileUpsert: %v", err)
	}
	snap, err := s.ProfileSnapshot(ctx)
	if err != nil {
		t.Fatalf("ProfileSnapshot: %v", err)
	}
	if snap["name"] != "Alex" {
		t.Fatalf("unexpected profile snapshot: %+v", snap)
	}
}
