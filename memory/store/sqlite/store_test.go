package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pragnyanramtha/longmem/core"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mem.db")
	s, err := Open(context.Background(), path, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func TestAddAndGetByID(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()
	ctx := context.Background()

	mem := core.Memory{Type: core.MemoryTypeFact, Category: "work", Key: "employer", Value: "Acme", SourceTurn: 1}
	id, err := s.Add(ctx, mem, []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Value != "Acme" || !got.IsActive {
		t.Fatalf("unexpected memory: %+v", got)
	}
}

func TestAddDuplicateKeyRejected(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()
	ctx := context.Background()

	mem := core.Memory{Type: core.MemoryTypeFact, Category: "work", Key: "employer", Value: "Acme", SourceTurn: 1}
	if _, err := s.Add(ctx, mem, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if _, err := s.Add(ctx, mem, []float32{0, 1, 0, 0}); err != core.ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestExpireRemovesFromIndexes(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()
	ctx := context.Background()

	mem := core.Memory{Type: core.MemoryTypeFact, Category: "work", Key: "employer", Value: "Acme", SourceTurn: 1}
	id, err := s.Add(ctx, mem, []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Expire(ctx, id); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	vmatches, err := s.SearchVector(ctx, []float32{1, 0, 0, 0}, 10)
	if err != nil {
		t.Fatalf("SearchVector: %v", err)
	}
	for _, m := range vmatches {
		if m.ID == id {
			t.Fatalf("expired memory still in vector index")
		}
	}

	fmatches, err := s.SearchFTS(ctx, "Acme", 10)
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	for _, m := range fmatches {
		if m.ID == id {
			t.Fatalf("expired memory still in fts index")
		}
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID after expire: %v", err)
	}
	if got.IsActive {
		t.Fatalf("expired memory still marked active")
	}
}

func TestSearchFTSStopwordsOnly(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()
	ctx := context.Background()

	matches, err := s.SearchFTS(ctx, "the a of", 10)
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches for stopword-only query, got %d", len(matches))
	}
}

func TestTurnIDsMonotone(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()
	ctx := context.Background()

	id1, err := s.LogTurn(ctx, core.RoleUser, "hello", nil)
	if err != nil {
		t.Fatalf("LogTurn: %v", err)
	}
	id2, err := s.LogTurn(ctx, core.RoleAssistant, "hi", []string{"m1"})
	if err != nil {
		t.Fatalf("LogTurn: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("expected increasing turn ids, got %d then %d", id1, id2)
	}

	last, err := s.LastTurnID(ctx)
	if err != nil {
		t.Fatalf("LastTurnID: %v", err)
	}
	if last != id2 {
		t.Fatalf("expected LastTurnID == %d, got %d", id2, last)
	}
}

func TestRestartContinuity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mem.db")
	ctx := context.Background()

	s1, err := Open(ctx, path, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mem := core.Memory{Type: core.MemoryTypeFact, Category: "work", Key: "employer", Value: "Acme", SourceTurn: 1}
	id, err := s1.Add(ctx, mem, []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s1.LogTurn(ctx, core.RoleUser, "hello", nil); err != nil {
		t.Fatalf("LogTurn: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(ctx, path, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID after reopen: %v", err)
	}
	if got.Value != "Acme" {
		t.Fatalf("value lost across restart: %+v", got)
	}

	matches, err := s2.SearchVector(ctx, []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("SearchVector after reopen: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != id {
		t.Fatalf("vector index not rebuilt after restart: %+v", matches)
	}

	last, err := s2.LastTurnID(ctx)
	if err != nil {
		t.Fatalf("LastTurnID after reopen: %v", err)
	}
	if last != 1 {
		t.Fatalf("expected last turn id 1 after reopen, got %d", last)
	}
}

func TestSecondOpenRejectedWhileLocked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mem.db")
	ctx := context.Background()

	s1, err := Open(ctx, path, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s1.Close()

	if _, err := Open(ctx, path, 4, zerolog.Nop()); err == nil {
		t.Fatalf("expected second Open to fail while lock is held")
	}
}

func TestOpenRepairsDivergedFTSIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mem.db")
	ctx := context.Background()

	s1, err := Open(ctx, path, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mem := core.Memory{Type: core.MemoryTypeFact, Category: "work", Key: "employer", Value: "Acme", SourceTurn: 1}
	id, err := s1.Add(ctx, mem, []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Simulate external corruption: delete the FTS row but leave the primary
	// row active, so the two indexes disagree on restart.
	if _, err := s1.db.ExecContext(ctx, `DELETE FROM memories_fts WHERE id = ?`, id); err != nil {
		t.Fatalf("corrupt fts: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(ctx, path, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	matches, err := s2.SearchFTS(ctx, "Acme", 10)
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != id {
		t.Fatalf("expected fts index repaired on reopen, got %+v", matches)
	}
}

func TestProfileUpsert(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()
	ctx := context.Background()

	if err := s.ProfileUpsert(ctx, "name", "Alex", 1); err != nil {
		t.Fatalf("ProfileUpsert: %v", err)
	}
	if err := s.ProfileUpsert(ctx, "name", "Alexandra", 2); err != nil {
		t.Fatalf("ProfileUpsert: %v", err)
	}

	snap, err := s.ProfileSnapshot(ctx)
	if err != nil {
		t.Fatalf("ProfileSnapshot: %v", err)
	}
	if snap["name"] != "Alexandra" {
		t.Fatalf("expected latest value to win, got %q", snap["name"])
	}
}
