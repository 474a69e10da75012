// Package chromemidx is a secondary core.Store backed by chromem-go, a pure
// Go embedded vector database. It trades the sqlite store's durability and
// real FTS5 index for an in-memory backend fast enough to use in tests.
//
// chromem-go exposes no update-in-place or delete-by-id: the teacher's own
// chromem store documents this ("chromem-go doesn't have a direct Get by
// ID", "Delete not supported"). This store works within that limitation the
// same way: every field that can change after insertion (value, confidence,
// active flag, last-used turn) lives in an in-memory shadow map, and
// chromem-go holds only embeddings. An embedding update adds a new versioned
// document rather than mutating the old one; stale versions are filtered
// out at query time.
package chromemidx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"

	"github.com/pragnyanramtha/longmem/core"
)

const collectionName = "memories"

type entry struct {
	mem          core.Memory
	currentVecID string
}

// Store is the chromem-go backed core.Store.
type Store struct {
	db  *chromem.DB
	col *chromem.Collection
	log zerolog.Logger

	mu         sync.RWMutex
	memories   map[string]*entry // memory id -> entry
	vecToMemID map[string]string // chromem document id -> memory id
	docCount   int
	nextSeq    int

	turns   []core.TurnRecord
	profile map[string]core.ProfileEntry

	clock func() float64
}

// New creates an empty in-memory store. clock supplies created_at/updated_at
// timestamps; pass nil to leave them at zero (fine for order-insensitive
// tests).
func New(log zerolog.Logger, clock func() float64) (*Store, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create collection: %v", core.ErrStore, err)
	}
	return &Store{
		db:         db,
		col:        col,
		log:        log,
		memories:   make(map[string]*entry),
		vecToMemID: make(map[string]string),
		profile:    make(map[string]core.ProfileEntry),
		clock:      clock,
	}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Add(ctx context.Context, mem core.Memory, embedding []float32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.memories {
		if e.mem.IsActive && e.mem.Key == mem.Key {
			return "", core.ErrDuplicateKey
		}
	}

	s.nextSeq++
	if mem.ID == "" {
		mem.ID = fmt.Sprintf("mem-%d", s.nextSeq)
	}
	now := s.now()
	if mem.CreatedAt == 0 {
		mem.CreatedAt = now
	}
	mem.UpdatedAt = now
	if mem.Confidence == 0 {
		mem.Confidence = core.DefaultConfidence
	}
	mem.IsActive = true

	vecID := mem.ID
	if err := s.addVersion(ctx, vecID, mem, embedding); err != nil {
		return "", err
	}

	s.memories[mem.ID] = &entry{mem: mem, currentVecID: vecID}
	s.vecToMemID[vecID] = mem.ID
	s.log.Debug().Str("id", mem.ID).Str("key", mem.Key).Msg("chromemidx: memory added")
	return mem.ID, nil
}

func (s *Store) addVersion(ctx context.Context, vecID string, mem core.Memory, embedding []float32) error {
	doc := chromem.Document{ID: vecID, Content: mem.Value, Embedding: embedding, Metadata: map[string]string{"memory_id": mem.ID}}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: add document: %v", core.ErrStore, err)
	}
	s.docCount++
	return nil
}

func (s *Store) Update(ctx context.Context, id string, fields core.UpdateFields, newEmbedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.memories[id]
	if !ok {
		return core.ErrNotFound
	}
	if fields.Value != nil {
		e.mem.Value = *fields.Value
	}
	if fields.Confidence != nil {
		e.mem.Confidence = *fields.Confidence
	}
	e.mem.UpdatedAt = s.now()

	if newEmbedding != nil {
		s.nextSeq++
		newVecID := fmt.Sprintf("%s#%d", id, s.nextSeq)
		if err := s.addVersion(ctx, newVecID, e.mem, newEmbedding); err != nil {
			return err
		}
		delete(s.vecToMemID, e.currentVecID)
		e.currentVecID = newVecID
		s.vecToMemID[newVecID] = id
	}
	return nil
}

func (s *Store) Expire(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.memories[id]
	if !ok {
		return core.ErrNotFound
	}
	e.mem.IsActive = false
	return nil
}

func (s *Store) Touch(ctx context.Context, id string, turnID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.memories[id]
	if !ok {
		return core.ErrNotFound
	}
	if turnID > e.mem.LastUsedTurn {
		e.mem.LastUsedTurn = turnID
	}
	return nil
}

// SearchVector queries every embedding ever added (including superseded
// versions), then filters to the current, active version of each memory.
// Distance is cosine distance (1 - similarity), not L2; chromem-go stores
// unit vectors, for which both give the same order.
// Overfetching the whole collection keeps this correct without needing
// chromem-go's exact nResults-vs-collection-size contract, which the
// teacher's own store routes around with a shrinking-limit retry loop.
func (s *Store) SearchVector(ctx context.Context, queryEmbedding []float32, k int) ([]core.VectorMatch, error) {
	s.mu.RLock()
	count := s.docCount
	s.mu.RUnlock()
	if count == 0 {
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, queryEmbedding, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query embedding: %v", core.ErrStore, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]core.VectorMatch, 0, k)
	for _, r := range results {
		memID, ok := s.vecToMemID[r.ID]
		if !ok {
			continue
		}
		e := s.memories[memID]
		if e == nil || !e.mem.IsActive || e.currentVecID != r.ID {
			continue
		}
		matches = append(matches, core.VectorMatch{ID: memID, Distance: float64(1 - r.Similarity)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// SearchFTS approximates FTS5's BM25 ranking with a term-frequency score:
// the count of stopword-filtered query tokens found in the memory's
// key/value/category, ties broken lexicographically. This is intentionally
// weaker than the primary store's real FTS5 index; it exists so in-memory
// tests can exercise the hybrid retriever without sqlite.
func (s *Store) SearchFTS(ctx context.Context, queryText string, k int) ([]core.FTSMatch, error) {
	terms := tokenize(queryText)
	if len(terms) == 0 {
		return nil, nil
	}

	actives, err := s.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	var matches []core.FTSMatch
	for _, mem := range actives {
		haystack := strings.ToLower(mem.Key + " " + mem.Value + " " + mem.Category)
		var score float64
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, core.FTSMatch{ID: mem.ID, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// stopwords is the same closed list the sqlite store strips from FTS queries.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "to": true,
	"of": true, "in": true, "on": true, "at": true, "for": true, "with": true,
	"and": true, "or": true, "but": true, "my": true, "your": true, "i": true,
	"you": true, "it": true, "this": true, "that": true, "do": true,
	"does": true, "did": true, "can": true, "will": true, "would": true,
	"should": true, "about": true, "as": true, "by": true, "from": true,
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if f == "" || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (s *Store) GetActive(ctx context.Context) ([]core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Memory
	for _, e := range s.memories {
		if e.mem.IsActive {
			out = append(out, e.mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.memories[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	mem := e.mem
	return &mem, nil
}

func (s *Store) ActiveCount(ctx context.Context) (int, error) {
	actives, err := s.GetActive(ctx)
	if err != nil {
		return 0, err
	}
	return len(actives), nil
}

func (s *Store) LogTurn(ctx context.Context, role core.Role, content string, memoriesRetrieved []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turnID := len(s.turns) + 1
	s.turns = append(s.turns, core.TurnRecord{
		TurnID: turnID, Role: role, Content: content, Timestamp: s.now(), MemoriesRetrieved: memoriesRetrieved,
	})
	return turnID, nil
}

func (s *Store) LastTurnID(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return 0, nil
	}
	return s.turns[len(s.turns)-1].TurnID, nil
}

func (s *Store) GetTurnRange(ctx context.Context, from, to int) ([]core.TurnRecord, error) {
	if from > to {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.TurnRecord
	for _, t := range s.turns {
		if t.TurnID >= from && t.TurnID <= to {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ProfileUpsert(ctx context.Context, key, value string, turnID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile[key] = core.ProfileEntry{Key: key, Value: value, UpdatedAt: s.now(), SourceTurn: turnID}
	return nil
}

func (s *Store) ProfileSnapshot(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.profile))
	for k, v := range s.profile {
		out[k] = v.Value
	}
	return out, nil
}

func (s *Store) now() float64 {
	if s.clock != nil {
		return s.clock()
	}
	return 0
}
