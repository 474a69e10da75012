package core

import "context"

// Embedder converts text to a fixed-dimension vector. Implementations:
// embedder/mock (deterministic, for tests) and embedder/onnx (all-MiniLM-L6-v2
// via ONNX Runtime). Embed must be deterministic for a given model so
// restart-continuity and retrieval tests can assert on exact results.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// ChatMessage is one message in a conversation, as sent to the LLM's chat
// capability.
type ChatMessage struct {
	Role    Role
	Content string
}

// ChatClient is the `chat(messages) -> assistant_text` capability. Provider
// wiring (model name, JSON-mode hints, retries) lives behind this interface
// in llmclient, never in core.
type ChatClient interface {
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
}

// JSONClient is the `json_complete(prompt) -> structured_object` capability
// used by the distiller. It returns the raw JSON text; parsing and repair
// are the distiller's responsibility.
type JSONClient interface {
	JSONComplete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// VectorMatch is one hit from Store.SearchVector, ordered by ascending
// distance (best match first).
type VectorMatch struct {
	ID       string
	Distance float64
}

// FTSMatch is one hit from Store.SearchFTS, ordered by descending score
// (best match first).
type FTSMatch struct {
	ID    string
	Score float64
}

// UpdateFields carries the optional mutations for Store.Update. A nil field
// leaves the corresponding column unchanged.
type UpdateFields struct {
	Value      *string
	Confidence *float64
}

// Store is the durable memory store: a relational table plus cooperating
// vector-similarity and full-text indexes. Every method that touches more
// than one index must be atomic: either all indexes reflect the change, or
// none do.
type Store interface {
	// Add inserts a new active memory with its embedding and FTS tokens in
	// one transaction. Returns core.ErrDuplicateKey if an active row with
	// the same Key already exists.
	Add(ctx context.Context, mem Memory, embedding []float32) (string, error)

	// Update mutates an existing memory's value/confidence and, when
	// newEmbedding is non-nil, its vector. updated_at is refreshed.
	Update(ctx context.Context, id string, fields UpdateFields, newEmbedding []float32) error

	// Expire soft-deletes a memory: is_active is cleared and the row is
	// removed from the vector and FTS indexes. The row itself is retained.
	Expire(ctx context.Context, id string) error

	// Touch sets last_used_turn to max(current, turnID).
	Touch(ctx context.Context, id string, turnID int) error

	// SearchVector returns the k nearest active memories to queryEmbedding
	// by ascending L2 distance.
	SearchVector(ctx context.Context, queryEmbedding []float32, k int) ([]VectorMatch, error)

	// SearchFTS returns the k best lexical matches among active memories by
	// descending BM25-style score. Stopwords are removed from queryText
	// before matching.
	SearchFTS(ctx context.Context, queryText string, k int) ([]FTSMatch, error)

	// GetActive returns every active memory. Callers should prefer the
	// indexed search methods; this exists for distillation and inspection.
	GetActive(ctx context.Context) ([]Memory, error)

	// GetByID returns a memory by id, including inactive ones, or
	// core.ErrNotFound.
	GetByID(ctx context.Context, id string) (*Memory, error)

	// ActiveCount returns the number of active memories.
	ActiveCount(ctx context.Context) (int, error)

	// LogTurn appends an immutable turn record and returns its new,
	// densely-increasing turn_id.
	LogTurn(ctx context.Context, role Role, content string, memoriesRetrieved []string) (int, error)

	// LastTurnID returns the highest logged turn_id, or 0 if none.
	LastTurnID(ctx context.Context) (int, error)

	// GetTurnRange returns every logged turn with from <= turn_id <= to, in
	// ascending turn_id order. Used to gather the flush window.
	GetTurnRange(ctx context.Context, from, to int) ([]TurnRecord, error)

	// ProfileUpsert sets a profile key's value, recording the turn that
	// produced it.
	ProfileUpsert(ctx context.Context, key, value string, turnID int) error

	// ProfileSnapshot returns the full profile as a key/value map.
	ProfileSnapshot(ctx context.Context) (map[string]string, error)

	// Close releases the underlying database handle and any file locks.
	Close() error
}
