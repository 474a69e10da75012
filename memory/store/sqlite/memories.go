package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pragnyanramtha/longmem/core"
)

// Add inserts mem as a new active memory, indexing it in FTS and the
// in-memory vector cache within the same commit. Returns core.ErrDuplicateKey
// if an active row with the same key already exists.
func (s *Store) Add(ctx context.Context, mem core.Memory, embedding []float32) (string, error) {
	if embedding != nil && len(embedding) != s.dim {
		return "", fmt.Errorf("%w: embedding has %d dimensions, want %d", core.ErrStore, len(embedding), s.dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: begin add: %v", core.ErrStore, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE key = ? AND is_active = 1 LIMIT 1`, mem.Key).Scan(&exists)
	if err == nil {
		return "", core.ErrDuplicateKey
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("%w: check duplicate key: %v", core.ErrStore, err)
	}

	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	now := float64(time.Now().UnixNano()) / 1e9
	if mem.CreatedAt == 0 {
		mem.CreatedAt = now
	}
	mem.UpdatedAt = now
	if mem.Confidence == 0 {
		mem.Confidence = core.DefaultConfidence
	}
	mem.IsActive = true

	_, err = tx.ExecContext(ctx, `INSERT INTO memories
		(id, type, category, key, value, source_turn, last_used_turn, confidence, created_at, updated_at, is_active, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		mem.ID, string(mem.Type), mem.Category, mem.Key, mem.Value, mem.SourceTurn, mem.LastUsedTurn,
		mem.Confidence, mem.CreatedAt, mem.UpdatedAt, encodeVector(embedding))
	if err != nil {
		return "", fmt.Errorf("%w: insert memory: %v", core.ErrStore, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO memories_fts(id, key, value, category) VALUES (?, ?, ?, ?)`,
		mem.ID, mem.Key, mem.Value, mem.Category); err != nil {
		return "", fmt.Errorf("%w: insert fts: %v", core.ErrStore, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: commit add: %v", core.ErrStore, err)
	}

	s.vectors = append(s.vectors, vecEntry{id: mem.ID, vec: embedding})
	return mem.ID, nil
}

// Update mutates value and/or confidence on an existing memory and, when
// newEmbedding is non-nil, its vector. The FTS row and vector cache entry
// are refreshed in step.
func (s *Store) Update(ctx context.Context, id string, fields core.UpdateFields, newEmbedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin update: %v", core.ErrStore, err)
	}
	defer tx.Rollback()

	var key, category string
	var value string
	var confidence float64
	err = tx.QueryRowContext(ctx, `SELECT key, category, value, confidence FROM memories WHERE id = ?`, id).
		Scan(&key, &category, &value, &confidence)
	if err == sql.ErrNoRows {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: read memory for update: %v", core.ErrStore, err)
	}

	if fields.Value != nil {
		value = *fields.Value
	}
	if fields.Confidence != nil {
		confidence = *fields.Confidence
	}
	now := float64(time.Now().UnixNano()) / 1e9

	if newEmbedding != nil {
		_, err = tx.ExecContext(ctx, `UPDATE memories SET value = ?, confidence = ?, updated_at = ?, embedding = ? WHERE id = ?`,
			value, confidence, now, encodeVector(newEmbedding), id)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE memories SET value = ?, confidence = ?, updated_at = ? WHERE id = ?`,
			value, confidence, now, id)
	}
	if err != nil {
		return fmt.Errorf("%w: update memory: %v", core.ErrStore, err)
	}

	if fields.Value != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE id = ?`, id); err != nil {
			return fmt.Errorf("%w: delete fts row: %v", core.ErrStore, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO memories_fts(id, key, value, category) VALUES (?, ?, ?, ?)`,
			id, key, value, category); err != nil {
			return fmt.Errorf("%w: reinsert fts row: %v", core.ErrStore, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit update: %v", core.ErrStore, err)
	}

	if newEmbedding != nil {
		for i := range s.vectors {
			if s.vectors[i].id == id {
				s.vectors[i].vec = newEmbedding
				break
			}
		}
	}
	return nil
}

// Expire soft-deletes a memory and removes it from the vector and FTS
// indexes, leaving the row itself intact for audit/history purposes.
func (s *Store) Expire(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin expire: %v", core.ErrStore, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE memories SET is_active = 0 WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return fmt.Errorf("%w: expire memory: %v", core.ErrStore, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete fts row: %v", core.ErrStore, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit expire: %v", core.ErrStore, err)
	}

	filtered := s.vectors[:0]
	for _, e := range s.vectors {
		if e.id != id {
			filtered = append(filtered, e)
		}
	}
	s.vectors = filtered
	return nil
}

// Touch advances last_used_turn to max(current, turnID).
func (s *Store) Touch(ctx context.Context, id string, turnID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE memories SET last_used_turn = ? WHERE id = ? AND last_used_turn < ?`,
		turnID, id, turnID)
	if err != nil {
		return fmt.Errorf("%w: touch memory: %v", core.ErrStore, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
			return core.ErrNotFound
		}
	}
	return nil
}

// SearchFTS returns the k best lexical matches among active memories. The
// query is stopword-filtered first; if nothing survives, the result is
// empty rather than an error.
func (s *Store) SearchFTS(ctx context.Context, queryText string, k int) ([]core.FTSMatch, error) {
	expr := ftsMatchExpr(queryText)
	if expr == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, bm25(memories_fts) AS rank
		FROM memories_fts f
		JOIN memories m ON m.id = f.id AND m.is_active = 1
		WHERE memories_fts MATCH ?
		ORDER BY rank ASC, f.id ASC
		LIMIT ?`, expr, k)
	if err != nil {
		return nil, fmt.Errorf("%w: search fts: %v", core.ErrStore, err)
	}
	defer rows.Close()

	var matches []core.FTSMatch
	for rows.Next() {
		var id string
		var bm25 float64
		if err := rows.Scan(&id, &bm25); err != nil {
			return nil, fmt.Errorf("%w: scan fts match: %v", core.ErrStore, err)
		}
		// bm25() in sqlite's FTS5 returns lower-is-better; negate so the
		// caller's higher-is-better convention holds uniformly.
		matches = append(matches, core.FTSMatch{ID: id, Score: -bm25})
	}
	return matches, rows.Err()
}

// GetActive returns every active memory.
func (s *Store) GetActive(ctx context.Context) ([]core.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, type, category, key, value, source_turn, last_used_turn, confidence, created_at, updated_at, is_active
		FROM memories WHERE is_active = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: get active: %v", core.ErrStore, err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// GetByID returns a memory by id, including inactive ones.
func (s *Store) GetByID(ctx context.Context, id string) (*core.Memory, error) {
	var m core.Memory
	var typ string
	err := s.db.QueryRowContext(ctx, `SELECT id, type, category, key, value, source_turn, last_used_turn, confidence, created_at, updated_at, is_active
		FROM memories WHERE id = ?`, id).
		Scan(&m.ID, &typ, &m.Category, &m.Key, &m.Value, &m.SourceTurn, &m.LastUsedTurn, &m.Confidence, &m.CreatedAt, &m.UpdatedAt, &m.IsActive)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get by id: %v", core.ErrStore, err)
	}
	m.Type = core.MemoryType(typ)
	return &m, nil
}

// ActiveCount returns the number of active memories.
func (s *Store) ActiveCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE is_active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: active count: %v", core.ErrStore, err)
	}
	return n, nil
}

func scanMemories(rows *sql.Rows) ([]core.Memory, error) {
	var out []core.Memory
	for rows.Next() {
		var m core.Memory
		var typ string
		if err := rows.Scan(&m.ID, &typ, &m.Category, &m.Key, &m.Value, &m.SourceTurn, &m.LastUsedTurn, &m.Confidence, &m.CreatedAt, &m.UpdatedAt, &m.IsActive); err != nil {
			return nil, fmt.Errorf("%w: scan memory: %v", core.ErrStore, err)
		}
		m.Type = core.MemoryType(typ)
		out = append(out, m)
	}
	return out, rows.Err()
}
