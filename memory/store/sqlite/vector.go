package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/pragnyanramtha/longmem/core"
)

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// rebuildVectorIndex reloads the in-memory vector cache from the memories
// table. It is always run in full at Open, which trivially satisfies the
// "rebuild on divergence" invariant: there is never a stale cache to diverge
// from, since nothing persists across process restarts except the table
// itself.
func (s *Store) rebuildVectorIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM memories WHERE is_active = 1 AND embedding IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("%w: rebuild vector index: %v", core.ErrStore, err)
	}
	defer rows.Close()

	var entries []vecEntry
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return fmt.Errorf("%w: scan embedding: %v", core.ErrStore, err)
		}
		entries = append(entries, vecEntry{id: id, vec: decodeVector(blob)})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterate embeddings: %v", core.ErrStore, err)
	}

	s.mu.Lock()
	s.vectors = entries
	s.mu.Unlock()
	return nil
}

// SearchVector returns the k nearest active memories to queryEmbedding by
// ascending L2 distance. Ties are broken by id for determinism.
func (s *Store) SearchVector(ctx context.Context, queryEmbedding []float32, k int) ([]core.VectorMatch, error) {
	s.mu.Lock()
	entries := make([]vecEntry, len(s.vectors))
	copy(entries, s.vectors)
	s.mu.Unlock()

	matches := make([]core.VectorMatch, 0, len(entries))
	for _, e := range entries {
		matches = append(matches, core.VectorMatch{ID: e.id, Distance: l2Distance(queryEmbedding, e.vec)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}
