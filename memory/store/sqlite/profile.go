package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/pragnyanramtha/longmem/core"
)

// ProfileUpsert sets a profile key's value, recording the turn that produced
// it. Later writes to the same key always win; the profile is a projection,
// not a history.
func (s *Store) ProfileUpsert(ctx context.Context, key, value string, turnID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO profile(key, value, updated_at, source_turn) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at, source_turn = excluded.source_turn`,
		key, value, float64(time.Now().UnixNano())/1e9, turnID)
	if err != nil {
		return fmt.Errorf("%w: profile upsert: %v", core.ErrStore, err)
	}
	return nil
}

// ProfileSnapshot returns the full profile as a key/value map.
func (s *Store) ProfileSnapshot(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM profile`)
	if err != nil {
		return nil, fmt.Errorf("%w: profile snapshot: %v", core.ErrStore, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: scan profile row: %v", core.ErrStore, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
