package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pragnyanramtha/longmem/core"
)

// LogTurn appends an immutable turn record and returns its densely
// increasing turn_id, driven by AUTOINCREMENT so restarts never reuse an id.
func (s *Store) LogTurn(ctx context.Context, role core.Role, content string, memoriesRetrieved []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `INSERT INTO turns(role, content, timestamp, memories_retrieved) VALUES (?, ?, ?, ?)`,
		string(role), content, float64(time.Now().UnixNano())/1e9, strings.Join(memoriesRetrieved, ","))
	if err != nil {
		return 0, fmt.Errorf("%w: log turn: %v", core.ErrStore, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: turn id: %v", core.ErrStore, err)
	}
	return int(id), nil
}

// LastTurnID returns the highest logged turn_id, or 0 if the log is empty.
func (s *Store) LastTurnID(ctx context.Context) (int, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(turn_id) FROM turns`).Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: last turn id: %v", core.ErrStore, err)
	}
	if !id.Valid {
		return 0, nil
	}
	return int(id.Int64), nil
}

// GetTurnRange returns every logged turn with from <= turn_id <= to, in
// ascending turn_id order. from > to (an empty window) returns nil, nil.
func (s *Store) GetTurnRange(ctx context.Context, from, to int) ([]core.TurnRecord, error) {
	if from > to {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, role, content, timestamp, memories_retrieved FROM turns WHERE turn_id BETWEEN ? AND ? ORDER BY turn_id ASC`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: get turn range: %v", core.ErrStore, err)
	}
	defer rows.Close()

	var out []core.TurnRecord
	for rows.Next() {
		var t core.TurnRecord
		var role, retrieved string
		if err := rows.Scan(&t.TurnID, &role, &t.Content, &t.Timestamp, &retrieved); err != nil {
			return nil, fmt.Errorf("%w: scan turn: %v", core.ErrStore, err)
		}
		t.Role = core.Role(role)
		if retrieved != "" {
			t.MemoriesRetrieved = strings.Split(retrieved, ",")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: get turn range: %v", core.ErrStore, err)
	}
	return out, nil
}
