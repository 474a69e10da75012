package sqlite

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pragnyanramtha/longmem/core"
)

// verifyFTSIntegrity bounds the one-writer/many-reader startup divergence
// check between the memories table and its memories_fts side index: Add,
// Update, and Expire all keep the two in sync inside one transaction, so the
// active-row count and the FTS row count should always agree. A mismatch
// means the process crashed mid-transaction or the file was edited outside
// the store, and is repaired by rebuilding memories_fts from memories.
func (s *Store) verifyFTSIntegrity(ctx context.Context) error {
	var activeCount, ftsCount int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		row := s.db.QueryRowContext(gctx, `SELECT COUNT(*) FROM memories WHERE is_active = 1`)
		if err := row.Scan(&activeCount); err != nil {
			return fmt.Errorf("%w: count active memories: %v", core.ErrStore, err)
		}
		return nil
	})
	g.Go(func() error {
		row := s.db.QueryRowContext(gctx, `SELECT COUNT(*) FROM memories_fts`)
		if err := row.Scan(&ftsCount); err != nil {
			return fmt.Errorf("%w: count fts rows: %v", core.ErrStore, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if activeCount == ftsCount {
		return nil
	}

	s.log.Warn().Int("active_memories", activeCount).Int("fts_rows", ftsCount).
		Msg("store: memories_fts diverged from memories, rebuilding")
	return s.rebuildFTSIndex(ctx)
}

// rebuildFTSIndex drops every memories_fts row and reinserts one per active
// memory, inside a single transaction so concurrent readers never see a
// partially-rebuilt index.
func (s *Store) rebuildFTSIndex(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin fts rebuild: %v", core.ErrStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts`); err != nil {
		return fmt.Errorf("%w: clear fts: %v", core.ErrStore, err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, key, value, category FROM memories WHERE is_active = 1`)
	if err != nil {
		return fmt.Errorf("%w: read active memories: %v", core.ErrStore, err)
	}
	type ftsRow struct{ id, key, value, category string }
	var toInsert []ftsRow
	for rows.Next() {
		var r ftsRow
		if err := rows.Scan(&r.id, &r.key, &r.value, &r.category); err != nil {
			rows.Close()
			return fmt.Errorf("%w: scan active memory: %v", core.ErrStore, err)
		}
		toInsert = append(toInsert, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("%w: iterate active memories: %v", core.ErrStore, err)
	}
	rows.Close()

	for _, r := range toInsert {
		if _, err := tx.ExecContext(ctx, `INSERT INTO memories_fts(id, key, value, category) VALUES (?, ?, ?, ?)`,
			r.id, r.key, r.value, r.category); err != nil {
			return fmt.Errorf("%w: reinsert fts row %s: %v", core.ErrStore, r.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit fts rebuild: %v", core.ErrStore, err)
	}
	s.log.Info().Int("rows", len(toInsert)).Msg("store: memories_fts rebuilt")
	return nil
}
