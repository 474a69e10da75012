// Package sqlite is the primary core.Store implementation: a relational
// memories table, a real FTS5 lexical index, and an in-memory vector index
// rebuilt from the relational table at startup, all mutated under a single
// file lock and a single *sql.Tx per operation.
//
// Schema and trigger layout follow the store_init.go pattern used across the
// retrieved pack's sqlite-backed stores: WAL mode, a meta table carrying a
// schema version, and an FTS5 side table kept in sync by explicit statements
// rather than generated triggers, since expiry needs to remove FTS rows
// without deleting the primary row.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/pragnyanramtha/longmem/core"
)

const schemaVersion = 2

// Store is the sqlite-backed core.Store. All exported methods are safe for
// concurrent use; every write and every access to the vector index is
// serialized by mu, matching the engine's single-writer conversation model.
// Plain reads go straight to the single pooled connection without taking mu.
type Store struct {
	db     *sql.DB
	log    zerolog.Logger
	dim    int
	path   string
	lockFh *os.File

	mu      sync.Mutex
	vectors []vecEntry
}

type vecEntry struct {
	id  string
	vec []float32
}

// Open creates or opens the sqlite database at path, running migrations and
// rebuilding the in-memory vector index from the memories table. dim is the
// embedding dimensionality; non-nil vectors of any other length are rejected
// by Add.
func Open(ctx context.Context, path string, dim int, log zerolog.Logger) (*Store, error) {
	lockFh, err := acquireLock(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStore, err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		lockFh.Close()
		releaseLock(path)
		return nil, fmt.Errorf("%w: open %s: %v", core.ErrStore, path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log, dim: dim, path: path, lockFh: lockFh}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		lockFh.Close()
		releaseLock(path)
		return nil, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.rebuildVectorIndex(gctx) })
	g.Go(func() error { return s.verifyFTSIntegrity(gctx) })
	if err := g.Wait(); err != nil {
		db.Close()
		lockFh.Close()
		releaseLock(path)
		return nil, err
	}

	log.Info().Str("path", path).Int("dim", dim).Int("active_vectors", len(s.vectors)).Msg("store opened")
	return s, nil
}

// Close releases the database handle and the advisory file lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Close()
	s.lockFh.Close()
	releaseLock(s.path)
	return err
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin migration: %v", core.ErrStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("%w: create meta: %v", core.ErrStore, err)
	}

	var current int
	row := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`)
	var raw string
	if err := row.Scan(&raw); err == sql.ErrNoRows {
		current = 0
	} else if err != nil {
		return fmt.Errorf("%w: read schema_version: %v", core.ErrStore, err)
	} else {
		fmt.Sscanf(raw, "%d", &current)
	}

	for v := current + 1; v <= schemaVersion; v++ {
		if err := migrations[v](ctx, tx); err != nil {
			return fmt.Errorf("%w: migration %d: %v", core.ErrStore, v, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprint(schemaVersion)); err != nil {
		return fmt.Errorf("%w: write schema_version: %v", core.ErrStore, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit migration: %v", core.ErrStore, err)
	}
	return nil
}

// migrations is indexed by target schema version. Version 1 establishes the
// base schema; version 2 is a no-op on a fresh database and exists only to
// demonstrate the forward-migration shape (adding last_used_turn with a
// default, for a hypothetical pre-turn-tracking deployment).
var migrations = map[int]func(context.Context, *sql.Tx) error{
	1: migrateV1,
	2: migrateV2,
}

func migrateV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id              TEXT PRIMARY KEY,
			type            TEXT NOT NULL,
			category        TEXT NOT NULL,
			key             TEXT NOT NULL,
			value           TEXT NOT NULL,
			source_turn     INTEGER NOT NULL,
			last_used_turn  INTEGER NOT NULL DEFAULT 0,
			confidence      REAL NOT NULL,
			created_at      REAL NOT NULL,
			updated_at      REAL NOT NULL,
			is_active       INTEGER NOT NULL DEFAULT 1,
			embedding       BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_key_active ON memories(key, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_active ON memories(is_active)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(id UNINDEXED, key, value, category)`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id             INTEGER PRIMARY KEY AUTOINCREMENT,
			role                TEXT NOT NULL,
			content             TEXT NOT NULL,
			timestamp           REAL NOT NULL,
			memories_retrieved  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS profile (
			key         TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			updated_at  REAL NOT NULL,
			source_turn INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateV2(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `UPDATE memories SET last_used_turn = 0 WHERE last_used_turn IS NULL`)
	return err
}
