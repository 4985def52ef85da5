// Package store persists snapshots, predictions, and recipient state in
// SQLite. All operations are serialized under one mutex; per-key upserts are
// the unit of consistency.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database used by the pipeline.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// Open opens (or creates) the SQLite database and runs migrations. The
// parent directory is created if missing so a default relative path works on
// a fresh checkout.
func Open(dbPath string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for concurrent reads while the scheduler writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.Info().Str("path", dbPath).Msg("sqlite store opened")
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			asset_id      TEXT PRIMARY KEY,
			symbol        TEXT NOT NULL,
			name          TEXT NOT NULL,
			image         TEXT,
			price         REAL NOT NULL,
			change_24h    REAL NOT NULL DEFAULT 0,
			volatility_7d REAL,
			market_cap    REAL,
			total_volume  REAL,
			history       TEXT NOT NULL DEFAULT '[]',
			source        TEXT NOT NULL DEFAULT 'Unknown',
			last_updated  INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_updated ON snapshots(updated_at)`,

		`CREATE TABLE IF NOT EXISTS predictions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			asset_id      TEXT NOT NULL,
			symbol        TEXT NOT NULL,
			market_price  REAL NOT NULL,
			action        TEXT NOT NULL,
			confidence    REAL NOT NULL,
			reason        TEXT NOT NULL,
			change_24h    REAL NOT NULL,
			average_price REAL NOT NULL,
			volatility    REAL NOT NULL,
			period_days   REAL NOT NULL,
			source_type   TEXT NOT NULL DEFAULT 'raw',
			bucket_start  INTEGER,
			raw_response  TEXT,
			dispatched    INTEGER NOT NULL DEFAULT 0,
			dispatched_at INTEGER,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_asset_created
			ON predictions(asset_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_type_created
			ON predictions(source_type, created_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_predictions_rollup_bucket
			ON predictions(asset_id, bucket_start) WHERE source_type = 'rollup'`,

		`CREATE TABLE IF NOT EXISTS recipients (
			email       TEXT PRIMARY KEY,
			preferences TEXT NOT NULL DEFAULT '{}',
			last_sent   TEXT NOT NULL DEFAULT '{}',
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.log.Info().Msg("closing sqlite store")
	return s.db.Close()
}
