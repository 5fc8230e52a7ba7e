package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS placements (
		id TEXT PRIMARY KEY,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		color TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		token_index INTEGER NOT NULL DEFAULT 0,
		placed_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_placements_placed_at ON placements(placed_at);`,
	`CREATE INDEX IF NOT EXISTS idx_placements_xy ON placements(x, y);`,
	`CREATE TABLE IF NOT EXISTS canvas_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		data BLOB NOT NULL,
		taken_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_canvas_snapshots_taken_at ON canvas_snapshots(taken_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
