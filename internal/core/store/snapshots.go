package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pixelctl/pixelctl/internal/core"
)

// Snapshot is a stored copy of the whole canvas.
type Snapshot struct {
	ID      int64
	Canvas  *core.Canvas
	TakenAt time.Time
}

// SaveSnapshot stores canvas and returns the snapshot ID.
func (s *Store) SaveSnapshot(ctx context.Context, canvas *core.Canvas, takenAt time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if canvas == nil {
		return 0, errors.New("canvas is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}

	result, err := s.DB.ExecContext(ctx, `
		INSERT INTO canvas_snapshots (width, height, data, taken_at)
		VALUES (?, ?, ?, ?)
	`, canvas.Width, canvas.Height, canvas.Raw, takenAt.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	return id, nil
}

// LatestSnapshot returns the most recent snapshot, or nil when none exists.
func (s *Store) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var (
		id      int64
		width   int
		height  int
		data    []byte
		takenAt int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, width, height, data, taken_at
		FROM canvas_snapshots
		ORDER BY taken_at DESC, id DESC
		LIMIT 1
	`)
	if err := row.Scan(&id, &width, &height, &data, &takenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}

	canvas, err := core.NewCanvas(core.Dimensions{Width: width, Height: height}, data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", id, err)
	}

	return &Snapshot{ID: id, Canvas: canvas, TakenAt: time.UnixMilli(takenAt).UTC()}, nil
}

// PruneSnapshots keeps the newest keep snapshots and deletes the rest.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if keep < 0 {
		return 0, fmt.Errorf("keep must be >= 0, got %d", keep)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `
		DELETE FROM canvas_snapshots
		WHERE id NOT IN (
			SELECT id FROM canvas_snapshots ORDER BY taken_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return result.RowsAffected()
}
