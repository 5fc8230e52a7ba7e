package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixelctl/pixelctl/internal/core"
)

// DefaultPlacementLimit bounds ListPlacements when no limit is given.
const DefaultPlacementLimit = 50

// PlacementQuery filters the placement journal.
type PlacementQuery struct {
	Limit int
	Since time.Time
	// Status restricts results to one outcome when set.
	Status core.PlacementStatus
}

// RecordPlacement journals a put-pixel attempt. Missing IDs and timestamps
// are filled in.
func (s *Store) RecordPlacement(ctx context.Context, placement *core.Placement) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if placement == nil {
		return errors.New("placement is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(placement.ID) == "" {
		placement.ID = uuid.New().String()
	}
	if placement.PlacedAt.IsZero() {
		placement.PlacedAt = time.Now().UTC()
	}
	if placement.Status == "" {
		placement.Status = core.PlacementPlaced
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO placements (id, x, y, color, status, message, token_index, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			placed_at = excluded.placed_at
	`, placement.ID, placement.X, placement.Y, placement.Color.Hex(), string(placement.Status),
		placement.Message, placement.TokenIndex, placement.PlacedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record placement: %w", err)
	}

	return nil
}

// ListPlacements returns journaled placements, newest first.
func (s *Store) ListPlacements(ctx context.Context, query PlacementQuery) ([]core.Placement, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	limit := query.Limit
	if limit <= 0 {
		limit = DefaultPlacementLimit
	}

	var since int64
	if !query.Since.IsZero() {
		since = query.Since.UTC().UnixMilli()
	}

	clauses := []string{"placed_at >= ?"}
	args := []any{since}
	if query.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(query.Status))
	}
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, x, y, color, status, message, token_index, placed_at
		FROM placements
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY placed_at DESC, id
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var out []core.Placement
	for rows.Next() {
		var (
			placement core.Placement
			color     string
			status    string
			message   sql.NullString
			placedAt  int64
		)
		if err := rows.Scan(&placement.ID, &placement.X, &placement.Y, &color, &status, &message, &placement.TokenIndex, &placedAt); err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}

		parsed, err := core.ParseHex(color)
		if err != nil {
			return nil, fmt.Errorf("placement %s: %w", placement.ID, err)
		}
		placement.Color = parsed
		placement.Status = core.PlacementStatus(status)
		placement.Message = message.String
		placement.PlacedAt = time.UnixMilli(placedAt).UTC()
		out = append(out, placement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}

	return out, nil
}

// PlacementCounts returns the number of journaled placements per status.
func (s *Store) PlacementCounts(ctx context.Context) (map[core.PlacementStatus]int, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM placements GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count placements: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	counts := make(map[core.PlacementStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("count placements: %w", err)
		}
		counts[core.PlacementStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count placements: %w", err)
	}

	return counts, nil
}
