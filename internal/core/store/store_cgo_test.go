//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pixelctl/pixelctl/internal/config"
	"github.com/pixelctl/pixelctl/internal/core"
)

func openMemoryStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	store := openMemoryStore(t)
	require.Equal(t, "libsql", store.Driver())
	require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)
}

func TestPlacementJournal(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, status := range []core.PlacementStatus{core.PlacementPlaced, core.PlacementFailed, core.PlacementPlaced} {
		require.NoError(t, store.RecordPlacement(ctx, &core.Placement{
			X:          i,
			Y:          i + 1,
			Color:      core.RGB(uint8(i), 0, 255),
			Status:     status,
			Message:    "attempt",
			TokenIndex: i,
			PlacedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := store.ListPlacements(ctx, PlacementQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 2, all[0].X, "newest first")
	require.Equal(t, core.RGB(2, 0, 255), all[0].Color)
	require.Equal(t, base.Add(2*time.Minute), all[0].PlacedAt)
	require.NotEmpty(t, all[0].ID)

	recent, err := store.ListPlacements(ctx, PlacementQuery{Since: base.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	limited, err := store.ListPlacements(ctx, PlacementQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	failed, err := store.ListPlacements(ctx, PlacementQuery{Status: core.PlacementFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, 1, failed[0].TokenIndex)

	counts, err := store.PlacementCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, map[core.PlacementStatus]int{core.PlacementPlaced: 2, core.PlacementFailed: 1}, counts)
}

func TestRecordPlacementUpsertsByID(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	placement := &core.Placement{ID: "fixed", X: 1, Y: 1, Color: core.RGB(1, 2, 3), Status: core.PlacementFailed}
	require.NoError(t, store.RecordPlacement(ctx, placement))
	placement.Status = core.PlacementPlaced
	require.NoError(t, store.RecordPlacement(ctx, placement))

	all, err := store.ListPlacements(ctx, PlacementQuery{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, core.PlacementPlaced, all[0].Status)
}

func TestCanvasSnapshots(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	latest, err := store.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.Nil(t, latest)

	size := core.Dimensions{Width: 2, Height: 1}
	first, err := core.NewCanvas(size, []byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	second, err := core.NewCanvas(size, []byte{9, 9, 9, 8, 8, 8})
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = store.SaveSnapshot(ctx, first, now)
	require.NoError(t, err)
	id, err := store.SaveSnapshot(ctx, second, now.Add(time.Minute))
	require.NoError(t, err)

	latest, err = store.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, id, latest.ID)
	require.Equal(t, second.Raw, latest.Canvas.Raw)
	require.Equal(t, now.Add(time.Minute), latest.TakenAt)

	removed, err := store.PruneSnapshots(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
}
