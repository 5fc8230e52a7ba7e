//go:build cgo

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelctl/pixelctl/internal/autodraw"
	"github.com/pixelctl/pixelctl/internal/config"
	"github.com/pixelctl/pixelctl/internal/core"
	"github.com/pixelctl/pixelctl/internal/core/engine"
	"github.com/pixelctl/pixelctl/internal/core/store"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
	"github.com/pixelctl/pixelctl/internal/server"
	"github.com/pixelctl/pixelctl/internal/server/handlers"
)

// fakeCanvas is a minimal pixel API: get_size, get_pixels and set_pixel,
// with rate limit headers on every response.
type fakeCanvas struct {
	mu      sync.Mutex
	canvas  *core.Canvas
	placers map[[2]int]string
}

func newFakeCanvas(t *testing.T, width, height int) *fakeCanvas {
	t.Helper()
	canvas, err := core.NewCanvas(core.Dimensions{Width: width, Height: height}, make([]byte, width*height*3))
	require.NoError(t, err)
	return &fakeCanvas{canvas: canvas, placers: map[[2]int]string{}}
}

func (f *fakeCanvas) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set(engine.HeaderRequestsRemaining, "10")
	w.Header().Set(engine.HeaderRequestsLimit, "10")
	w.Header().Set(engine.HeaderRequestsReset, "1")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/get_size":
		_ = json.NewEncoder(w).Encode(map[string]int{"width": f.canvas.Width, "height": f.canvas.Height})
	case "/get_pixels":
		_, _ = w.Write(append([]byte(nil), f.canvas.Raw...))
	case "/set_pixel":
		var body struct {
			X   int    `json:"x"`
			Y   int    `json:"y"`
			RGB string `json:"rgb"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		colour, err := core.ParseHex(body.RGB)
		if err != nil || !f.canvas.Contains(body.X, body.Y) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		f.canvas.Set(body.X, body.Y, colour)
		f.placers[[2]int{body.X, body.Y}] = token
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "added pixel"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestDrawWithTwoTokensJournalsAndServesStatus(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCanvas(t, 4, 2)
	api := httptest.NewServer(fake)
	t.Cleanup(api.Close)

	noSleep := func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	factory := func(token string, _ int) (*pixelapi.Client, error) {
		return pixelapi.New(pixelapi.Options{
			BaseURL:    api.URL,
			Token:      token,
			HTTPClient: api.Client(),
			Sleep:      noSleep,
		})
	}
	pool, err := pixelapi.NewPool([]string{"alpha", "beta"}, 2, nil, factory, nil)
	require.NoError(t, err)

	red := core.RGB(255, 0, 0)
	grid := [][]core.Color{{red, red, red, red}, {red, red, red, red}}
	plan, err := autodraw.NewPlan(0, 0, grid)
	require.NoError(t, err)

	db, err := store.Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	drawer := autodraw.NewMultiDrawer(pool, plan)
	drawer.Recorder = db
	drawer.Sleep = noSleep

	stats, err := drawer.Draw(ctx, autodraw.DrawOptions{})
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Placed)
	assert.Zero(t, stats.Failed)

	fake.mu.Lock()
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, red, fake.canvas.At(x, y))
			want := []string{"alpha", "beta"}[pixelapi.TaskIndex(x, y, plan.Width(), 2)]
			assert.Equal(t, want, fake.placers[[2]int{x, y}], "pixel (%d, %d)", x, y)
		}
	}
	fake.mu.Unlock()

	baseURL := startStatusServer(t, server.Options{
		Version:    "test",
		Limits:     pool.Limits,
		Placements: db,
		Snapshots:  db,
	})
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/v1/placements?limit=100")
	require.NoError(t, err)
	var placements handlers.PlacementsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&placements))
	require.NoError(t, resp.Body.Close())
	assert.Len(t, placements.Placements, 8)
	assert.Equal(t, 8, placements.Counts[core.PlacementPlaced])

	resp, err = client.Get(baseURL + "/v1/limits")
	require.NoError(t, err)
	var limits handlers.LimitsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&limits))
	require.NoError(t, resp.Body.Close())
	require.Len(t, limits.Tasks, 2)
	for _, task := range limits.Tasks {
		assert.NotEmpty(t, task.Endpoints, "task %d", task.Task)
	}

	resp, err = client.Get(baseURL + "/v1/canvas.png")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no snapshot stored yet")
}
