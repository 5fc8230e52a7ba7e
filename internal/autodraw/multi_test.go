package autodraw

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pixelctl/pixelctl/internal/core"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
)

func TestMultiDrawerSplitsPixelsByTask(t *testing.T) {
	shared := newFakeCanvas(t, 3, 2)
	plan, err := NewPlan(0, 0, [][]core.Color{{red, green, blue}, {white, red, green}})
	require.NoError(t, err)

	first := &fakeClient{shared: shared}
	second := &fakeClient{shared: shared}
	multi := &MultiDrawer{
		TotalTasks: 2,
		Clients:    map[int]PixelClient{0: first, 1: second},
		Plan:       plan,
	}

	stats, err := multi.Draw(context.Background(), DrawOptions{})
	require.NoError(t, err)
	require.Equal(t, 6, stats.Placed)
	require.Equal(t, 2, stats.Passes)

	for _, put := range first.puts {
		require.Equal(t, 0, multi.TaskFor(put.X, put.Y))
	}
	for _, put := range second.puts {
		require.Equal(t, 1, multi.TaskFor(put.X, put.Y))
	}
	require.Len(t, first.puts, 3)
	require.Len(t, second.puts, 3)
	require.Empty(t, plan.Diff(shared.canvas))
}

func TestMultiDrawerLeavesUncontrolledTasks(t *testing.T) {
	shared := newFakeCanvas(t, 2, 2)
	plan, err := NewPlan(0, 0, [][]core.Color{{red, red}, {red, red}})
	require.NoError(t, err)

	only := &fakeClient{shared: shared}
	multi := &MultiDrawer{TotalTasks: 4, Clients: map[int]PixelClient{2: only}, Plan: plan}

	stats, err := multi.Draw(context.Background(), DrawOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Placed)
	require.Equal(t, []PlanPixel{{X: 0, Y: 1, Color: red}}, only.puts)
}

func TestMultiDrawerPropagatesFailure(t *testing.T) {
	shared := newFakeCanvas(t, 2, 1)
	plan, err := NewPlan(0, 0, [][]core.Color{{red, green}})
	require.NoError(t, err)

	boom := errors.New("boom")
	multi := &MultiDrawer{
		TotalTasks: 2,
		Clients: map[int]PixelClient{
			0: &fakeClient{shared: shared},
			1: &fakeClient{shared: shared, failPut: boom},
		},
		Plan: plan,
	}

	_, err = multi.Draw(context.Background(), DrawOptions{})
	require.ErrorIs(t, err, boom)
}

func TestMultiDrawerValidation(t *testing.T) {
	plan, err := NewPlan(0, 0, [][]core.Color{{red}})
	require.NoError(t, err)

	_, err = (&MultiDrawer{TotalTasks: 1, Plan: plan}).Draw(context.Background(), DrawOptions{})
	require.Error(t, err)
	_, err = (&MultiDrawer{TotalTasks: 0, Plan: plan, Clients: map[int]PixelClient{0: nil}}).Draw(context.Background(), DrawOptions{})
	require.Error(t, err)
}

func TestNewMultiDrawerFromPool(t *testing.T) {
	pool, err := pixelapi.NewPool([]string{"a", "b"}, 3, []int{2, 0}, func(token string, task int) (*pixelapi.Client, error) {
		return pixelapi.New(pixelapi.Options{BaseURL: "https://pixels.example/", Token: token})
	}, nil)
	require.NoError(t, err)

	plan, err := NewPlan(0, 0, [][]core.Color{{red}})
	require.NoError(t, err)

	multi := NewMultiDrawer(pool, plan)
	require.Equal(t, 3, multi.TotalTasks)
	require.Len(t, multi.Clients, 2)
	require.Contains(t, multi.Clients, 0)
	require.Contains(t, multi.Clients, 2)
}
