package autodraw

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pixelctl/pixelctl/internal/core/engine"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
)

// MultiDrawer splits a plan across tasks, one client per task. A pixel
// belongs to task (y*planWidth + x) mod TotalTasks; tasks without a client
// are left to other machines.
type MultiDrawer struct {
	TotalTasks int
	Clients    map[int]PixelClient
	Plan       *Plan
	Recorder   Recorder
	Logger     *logging.Logger
	Sleep      engine.SleepFunc
	Clock      func() time.Time
}

// NewMultiDrawer draws plan with the clients of pool.
func NewMultiDrawer(pool *pixelapi.Pool, plan *Plan) *MultiDrawer {
	clients := make(map[int]PixelClient)
	for _, task := range pool.Tasks() {
		client, _ := pool.Client(task)
		clients[task] = client
	}
	return &MultiDrawer{TotalTasks: pool.TotalTasks, Clients: clients, Plan: plan}
}

// TaskFor returns the task owning canvas pixel (x, y).
func (m *MultiDrawer) TaskFor(x, y int) int {
	return pixelapi.TaskIndex(x, y, m.Plan.Width(), m.TotalTasks)
}

// Draw runs one drawer per controlled task concurrently. The first failure
// cancels the others.
func (m *MultiDrawer) Draw(ctx context.Context, opts DrawOptions) (DrawStats, error) {
	var total DrawStats
	if m.Plan == nil {
		return total, errors.New("multi drawer needs a plan")
	}
	if m.TotalTasks <= 0 {
		return total, fmt.Errorf("total tasks must be positive, got %d", m.TotalTasks)
	}
	if len(m.Clients) == 0 {
		return total, errors.New("multi drawer needs at least one client")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tasks := make([]int, 0, len(m.Clients))
	for task := range m.Clients {
		tasks = append(tasks, task)
	}
	sort.Ints(tasks)

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		drawer := &Drawer{
			Client:     m.Clients[task],
			Plan:       m.Plan,
			Recorder:   m.Recorder,
			Logger:     m.Logger,
			Sleep:      m.Sleep,
			Clock:      m.Clock,
			TokenIndex: task,
			Owns: func(x, y int) bool {
				return m.TaskFor(x, y) == task
			},
		}

		group.Go(func() error {
			if m.Logger != nil {
				m.Logger.Info("Starting draw task", zap.Int("task", task), zap.Int("total_tasks", m.TotalTasks))
			}
			stats, err := drawer.Draw(groupCtx, opts)
			mu.Lock()
			total.add(stats)
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("task %d: %w", task, err)
			}
			return nil
		})
	}

	err := group.Wait()
	return total, err
}
