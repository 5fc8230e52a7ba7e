package pixelapi

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/core/engine"
)

// TaskLimits is the limiter snapshot of one task's client.
type TaskLimits struct {
	Task      int                    `json:"task"`
	Endpoints []engine.EndpointState `json:"endpoints"`
}

// ClientFactory builds the client for one token.
type ClientFactory func(token string, task int) (*Client, error)

// Pool holds one client per controlled task. Each client owns its limiter,
// so tokens are rate limited independently.
type Pool struct {
	TotalTasks int

	tasks   []int
	clients map[int]*Client
}

// NewPool maps the controlled tasks onto tokens in order: the i-th
// controlled task uses the i-th token. totalTasks <= 0 means one task per
// token; a nil controlled list means tasks 0..min(totalTasks, tokens)-1.
func NewPool(tokens []string, totalTasks int, controlled []int, factory ClientFactory, logger *logging.Logger) (*Pool, error) {
	if len(tokens) == 0 {
		return nil, errors.New("at least one token is required")
	}
	if factory == nil {
		return nil, errors.New("client factory is required")
	}

	if totalTasks <= 0 {
		totalTasks = len(tokens)
	}

	if controlled == nil {
		count := min(totalTasks, len(tokens))
		controlled = make([]int, count)
		for i := range controlled {
			controlled[i] = i
		}
	}
	if len(controlled) == 0 {
		return nil, errors.New("no controlled tasks")
	}
	if len(controlled) > len(tokens) {
		return nil, fmt.Errorf("%d controlled tasks but only %d tokens", len(controlled), len(tokens))
	}

	pool := &Pool{
		TotalTasks: totalTasks,
		clients:    make(map[int]*Client, len(controlled)),
	}
	for i, task := range controlled {
		if task < 0 || task >= totalTasks {
			return nil, fmt.Errorf("controlled task %d outside [0, %d)", task, totalTasks)
		}
		if _, dup := pool.clients[task]; dup {
			return nil, fmt.Errorf("controlled task %d listed twice", task)
		}
		client, err := factory(tokens[i], task)
		if err != nil {
			return nil, fmt.Errorf("client for task %d: %w", task, err)
		}
		pool.clients[task] = client
		pool.tasks = append(pool.tasks, task)
	}
	sort.Ints(pool.tasks)

	if len(pool.tasks) > 1 && logger != nil {
		logger.Warn("Using several tokens from one machine; the API may treat this as abuse",
			zap.Int("tokens", len(pool.tasks)),
			zap.Int("total_tasks", totalTasks))
	}

	return pool, nil
}

// Tasks returns the controlled task indices in ascending order.
func (p *Pool) Tasks() []int {
	out := make([]int, len(p.tasks))
	copy(out, p.tasks)
	return out
}

// Client returns the client for task.
func (p *Pool) Client(task int) (*Client, bool) {
	client, ok := p.clients[task]
	return client, ok
}

// Primary returns the client of the lowest controlled task.
func (p *Pool) Primary() *Client {
	if len(p.tasks) == 0 {
		return nil
	}
	return p.clients[p.tasks[0]]
}

// Limits snapshots the limiter of every controlled task.
func (p *Pool) Limits() []TaskLimits {
	out := make([]TaskLimits, 0, len(p.tasks))
	for _, task := range p.tasks {
		out = append(out, TaskLimits{Task: task, Endpoints: p.clients[task].Limiter.Snapshot()})
	}
	return out
}

// TaskFor assigns a canvas pixel to a task.
func (p *Pool) TaskFor(x, y, width int) int {
	return TaskIndex(x, y, width, p.TotalTasks)
}

// TaskIndex splits pixels round-robin over total tasks by their index
// y*width + x.
func TaskIndex(x, y, width, total int) int {
	if total <= 0 {
		return 0
	}
	task := (y*width + x) % total
	if task < 0 {
		task += total
	}
	return task
}
