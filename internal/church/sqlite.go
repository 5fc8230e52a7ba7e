package church

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/core/engine"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
)

// SQLiteClient talks to the SQLite church. It publishes an open list of
// tasks and needs no key, so members pick tasks at random.
type SQLiteClient struct {
	API         *pixelapi.Client
	RepeatDelay time.Duration
	Logger      *logging.Logger
	Sleep       engine.SleepFunc
	// Pick chooses an index below n; nil picks uniformly at random.
	Pick func(n int) int

	recoverer *pixelapi.Recoverer
}

// NewSQLiteClient builds a SQLite church client.
func NewSQLiteClient(opts Options) (*SQLiteClient, error) {
	client := &SQLiteClient{
		RepeatDelay: opts.RepeatDelay,
		Logger:      opts.Logger,
		Sleep:       opts.Sleep,
		recoverer:   &pixelapi.Recoverer{},
	}
	if client.RepeatDelay <= 0 {
		client.RepeatDelay = 5 * time.Second
	}

	api, err := newAPI(opts, DefaultSQLiteURL, client.recoverer)
	if err != nil {
		return nil, err
	}
	client.API = api
	return client, nil
}

func (c *SQLiteClient) Name() string { return KindSQLite }

func (c *SQLiteClient) Recoverer() *pixelapi.Recoverer { return c.recoverer }

// GetTask lists the open tasks and picks one, waiting RepeatDelay between
// attempts while the list is empty.
func (c *SQLiteClient) GetTask(ctx context.Context) (*Task, error) {
	endpoint, err := c.API.ResolveEndpoint("tasks")
	if err != nil {
		return nil, err
	}

	for {
		var tasks []Task
		if err := c.API.ExecuteJSON(ctx, pixelapi.Request{Method: http.MethodGet, URL: endpoint}, &tasks); err != nil {
			return nil, err
		}
		if len(tasks) > 0 {
			task := tasks[c.pick(len(tasks))]
			return &task, nil
		}

		if c.Logger != nil {
			c.Logger.Info("Church has no available tasks, waiting", zap.Duration("delay", c.RepeatDelay))
		}
		if err := sleepFunc(c.Sleep)(ctx, c.RepeatDelay); err != nil {
			return nil, err
		}
	}
}

// SubmitTask reports task as done.
func (c *SQLiteClient) SubmitTask(ctx context.Context, task *Task) error {
	endpoint, err := c.API.ResolveEndpoint("submit_task")
	if err != nil {
		return err
	}
	if _, err := c.API.Execute(ctx, pixelapi.Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Data:   map[string]int{"task_id": task.ID},
	}); err != nil {
		return err
	}

	if c.Logger != nil {
		c.Logger.Info("Task submitted to the church", zap.Int("task_id", task.ID))
	}
	return nil
}

func (c *SQLiteClient) pick(n int) int {
	if c.Pick != nil {
		return c.Pick(n)
	}
	return rand.IntN(n)
}
