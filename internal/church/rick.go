package church

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/core/engine"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
)

const (
	rickExpiredDetail  = `You have not gotten a task yet or you took more than (\d+) seconds to submit your task`
	rickReassignDetail = "This is not the task you were assigned"
	rickCheckDetail    = "You did not complete this task properly, or it was fixed before the server could verify it. " +
		"You have not been credited for this task."
)

// RickClient talks to the church of rick, which assigns one task per key.
type RickClient struct {
	API         *pixelapi.Client
	Key         string
	RepeatDelay time.Duration
	Logger      *logging.Logger
	Sleep       engine.SleepFunc

	recoverer *pixelapi.Recoverer
}

// NewRickClient builds a client with the church's recovery hooks installed.
func NewRickClient(opts Options) (*RickClient, error) {
	client := &RickClient{
		Key:         opts.Token,
		RepeatDelay: opts.RepeatDelay,
		Logger:      opts.Logger,
		Sleep:       opts.Sleep,
		recoverer:   &pixelapi.Recoverer{},
	}
	if client.RepeatDelay <= 0 {
		client.RepeatDelay = 2 * time.Second
	}
	client.registerHooks()

	api, err := newAPI(opts, DefaultRickURL, client.recoverer)
	if err != nil {
		return nil, err
	}
	client.API = api
	return client, nil
}

func (c *RickClient) Name() string { return KindRick }

func (c *RickClient) Recoverer() *pixelapi.Recoverer { return c.recoverer }

func (c *RickClient) registerHooks() {
	c.recoverer.Register(pixelapi.RecoveryHook{
		Name:    "task-expired",
		Status:  http.StatusTooManyRequests,
		Pattern: regexp.MustCompile(rickExpiredDetail),
		Handle: func(_ *pixelapi.APIError, match []string) error {
			c.warn("Church task failed, task disassigned, submitting took too long", zap.String("limit_seconds", match[1]))
			return nil
		},
	})
	c.recoverer.Register(pixelapi.RecoveryHook{
		Name:    "task-reassigned",
		Status:  http.StatusConflict,
		Pattern: regexp.MustCompile("^" + regexp.QuoteMeta(rickReassignDetail) + "$"),
		Handle: func(*pixelapi.APIError, []string) error {
			c.warn("Church task failed, the task was reassigned to somebody else")
			return nil
		},
	})
	c.recoverer.Register(pixelapi.RecoveryHook{
		Name:    "task-check-failed",
		Status:  http.StatusBadRequest,
		Pattern: regexp.MustCompile("^" + regexp.QuoteMeta(rickCheckDetail) + "$"),
		Handle: func(*pixelapi.APIError, []string) error {
			c.warn("Church task failed, the pixel was overwritten before the church could verify it")
			return nil
		},
	})
}

// GetTask asks for the task assigned to this key, waiting RepeatDelay
// between attempts while the church has none.
func (c *RickClient) GetTask(ctx context.Context) (*Task, error) {
	endpoint, err := c.API.ResolveEndpoint("get_task")
	if err != nil {
		return nil, err
	}

	for {
		var payload struct {
			Task *Task `json:"task"`
		}
		if err := c.API.ExecuteJSON(ctx, pixelapi.Request{
			Method: http.MethodGet,
			URL:    endpoint,
			Params: c.keyParams(),
		}, &payload); err != nil {
			return nil, err
		}
		if payload.Task != nil {
			return payload.Task, nil
		}

		c.info("Church has no available tasks, waiting", zap.Duration("delay", c.RepeatDelay))
		if err := sleepFunc(c.Sleep)(ctx, c.RepeatDelay); err != nil {
			return nil, err
		}
	}
}

// SubmitTask reports task as done.
func (c *RickClient) SubmitTask(ctx context.Context, task *Task) error {
	endpoint, err := c.API.ResolveEndpoint("submit_task")
	if err != nil {
		return err
	}

	body := map[string]any{
		"project_title": task.ProjectTitle,
		"start":         task.Start,
		"x":             task.X,
		"y":             task.Y,
		"color":         task.Color,
	}
	if _, err := c.API.Execute(ctx, pixelapi.Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Data:   body,
		Params: c.keyParams(),
	}); err != nil {
		return err
	}

	c.info("Task submitted to the church", zap.Int("x", task.X), zap.Int("y", task.Y))
	return nil
}

// PersonalStats returns the statistics of this key.
func (c *RickClient) PersonalStats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.get(ctx, "user/stats", c.keyParams(), &out)
	return out, err
}

// ChurchStats returns the church-wide statistics.
func (c *RickClient) ChurchStats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.get(ctx, "overall_stats", nil, &out)
	return out, err
}

// LeaderboardEntry is one row of the church leaderboard.
type LeaderboardEntry map[string]any

// Leaderboard returns the church leaderboard.
func (c *RickClient) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var payload struct {
		Leaderboard []LeaderboardEntry `json:"leaderboard"`
	}
	if err := c.get(ctx, "leaderboard", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Leaderboard, nil
}

// Uptime returns how long the church has been running.
func (c *RickClient) Uptime(ctx context.Context) (time.Duration, error) {
	var payload struct {
		Uptime json.Number `json:"uptime"`
	}
	if err := c.get(ctx, "leaderboard", nil, &payload); err != nil {
		return 0, err
	}
	seconds, err := payload.Uptime.Float64()
	if err != nil {
		return 0, fmt.Errorf("parse uptime %q: %w", payload.Uptime, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Projects returns the church's project statistics.
func (c *RickClient) Projects(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "projects/stats", nil, &out)
	return out, err
}

func (c *RickClient) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint, err := c.API.ResolveEndpoint(path)
	if err != nil {
		return err
	}
	return c.API.ExecuteJSON(ctx, pixelapi.Request{Method: http.MethodGet, URL: endpoint, Params: params}, out)
}

func (c *RickClient) keyParams() url.Values {
	return url.Values{"key": []string{c.Key}}
}

func (c *RickClient) info(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Info(msg, fields...)
	}
}

func (c *RickClient) warn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}
