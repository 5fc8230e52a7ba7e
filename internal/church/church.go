// Package church talks to task-distribution servers that hand out pixels
// for their members to place, and runs the get/place/submit cycle.
package church

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/pixelctl/pixelctl/internal/core/engine"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
)

// Supported churches.
const (
	KindRick   = "rick"
	KindSQLite = "sqlite"
)

// Default church servers.
const (
	DefaultRickURL   = "https://pixel-tasks.scoder12.repl.co/api"
	DefaultSQLiteURL = "https://decorator-factory.su"
)

// Task is one pixel a church wants placed. Which of the optional fields
// are set depends on the church.
type Task struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`

	ProjectTitle string  `json:"project_title,omitempty"`
	Start        float64 `json:"start,omitempty"`

	ID       int    `json:"id,omitempty"`
	IssuedBy string `json:"issued_by,omitempty"`
}

// Church hands out tasks and accepts their completion.
type Church interface {
	Name() string
	GetTask(ctx context.Context) (*Task, error)
	SubmitTask(ctx context.Context, task *Task) error
	// Recoverer recognizes failures that only cost the current task.
	Recoverer() *pixelapi.Recoverer
}

// Options configures New.
type Options struct {
	Kind        string
	BaseURL     string
	Token       string
	RepeatDelay time.Duration
	Timeout     time.Duration
	Logger      *logging.Logger
	Sleep       engine.SleepFunc
}

// New builds the church client for opts.Kind.
func New(opts Options) (Church, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case KindRick, "":
		if strings.TrimSpace(opts.Token) == "" {
			return nil, errors.New("church of rick needs a church token")
		}
		client, err := NewRickClient(opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	case KindSQLite:
		client, err := NewSQLiteClient(opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown church %q (want %s or %s)", opts.Kind, KindRick, KindSQLite)
	}
}

func newAPI(opts Options, defaultURL string, recoverer *pixelapi.Recoverer) (*pixelapi.Client, error) {
	baseURL := opts.BaseURL
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultURL
	}
	return pixelapi.New(pixelapi.Options{
		BaseURL:   baseURL,
		Anonymous: true,
		Timeout:   opts.Timeout,
		Logger:    opts.Logger,
		Sleep:     opts.Sleep,
		Recoverer: recoverer,
	})
}

func sleepFunc(sleep engine.SleepFunc) engine.SleepFunc {
	if sleep != nil {
		return sleep
	}
	return engine.SleepContext
}
