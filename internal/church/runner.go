package church

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/core"
	"github.com/pixelctl/pixelctl/internal/metrics"
)

// PixelPutter places pixels on the canvas.
type PixelPutter interface {
	PutPixel(ctx context.Context, x, y int, colour any, showProgress bool) (string, error)
}

// Recorder journals placements made for the church.
type Recorder interface {
	RecordPlacement(ctx context.Context, placement *core.Placement) error
}

const (
	stageGet    = "get task"
	stagePlace  = "place pixel"
	stageSubmit = "submit task"
)

// stageError records which step of the cycle failed.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

// RunStats summarizes a run.
type RunStats struct {
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
}

// Runner repeats the church cycle: get a task, place its pixel, submit it.
type Runner struct {
	Church       Church
	Pixels       PixelPutter
	Recorder     Recorder
	Logger       *logging.Logger
	ShowProgress bool
	Clock        func() time.Time
}

// Run completes n tasks, or runs until ctx ends when n is zero. Failures a
// church hook recognizes skip the task; anything else stops the run.
func (r *Runner) Run(ctx context.Context, n int) (RunStats, error) {
	var stats RunStats
	if r.Church == nil || r.Pixels == nil {
		return stats, errors.New("runner needs a church and a pixel client")
	}
	if n < 0 {
		return stats, fmt.Errorf("task count must be >= 0, got %d", n)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for n == 0 || stats.Completed+stats.Skipped < n {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		err := r.runOnce(ctx)
		if err == nil {
			stats.Completed++
			metrics.RecordChurchTask(r.Church.Name(), "completed")
			continue
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		if !r.recover(err) {
			metrics.RecordChurchTask(r.Church.Name(), "failed")
			return stats, err
		}
		stats.Skipped++
		metrics.RecordChurchTask(r.Church.Name(), "skipped")
	}
	return stats, nil
}

func (r *Runner) runOnce(ctx context.Context) error {
	task, err := r.Church.GetTask(ctx)
	if err != nil {
		return &stageError{stage: stageGet, err: err}
	}

	r.info("Got church task", zap.Int("x", task.X), zap.Int("y", task.Y), zap.String("color", task.Color))

	message, err := r.Pixels.PutPixel(ctx, task.X, task.Y, task.Color, r.ShowProgress)
	if err != nil {
		r.record(ctx, task, core.PlacementFailed, err.Error())
		return &stageError{stage: stagePlace, err: err}
	}
	r.record(ctx, task, core.PlacementPlaced, message)

	if err := r.Church.SubmitTask(ctx, task); err != nil {
		return &stageError{stage: stageSubmit, err: err}
	}
	return nil
}

func (r *Runner) recover(err error) bool {
	handled, hookErr := r.Church.Recoverer().Recover(err)
	if handled {
		return hookErr == nil
	}

	var stage *stageError
	if !errors.As(err, &stage) || stage.stage == stagePlace {
		return false
	}

	var certErr *tls.CertificateVerificationError
	var authorityErr x509.UnknownAuthorityError
	if errors.As(err, &certErr) || errors.As(err, &authorityErr) {
		if r.Logger != nil {
			r.Logger.Warn("Church task failed, the church's TLS certificate was rejected", zap.Error(err))
		}
		return true
	}
	return false
}

func (r *Runner) record(ctx context.Context, task *Task, status core.PlacementStatus, message string) {
	if r.Recorder == nil {
		return
	}
	colour, err := core.ParseColor(task.Color)
	if err != nil {
		return
	}
	placement := &core.Placement{
		ID:       uuid.New().String(),
		X:        task.X,
		Y:        task.Y,
		Color:    colour,
		Status:   status,
		Message:  message,
		PlacedAt: r.now(),
	}
	if err := r.Recorder.RecordPlacement(context.WithoutCancel(ctx), placement); err != nil && r.Logger != nil {
		r.Logger.Warn("Failed to record placement", zap.Error(err))
	}
}

func (r *Runner) info(msg string, fields ...zap.Field) {
	if r.Logger != nil {
		r.Logger.Info(msg, fields...)
	}
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
