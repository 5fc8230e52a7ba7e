package autodraw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/core"
	"github.com/pixelctl/pixelctl/internal/core/engine"
)

// DefaultGuardDelay is the pause between guard passes.
const DefaultGuardDelay = 5 * time.Second

// ErrPlanOutOfBounds is returned when a plan does not fit on the canvas.
var ErrPlanOutOfBounds = errors.New("plan does not fit on the canvas")

// PixelClient is the part of the canvas API a drawer needs.
type PixelClient interface {
	GetCanvas(ctx context.Context, showProgress bool) (*core.Canvas, error)
	PutPixel(ctx context.Context, x, y int, colour any, showProgress bool) (string, error)
}

// Recorder journals placement attempts.
type Recorder interface {
	RecordPlacement(ctx context.Context, placement *core.Placement) error
}

// DrawOptions controls a draw run.
type DrawOptions struct {
	// Guard keeps redrawing the plan until the context ends.
	Guard        bool
	GuardDelay   time.Duration
	ShowProgress bool
}

// DrawStats summarizes a draw run.
type DrawStats struct {
	Placed  int `json:"placed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Passes  int `json:"passes"`
}

func (s *DrawStats) add(other DrawStats) {
	s.Placed += other.Placed
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Passes += other.Passes
}

// Drawer paints a plan with one client.
type Drawer struct {
	Client   PixelClient
	Plan     *Plan
	Recorder Recorder
	Logger   *logging.Logger
	Sleep    engine.SleepFunc
	Clock    func() time.Time

	// Owns restricts the drawer to a subset of the plan; nil draws all of it.
	Owns       func(x, y int) bool
	TokenIndex int
}

// Draw places every plan pixel that differs from the canvas. The canvas is
// refetched after each placement since one put can take a long cooldown.
// With Guard set it keeps passing over the plan, GuardDelay apart, until ctx
// ends and returns ctx's error.
func (d *Drawer) Draw(ctx context.Context, opts DrawOptions) (DrawStats, error) {
	var stats DrawStats
	if d.Client == nil || d.Plan == nil {
		return stats, errors.New("drawer needs a client and a plan")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	guardDelay := opts.GuardDelay
	if guardDelay <= 0 {
		guardDelay = DefaultGuardDelay
	}

	for {
		pass, err := d.pass(ctx, opts)
		stats.add(pass)
		if err != nil {
			return stats, err
		}

		if !opts.Guard {
			return stats, nil
		}

		d.debug("Guard pass complete", zap.Int("placed", pass.Placed), zap.Duration("next", guardDelay))
		if err := d.sleep(ctx, guardDelay); err != nil {
			return stats, err
		}
	}
}

func (d *Drawer) pass(ctx context.Context, opts DrawOptions) (DrawStats, error) {
	stats := DrawStats{Passes: 1}

	canvas, err := d.Client.GetCanvas(ctx, opts.ShowProgress)
	if err != nil {
		return stats, fmt.Errorf("fetch canvas: %w", err)
	}
	if !d.Plan.Fits(canvas.Dimensions) {
		return stats, fmt.Errorf("%w: plan %v, canvas %dx%d", ErrPlanOutOfBounds, d.Plan.Bounds(), canvas.Width, canvas.Height)
	}

	for _, pixel := range d.Plan.Pixels() {
		if d.Owns != nil && !d.Owns(pixel.X, pixel.Y) {
			continue
		}
		if canvas.At(pixel.X, pixel.Y) == pixel.Color {
			d.debug("Skipping already correct pixel", zap.Int("x", pixel.X), zap.Int("y", pixel.Y))
			stats.Skipped++
			continue
		}

		message, err := d.Client.PutPixel(ctx, pixel.X, pixel.Y, pixel.Color, opts.ShowProgress)
		if err != nil {
			stats.Failed++
			d.record(ctx, pixel, core.PlacementFailed, err.Error())
			return stats, fmt.Errorf("put pixel (%d, %d): %w", pixel.X, pixel.Y, err)
		}
		stats.Placed++
		d.record(ctx, pixel, core.PlacementPlaced, message)

		canvas, err = d.Client.GetCanvas(ctx, opts.ShowProgress)
		if err != nil {
			return stats, fmt.Errorf("refresh canvas: %w", err)
		}
	}

	return stats, nil
}

func (d *Drawer) record(ctx context.Context, pixel PlanPixel, status core.PlacementStatus, message string) {
	if d.Recorder == nil {
		return
	}
	placement := &core.Placement{
		ID:         uuid.New().String(),
		X:          pixel.X,
		Y:          pixel.Y,
		Color:      pixel.Color,
		Status:     status,
		Message:    message,
		TokenIndex: d.TokenIndex,
		PlacedAt:   d.now(),
	}
	if err := d.Recorder.RecordPlacement(context.WithoutCancel(ctx), placement); err != nil && d.Logger != nil {
		d.Logger.Warn("Failed to record placement", zap.Int("x", pixel.X), zap.Int("y", pixel.Y), zap.Error(err))
	}
}

func (d *Drawer) sleep(ctx context.Context, delay time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, delay)
	}
	return engine.SleepContext(ctx, delay)
}

func (d *Drawer) debug(msg string, fields ...zap.Field) {
	if d.Logger != nil {
		d.Logger.Debug(msg, fields...)
	}
}

func (d *Drawer) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now().UTC()
}
