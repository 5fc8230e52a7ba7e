package cmd

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/autodraw"
	"github.com/pixelctl/pixelctl/internal/config"
	"github.com/pixelctl/pixelctl/internal/core/store"
	"github.com/pixelctl/pixelctl/internal/observability"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
)

var (
	drawX          int
	drawY          int
	drawScale      float64
	drawGuard      bool
	drawNoProgress bool
	drawNoRecord   bool
	drawDryRun     bool
	drawSnapEvery  time.Duration
)

// snapshotKeep bounds the snapshots kept by guard runs.
const snapshotKeep = 10

var drawOverrides = []flagOverride{
	{flag: "guard-delay", path: []string{"draw", "guard_delay"}},
	{flag: "total-tasks", path: []string{"draw", "total_tasks"}},
	{flag: "controlled-tasks", path: []string{"draw", "controlled_tasks"}},
	{flag: "status", path: []string{"status", "enabled"}},
	{flag: "status-port", path: []string{"status", "port"}},
}

var drawCmd = &cobra.Command{
	Use:   "draw FILE",
	Short: "Paint an image or plan file onto the canvas",
	Long: `Paint FILE onto the canvas, skipping pixels that already match.

FILE is a PNG or JPEG image, a YAML plan (x, y, width, height, pixels) or a
text plan (x, y, width and height on their own lines, then one hex colour per
line). --x and --y move the plan; --scale resizes it.

With --guard the plan is redrawn every --guard-delay until interrupted.
Several tokens split the plan by pixel index: pixel (x, y) belongs to task
(y*width + x) mod --total-tasks, and this machine draws --controlled-tasks.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, drawOverrides...)
		if err != nil {
			return err
		}
		if drawNoProgress {
			cfg.Draw.ShowProgress = false
		}

		plan, err := autodraw.LoadPlanFile(args[0], planLoadOptions(cmd))
		if err != nil {
			return err
		}
		observability.CLILogger.Info("Plan loaded",
			zap.String("file", args[0]),
			zap.Int("x", plan.X),
			zap.Int("y", plan.Y),
			zap.Int("width", plan.Width()),
			zap.Int("height", plan.Height()))

		if drawDryRun {
			return drawDryRunReport(cmd, cfg, plan)
		}

		pool, err := newPixelPool(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		var db *store.Store
		if !drawNoRecord || cfg.Status.Enabled {
			db, err = openStore(ctx, cfg.Store)
			if err != nil {
				observability.CLILogger.Warn("Store unavailable, placements will not be journaled", zap.Error(err))
				db = nil
			} else {
				defer db.Close() // nolint:errcheck // best-effort cleanup
			}
		}

		stopMetrics := startMetrics(cfg.Metrics)
		defer stopMetrics()

		if cfg.Status.Enabled {
			stopStatus, err := startStatusServer(cfg, pool, db)
			if err != nil {
				return err
			}
			defer stopStatus()
		}

		drawer := autodraw.NewMultiDrawer(pool, plan)
		drawer.Logger = observability.CLILogger
		if db != nil && !drawNoRecord {
			drawer.Recorder = db
		}

		opts := autodraw.DrawOptions{
			Guard:        drawGuard,
			GuardDelay:   cfg.Draw.GuardDelay,
			ShowProgress: cfg.Draw.ShowProgress,
		}

		var stats autodraw.DrawStats
		err = runUntilSignal(ctx, cfg.Status.ShutdownTimeout, func(ctx context.Context) error {
			if db != nil && drawSnapEvery > 0 {
				go snapshotLoop(ctx, pool.Primary(), db, drawSnapEvery)
			}
			var drawErr error
			stats, drawErr = drawer.Draw(ctx, opts)
			return drawErr
		})

		observability.CLILogger.Info("Draw finished",
			zap.Int("placed", stats.Placed),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
			zap.Int("passes", stats.Passes))
		return err
	},
}

// snapshotLoop stores the canvas every interval until ctx ends, keeping the
// newest snapshotKeep.
func snapshotLoop(ctx context.Context, client *pixelapi.Client, db *store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		canvas, err := client.GetCanvas(ctx, false)
		if err != nil {
			if ctx.Err() == nil {
				observability.CLILogger.Warn("Snapshot fetch failed", zap.Error(err))
			}
			continue
		}
		if _, err := db.SaveSnapshot(ctx, canvas, time.Now().UTC()); err != nil {
			observability.CLILogger.Warn("Snapshot not saved", zap.Error(err))
			continue
		}
		if _, err := db.PruneSnapshots(ctx, snapshotKeep); err != nil {
			observability.CLILogger.Debug("Snapshot prune failed", zap.Error(err))
		}
	}
}

// planLoadOptions moves the plan only when --x or --y was given.
func planLoadOptions(cmd *cobra.Command) autodraw.LoadOptions {
	opts := autodraw.LoadOptions{Scale: drawScale}
	if cmd.Flags().Changed("x") || cmd.Flags().Changed("y") {
		opts.Origin = &image.Point{X: drawX, Y: drawY}
	}
	return opts
}

// drawDryRunReport prints how many plan pixels differ from the canvas.
func drawDryRunReport(cmd *cobra.Command, cfg *config.Config, plan *autodraw.Plan) error {
	client, err := newPixelClient(cfg)
	if err != nil {
		return err
	}
	canvas, err := client.GetCanvas(cmd.Context(), cfg.Draw.ShowProgress)
	if err != nil {
		return err
	}
	if !plan.Fits(canvas.Dimensions) {
		return fmt.Errorf("%w: plan %v, canvas %dx%d", autodraw.ErrPlanOutOfBounds, plan.Bounds(), canvas.Width, canvas.Height)
	}

	diff := plan.Diff(canvas)
	total := plan.Width() * plan.Height()
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d pixels differ from the canvas\n", len(diff), total)

	if cfg.Draw.TotalTasks > 1 {
		split := &autodraw.MultiDrawer{TotalTasks: cfg.Draw.TotalTasks, Plan: plan}
		perTask := make(map[int]int)
		for _, pixel := range diff {
			perTask[split.TaskFor(pixel.X, pixel.Y)]++
		}
		for task := 0; task < cfg.Draw.TotalTasks; task++ {
			fmt.Fprintf(cmd.OutOrStdout(), "  task %d: %d\n", task, perTask[task])
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(drawCmd)

	flags := drawCmd.Flags()
	flags.IntVar(&drawX, "x", 0, "left edge of the plan on the canvas")
	flags.IntVar(&drawY, "y", 0, "top edge of the plan on the canvas")
	flags.Float64Var(&drawScale, "scale", 1, "resize the plan by this factor")
	flags.BoolVar(&drawGuard, "guard", false, "keep redrawing the plan until interrupted")
	flags.Duration("guard-delay", 0, "pause between guard passes (default from config, 5s)")
	flags.BoolVar(&drawNoProgress, "no-progress", false, "hide rate limit progress bars")
	flags.BoolVar(&drawNoRecord, "no-record", false, "do not journal placements")
	flags.BoolVar(&drawDryRun, "dry-run", false, "report how many pixels differ without drawing")
	flags.DurationVar(&drawSnapEvery, "snapshot-every", 0, "store a canvas snapshot at this interval (served at /v1/canvas.png)")
	flags.Bool("status", false, "serve /health, /metrics and /v1 status routes while drawing")
	flags.Int("status-port", 0, "status server port (default from config, 8080)")
	flags.Int("total-tasks", 0, "number of tasks the plan is split into across machines")
	flags.IntSlice("controlled-tasks", nil, "task indices drawn by this machine (default 0..tokens-1)")
}
