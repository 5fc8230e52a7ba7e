package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/church"
	"github.com/pixelctl/pixelctl/internal/config"
	"github.com/pixelctl/pixelctl/internal/observability"
	"github.com/pixelctl/pixelctl/internal/output"
)

var (
	churchCount      int
	churchNoRecord   bool
	churchStatsBoard bool
)

var churchOverrides = []flagOverride{
	{flag: "kind", path: []string{"church", "kind"}},
	{flag: "church-url", path: []string{"church", "base_url"}},
	{flag: "church-token", path: []string{"church", "token"}},
	{flag: "repeat-delay", path: []string{"church", "repeat_delay"}},
}

var churchCmd = &cobra.Command{
	Use:   "church",
	Short: "Place pixels handed out by a church task server",
}

var churchRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Complete church tasks",
	Long: `Repeatedly fetch a task from the church, place its pixel and submit it.

--count 0 runs until interrupted. Tasks the church reports as expired,
reassigned or unverified are skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, churchOverrides...)
		if err != nil {
			return err
		}

		ch, err := newChurch(cfg)
		if err != nil {
			return err
		}
		pixels, err := newPixelClient(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		runner := &church.Runner{
			Church:       ch,
			Pixels:       pixels,
			Logger:       observability.CLILogger,
			ShowProgress: cfg.Draw.ShowProgress,
		}
		if !churchNoRecord {
			db, err := openStore(ctx, cfg.Store)
			if err != nil {
				observability.CLILogger.Warn("Store unavailable, placements will not be journaled", zap.Error(err))
			} else {
				defer db.Close() // nolint:errcheck // best-effort cleanup
				runner.Recorder = db
			}
		}

		stopMetrics := startMetrics(cfg.Metrics)
		defer stopMetrics()

		var stats church.RunStats
		err = runUntilSignal(ctx, cfg.Status.ShutdownTimeout, func(ctx context.Context) error {
			var runErr error
			stats, runErr = runner.Run(ctx, churchCount)
			return runErr
		})

		observability.CLILogger.Info("Church run finished",
			zap.String("church", ch.Name()),
			zap.Int("completed", stats.Completed),
			zap.Int("skipped", stats.Skipped))
		return err
	},
}

var churchStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show church of rick statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd, churchOverrides...)
		if err != nil {
			return err
		}
		ch, err := newChurch(cfg)
		if err != nil {
			return err
		}
		rick, ok := ch.(*church.RickClient)
		if !ok {
			return fmt.Errorf("church %q has no statistics endpoints", ch.Name())
		}

		ctx := cmd.Context()
		report := churchReport{}
		if report.Personal, err = rick.PersonalStats(ctx); err != nil {
			return err
		}
		if report.Church, err = rick.ChurchStats(ctx); err != nil {
			return err
		}
		if report.Church == nil {
			report.Church = map[string]any{}
		}
		if uptime, err := rick.Uptime(ctx); err == nil {
			report.Church["uptime"] = uptime.String()
		} else {
			observability.CLILogger.Debug("Church uptime unavailable", zap.Error(err))
		}
		if churchStatsBoard {
			if report.Leaderboard, err = rick.Leaderboard(ctx); err != nil {
				return err
			}
		}

		return render(cmd, "church-stats", format, report, func() string {
			text := output.StatsTable("Your Stats", report.Personal) + "\n" +
				output.StatsTable("Church Stats", report.Church)
			for i, entry := range report.Leaderboard {
				text += "\n" + output.StatsTable(fmt.Sprintf("Leaderboard #%d", i+1), entry)
			}
			return text
		})
	},
}

type churchReport struct {
	Personal    map[string]any            `json:"personal"`
	Church      map[string]any            `json:"church"`
	Leaderboard []church.LeaderboardEntry `json:"leaderboard,omitempty"`
}

func newChurch(cfg *config.Config) (church.Church, error) {
	return church.New(church.Options{
		Kind:        cfg.Church.Kind,
		BaseURL:     cfg.Church.BaseURL,
		Token:       cfg.Church.Token,
		RepeatDelay: cfg.Church.RepeatDelay,
		Timeout:     cfg.API.Timeout,
		Logger:      observability.CLILogger,
	})
}

func init() {
	rootCmd.AddCommand(churchCmd)
	churchCmd.AddCommand(churchRunCmd)
	churchCmd.AddCommand(churchStatsCmd)

	for _, c := range []*cobra.Command{churchRunCmd, churchStatsCmd} {
		c.Flags().String("kind", "", "church to join: rick or sqlite (default from config, rick)")
		c.Flags().String("church-url", "", "church server base URL")
		c.Flags().String("church-token", "", "church key")
	}
	churchRunCmd.Flags().IntVarP(&churchCount, "count", "n", 0, "number of tasks to complete (0 runs until interrupted)")
	churchRunCmd.Flags().Duration("repeat-delay", 0, "wait between polls while the church has no task")
	churchRunCmd.Flags().BoolVar(&churchNoRecord, "no-record", false, "do not journal placements")

	churchStatsCmd.Flags().String("output-format", "table", "output format: table or json")
	churchStatsCmd.Flags().StringP("out", "o", "", "write the report to this file or directory")
	churchStatsCmd.Flags().BoolVar(&churchStatsBoard, "leaderboard", false, "include the leaderboard")
}
