package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/observability"
)

var (
	canvasOut  string
	canvasSave bool
	canvasKeep int
)

var canvasCmd = &cobra.Command{
	Use:   "canvas",
	Short: "Read the whole canvas",
}

var canvasSizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Print the canvas dimensions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := newPixelClient(cfg)
		if err != nil {
			return err
		}

		size, err := client.GetDimensions(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%dx%d\n", size.Width, size.Height)
		return nil
	},
}

var canvasGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Download the canvas as a PNG",
	Long: `Download every pixel of the canvas and write it as a PNG.

With --save the canvas is also stored as a snapshot, which the status
server serves at /v1/canvas.png.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(canvasOut) == "" && !canvasSave {
			return fmt.Errorf("nothing to do: pass --out and/or --save")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := newPixelClient(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		canvas, err := client.GetCanvas(ctx, cfg.Draw.ShowProgress)
		if err != nil {
			return err
		}

		if strings.TrimSpace(canvasOut) != "" {
			sink, err := openSink(cmd, canvasOut)
			if err != nil {
				return err
			}
			if err := canvas.EncodePNG(sink.writer); err != nil {
				_ = sink.close()
				return fmt.Errorf("encode png: %w", err)
			}
			if err := sink.close(); err != nil {
				return err
			}
			observability.CLILogger.Info("Canvas written",
				zap.String("path", sink.path),
				zap.Int("width", canvas.Width),
				zap.Int("height", canvas.Height))
		}

		if !canvasSave {
			return nil
		}

		db, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		id, err := db.SaveSnapshot(ctx, canvas, time.Now().UTC())
		if err != nil {
			return err
		}
		observability.CLILogger.Info("Snapshot saved", zap.Int64("id", id))

		if canvasKeep > 0 {
			pruned, err := db.PruneSnapshots(ctx, canvasKeep)
			if err != nil {
				return err
			}
			if pruned > 0 {
				observability.CLILogger.Debug("Pruned old snapshots", zap.Int64("deleted", pruned))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(canvasCmd)
	canvasCmd.AddCommand(canvasSizeCmd)
	canvasCmd.AddCommand(canvasGetCmd)

	canvasGetCmd.Flags().StringVarP(&canvasOut, "out", "o", "", "write the canvas PNG to this path (- for stdout)")
	canvasGetCmd.Flags().BoolVar(&canvasSave, "save", false, "store the canvas as a snapshot")
	canvasGetCmd.Flags().IntVar(&canvasKeep, "keep", 0, "with --save, keep only this many snapshots (0 keeps all)")
}
