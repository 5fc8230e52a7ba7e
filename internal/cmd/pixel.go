package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/config"
	"github.com/pixelctl/pixelctl/internal/core"
	"github.com/pixelctl/pixelctl/internal/observability"
)

var pixelNoRecord bool

var pixelCmd = &cobra.Command{
	Use:   "pixel",
	Short: "Read or set a single pixel",
}

var pixelGetCmd = &cobra.Command{
	Use:   "get X Y",
	Short: "Print the colour of one pixel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, y, err := parsePoint(args[0], args[1])
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := newPixelClient(cfg)
		if err != nil {
			return err
		}

		colour, err := client.GetPixel(cmd.Context(), x, y, cfg.Draw.ShowProgress)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), colour.Hex())
		return nil
	},
}

var pixelPutCmd = &cobra.Command{
	Use:   "put X Y COLOUR",
	Short: "Set one pixel",
	Long: `Set one pixel. COLOUR is a hex code (#ff8800 or ff8800) or a CSS
colour name such as rebeccapurple. The placement is journaled in the store
unless --no-record is given.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, y, err := parsePoint(args[0], args[1])
		if err != nil {
			return err
		}
		colour, err := core.ParseColor(args[2])
		if err != nil {
			return err
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
		message, putErr := client.PutPixel(ctx, x, y, colour, cfg.Draw.ShowProgress)

		if !pixelNoRecord {
			placement := &core.Placement{X: x, Y: y, Color: colour, Status: core.PlacementPlaced, Message: message}
			if putErr != nil {
				placement.Status = core.PlacementFailed
				placement.Message = putErr.Error()
			}
			recordPlacement(ctx, cfg.Store, placement)
		}

		if putErr != nil {
			return putErr
		}
		fmt.Fprintln(cmd.OutOrStdout(), message)
		return nil
	},
}

// recordPlacement journals placement. Store failures are logged and never
// fail the command.
func recordPlacement(ctx context.Context, cfg config.StoreConfig, placement *core.Placement) {
	db, err := openStore(ctx, cfg)
	if err != nil {
		observability.CLILogger.Warn("Placement not journaled", zap.Error(err))
		return
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	placement.PlacedAt = time.Now().UTC()
	if err := db.RecordPlacement(ctx, placement); err != nil {
		observability.CLILogger.Warn("Placement not journaled", zap.Error(err))
	}
}

func parsePoint(xArg, yArg string) (int, int, error) {
	x, err := parseCoordinate("x", xArg)
	if err != nil {
		return 0, 0, err
	}
	y, err := parseCoordinate("y", yArg)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func init() {
	rootCmd.AddCommand(pixelCmd)
	pixelCmd.AddCommand(pixelGetCmd)
	pixelCmd.AddCommand(pixelPutCmd)

	pixelPutCmd.Flags().BoolVar(&pixelNoRecord, "no-record", false, "do not journal the placement")
}
