package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixelctl/pixelctl/internal/core"
	"github.com/pixelctl/pixelctl/internal/core/store"
	"github.com/pixelctl/pixelctl/internal/output"
)

var (
	historyLimit  int
	historyStatus string
	historySince  time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the placement journal",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled placements, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		query := store.PlacementQuery{Limit: historyLimit}
		if historyStatus != "" {
			status, err := parsePlacementStatus(historyStatus)
			if err != nil {
				return err
			}
			query.Status = status
		}
		if historySince > 0 {
			query.Since = time.Now().UTC().Add(-historySince)
		}

		cfg, err := loadStoreConfig(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		placements, err := db.ListPlacements(ctx, query)
		if err != nil {
			return err
		}

		return render(cmd, "history", format, placements, func() string {
			return output.PlacementsTable(placements)
		})
	},
}

func parsePlacementStatus(value string) (core.PlacementStatus, error) {
	status := core.PlacementStatus(value)
	switch status {
	case core.PlacementPlaced, core.PlacementSkipped, core.PlacementFailed:
		return status, nil
	default:
		return "", fmt.Errorf("unknown placement status %q (want placed, skipped or failed)", value)
	}
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", store.DefaultPlacementLimit, "maximum placements to list")
	historyListCmd.Flags().StringVar(&historyStatus, "status", "", "only list placements with this outcome (placed, skipped, failed)")
	historyListCmd.Flags().DurationVar(&historySince, "since", 0, "only list placements newer than this (e.g. 1h)")
	historyListCmd.Flags().String("output-format", "table", "output format: table or json")
	historyListCmd.Flags().StringP("out", "o", "", "write the list to this file or directory")
}
