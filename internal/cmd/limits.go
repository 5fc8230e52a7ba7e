package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pixelctl/pixelctl/internal/observability"
	"github.com/pixelctl/pixelctl/internal/output"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
)

var limitsProbeEndpoints []string

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Inspect the rate limits the API advertises",
}

var limitsProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Call read endpoints with every token and show the limits they report",
	Long: `Call each read endpoint once per controlled token and print the rate
limit state the responses advertised: remaining requests, reset, cooldown,
Retry-After and the wait the next call would take.

set_pixel is never probed; its limits appear once a draw has placed a pixel.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		endpoints, err := probeEndpoints(limitsProbeEndpoints)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.Draw.ShowProgress = false
		pool, err := newPixelPool(cfg)
		if err != nil {
			return err
		}

		group, ctx := errgroup.WithContext(cmd.Context())
		for _, task := range pool.Tasks() {
			client, _ := pool.Client(task)
			group.Go(func() error {
				for _, endpoint := range endpoints {
					if err := probe(ctx, client, endpoint); err != nil {
						return fmt.Errorf("task %d %s: %w", task, endpoint, err)
					}
					observability.CLILogger.Debug("Probed endpoint", zap.Int("task", task), zap.String("endpoint", endpoint))
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		limits := pool.Limits()
		return render(cmd, "limits", format, limits, func() string {
			return output.LimitsTable(limits)
		})
	},
}

var probeableEndpoints = []string{pixelapi.EndpointGetSize, pixelapi.EndpointGetPixel, pixelapi.EndpointGetPixels}

func probeEndpoints(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return []string{pixelapi.EndpointGetSize, pixelapi.EndpointGetPixel}, nil
	}
	out := make([]string, 0, len(requested))
	for _, value := range requested {
		endpoint := strings.Trim(strings.TrimSpace(value), "/")
		known := false
		for _, candidate := range probeableEndpoints {
			if endpoint == candidate {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("cannot probe %q (want one of %s)", value, strings.Join(probeableEndpoints, ", "))
		}
		out = append(out, endpoint)
	}
	return out, nil
}

func probe(ctx context.Context, client *pixelapi.Client, endpoint string) error {
	switch endpoint {
	case pixelapi.EndpointGetSize:
		_, err := client.GetDimensions(ctx)
		return err
	case pixelapi.EndpointGetPixel:
		_, err := client.GetPixel(ctx, 0, 0, false)
		return err
	case pixelapi.EndpointGetPixels:
		_, err := client.GetCanvas(ctx, false)
		return err
	default:
		return fmt.Errorf("cannot probe %q", endpoint)
	}
}

func init() {
	rootCmd.AddCommand(limitsCmd)
	limitsCmd.AddCommand(limitsProbeCmd)

	limitsProbeCmd.Flags().StringSliceVar(&limitsProbeEndpoints, "endpoint", nil, "endpoints to probe (default get_size,get_pixel)")
	limitsProbeCmd.Flags().String("output-format", "table", "output format: table or json")
	limitsProbeCmd.Flags().StringP("out", "o", "", "write the report to this file or directory")
}
