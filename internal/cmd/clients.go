package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pixelctl/pixelctl/internal/config"
	"github.com/pixelctl/pixelctl/internal/observability"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
)

// flagOverride maps a command flag onto a config path.
type flagOverride struct {
	flag string
	path []string
}

var globalOverrides = []flagOverride{
	{flag: "base-url", path: []string{"api", "base_url"}},
	{flag: "token", path: []string{"api", "token"}},
}

// loadConfig loads the layered config with every changed flag in extra (and
// the global flags) applied on top, then validates it.
func loadConfig(cmd *cobra.Command, extra ...flagOverride) (*config.Config, error) {
	overrides := flagOverrides(cmd.Flags(), append(append([]flagOverride{}, globalOverrides...), extra...))

	cfg, err := config.Load(viper.GetViper(), overrides)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	if !verbose {
		observability.ApplyCLILevel(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return cfg, nil
}

// loadStoreConfig loads only what the journal needs, so reading history
// works without API tokens.
func loadStoreConfig(cmd *cobra.Command) (config.StoreConfig, error) {
	cfg, err := config.Load(viper.GetViper(), flagOverrides(cmd.Flags(), globalOverrides))
	if err != nil {
		return config.StoreConfig{}, fmt.Errorf("%w: %w", errConfig, err)
	}
	if !verbose {
		observability.ApplyCLILevel(cfg.Logging.Level)
	}
	return cfg.Store, nil
}

// flagOverrides builds a nested settings map from the flags the user set.
func flagOverrides(flags *pflag.FlagSet, mapping []flagOverride) map[string]any {
	out := map[string]any{}
	for _, item := range mapping {
		flag := flags.Lookup(item.flag)
		if flag == nil || !flag.Changed {
			continue
		}

		var value any = flag.Value.String()
		if slice, ok := flag.Value.(pflag.SliceValue); ok {
			value = slice.GetSlice()
		}

		node := out
		for _, key := range item.path[:len(item.path)-1] {
			child, ok := node[key].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[key] = child
			}
			node = child
		}
		node[item.path[len(item.path)-1]] = value
	}
	return out
}

func progressWriter(show bool) io.Writer {
	if !show {
		return nil
	}
	return os.Stderr
}

// clientOptions turns the api section into client options for token.
func clientOptions(api config.APIConfig, token string, showProgress bool) pixelapi.Options {
	return pixelapi.Options{
		BaseURL:        api.BaseURL,
		Token:          token,
		UserAgent:      api.UserAgent,
		Timeout:        api.Timeout,
		DefaultDelay:   api.DefaultDelay,
		EndpointDelays: api.EndpointDelays,
		MaxRetries:     api.MaxRetries,
		Logger:         observability.CLILogger,
		Progress:       progressWriter(showProgress),
	}
}

// newPixelClient builds a client for the first configured token.
func newPixelClient(cfg *config.Config) (*pixelapi.Client, error) {
	tokens := cfg.API.AllTokens()
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: api token is required", errConfig)
	}
	return pixelapi.New(clientOptions(cfg.API, tokens[0], cfg.Draw.ShowProgress))
}

// newPixelPool builds one client per controlled task.
func newPixelPool(cfg *config.Config) (*pixelapi.Pool, error) {
	var controlled []int
	if len(cfg.Draw.ControlledTasks) > 0 {
		controlled = cfg.Draw.ControlledTasks
	}

	factory := func(token string, _ int) (*pixelapi.Client, error) {
		return pixelapi.New(clientOptions(cfg.API, token, cfg.Draw.ShowProgress))
	}
	return pixelapi.NewPool(cfg.API.AllTokens(), cfg.Draw.TotalTasks, controlled, factory, observability.CLILogger)
}

// parseCoordinate reads a non-negative canvas coordinate argument.
func parseCoordinate(name, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %d", name, n)
	}
	return n, nil
}
