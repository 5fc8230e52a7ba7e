// Package config provides centralized configuration management for pixelctl.
// Settings are layered:
// Layer 1: built-in defaults (SetDefaults)
// Layer 2: the user config file read by viper ($XDG_CONFIG_HOME/pixelctl/config.yaml)
// Layer 3: PIXELCTL_* environment variables and runtime overrides
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config and data directories.
	AppName = "pixelctl"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PIXELCTL_"

	// LegacyTokenEnv is read when no api token is configured.
	LegacyTokenEnv = "TOKEN"

	DefaultBaseURL   = "https://pixels.pythondiscord.com/"
	DefaultUserAgent = "pixelctl"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.token", "")
	v.SetDefault("api.tokens", []string{})
	v.SetDefault("api.user_agent", DefaultUserAgent)
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.default_delay", "0s")
	v.SetDefault("api.max_retries", 0)

	v.SetDefault("church.kind", "rick")
	v.SetDefault("church.base_url", "")
	v.SetDefault("church.token", "")
	v.SetDefault("church.repeat_delay", "0s")

	v.SetDefault("draw.guard_delay", "5s")
	v.SetDefault("draw.show_progress", true)
	v.SetDefault("draw.total_tasks", 0)
	v.SetDefault("draw.controlled_tasks", []int{})

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "simple")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.host", "localhost")
	v.SetDefault("status.port", 8080)
	v.SetDefault("status.read_timeout", "30s")
	v.SetDefault("status.write_timeout", "30s")
	v.SetDefault("status.shutdown_timeout", "10s")
}

// Load builds the typed configuration from v (defaults and config file),
// environment overrides and any runtime overrides, in that order.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	merged := v.AllSettings()

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	mergeSettings(merged, envOverrides)
	for _, overrides := range runtimeOverrides {
		mergeSettings(merged, overrides)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.API.Token) == "" {
		cfg.API.Token = strings.TrimSpace(os.Getenv(LegacyTokenEnv))
	}
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)

	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps PIXELCTL_{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := EnvPrefix

	return []EnvVarSpec{
		// Pixel API
		{Name: prefix + "API_BASE_URL", Path: []string{"api", "base_url"}, Type: EnvString},
		{Name: prefix + "API_TOKEN", Path: []string{"api", "token"}, Type: EnvString},
		// Comma separated, split by the slice decode hook
		{Name: prefix + "API_TOKENS", Path: []string{"api", "tokens"}, Type: EnvString},
		{Name: prefix + "API_USER_AGENT", Path: []string{"api", "user_agent"}, Type: EnvString},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "API_TIMEOUT", Path: []string{"api", "timeout"}, Type: EnvString},
		{Name: prefix + "API_DEFAULT_DELAY", Path: []string{"api", "default_delay"}, Type: EnvString},
		{Name: prefix + "API_MAX_RETRIES", Path: []string{"api", "max_retries"}, Type: EnvInt},

		// Church
		{Name: prefix + "CHURCH_KIND", Path: []string{"church", "kind"}, Type: EnvString},
		{Name: prefix + "CHURCH_BASE_URL", Path: []string{"church", "base_url"}, Type: EnvString},
		{Name: prefix + "CHURCH_TOKEN", Path: []string{"church", "token"}, Type: EnvString},
		{Name: prefix + "CHURCH_REPEAT_DELAY", Path: []string{"church", "repeat_delay"}, Type: EnvString},

		// Drawing
		{Name: prefix + "DRAW_GUARD_DELAY", Path: []string{"draw", "guard_delay"}, Type: EnvString},
		{Name: prefix + "DRAW_SHOW_PROGRESS", Path: []string{"draw", "show_progress"}, Type: EnvBool},
		{Name: prefix + "DRAW_TOTAL_TASKS", Path: []string{"draw", "total_tasks"}, Type: EnvInt},
		{Name: prefix + "DRAW_CONTROLLED_TASKS", Path: []string{"draw", "controlled_tasks"}, Type: EnvString},

		// Logging
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Metrics
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Status server
		{Name: prefix + "STATUS_ENABLED", Path: []string{"status", "enabled"}, Type: EnvBool},
		{Name: prefix + "STATUS_HOST", Path: []string{"status", "host"}, Type: EnvString},
		{Name: prefix + "STATUS_PORT", Path: []string{"status", "port"}, Type: EnvInt},
	}
}

// mergeSettings copies src into dst, descending into nested maps.
func mergeSettings(dst, src map[string]any) {
	for key, value := range src {
		nested, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		existing, ok := dst[key].(map[string]any)
		if !ok {
			existing = map[string]any{}
			dst[key] = existing
		}
		mergeSettings(existing, nested)
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
