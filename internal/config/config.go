package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, then the user config file, then
// PIXELCTL_* environment variables, then command-line flags.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Church  ChurchConfig  `mapstructure:"church"`
	Draw    DrawConfig    `mapstructure:"draw"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Status  StatusConfig  `mapstructure:"status"`
}

// APIConfig configures the pixel canvas API client.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`

	// Token is the primary bearer token. Tokens lists extra tokens for
	// multi-task drawing.
	Token  string   `mapstructure:"token"`
	Tokens []string `mapstructure:"tokens"`

	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// DefaultDelay applies when a response carries no rate limit headers.
	DefaultDelay   time.Duration            `mapstructure:"default_delay"`
	EndpointDelays map[string]time.Duration `mapstructure:"endpoint_delays"`

	// MaxRetries bounds 429 retries per request; 0 retries forever.
	MaxRetries int `mapstructure:"max_retries"`
}

// AllTokens returns Token followed by Tokens, without blanks or repeats.
func (c APIConfig) AllTokens() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, token := range append([]string{c.Token}, c.Tokens...) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// ChurchConfig selects and configures a church task server.
type ChurchConfig struct {
	Kind        string        `mapstructure:"kind"`
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"`
	RepeatDelay time.Duration `mapstructure:"repeat_delay"`
}

// DrawConfig contains drawing defaults.
type DrawConfig struct {
	GuardDelay      time.Duration `mapstructure:"guard_delay"`
	ShowProgress    bool          `mapstructure:"show_progress"`
	TotalTasks      int           `mapstructure:"total_tasks"`
	ControlledTasks []int         `mapstructure:"controlled_tasks"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated Prometheus exporter port.
	Port int `mapstructure:"port"`
}

// StatusConfig configures the local status server started by long draws.
type StatusConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Validate checks the settings needed to talk to the pixel API.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var problems []string

	if len(c.API.AllTokens()) == 0 {
		problems = append(problems, "api.token is required (set PIXELCTL_API_TOKEN or TOKEN)")
	}
	if err := validateHTTPURL(c.API.BaseURL); err != nil {
		problems = append(problems, "api.base_url "+err.Error())
	}
	if c.API.Timeout < 0 {
		problems = append(problems, "api.timeout must be >= 0")
	}
	if c.API.DefaultDelay < 0 {
		problems = append(problems, "api.default_delay must be >= 0")
	}
	for endpoint, delay := range c.API.EndpointDelays {
		if delay < 0 {
			problems = append(problems, fmt.Sprintf("api.endpoint_delays[%s] must be >= 0", endpoint))
		}
	}
	if c.API.MaxRetries < 0 {
		problems = append(problems, "api.max_retries must be >= 0")
	}
	if c.Church.RepeatDelay < 0 {
		problems = append(problems, "church.repeat_delay must be >= 0")
	}
	if c.Draw.GuardDelay < 0 {
		problems = append(problems, "draw.guard_delay must be >= 0")
	}
	if c.Draw.TotalTasks < 0 {
		problems = append(problems, "draw.total_tasks must be >= 0")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("must use http or https, got %q", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("must include a host, got %q", raw)
	}
	return nil
}
