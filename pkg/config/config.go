// Package config holds the harness configuration: defaults, a YAML workspace
// file and an environment overlay. The resulting Config is passed by value
// and never re-read; core packages do not look at the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/logger"
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	WorkerID string `yaml:"workerId,omitempty"`

	UI          UIConfig         `yaml:"ui"`
	API         APIConfig        `yaml:"api"`
	Credentials Credentials      `yaml:"credentials"`
	Logging     LoggingConfig    `yaml:"logging"`
	Artifacts   ArtifactsConfig  `yaml:"artifacts"`
	Retry       RetryConfig      `yaml:"retry"`
	Validation  ValidationConfig `yaml:"validation"`
}

// UIConfig configures the browser side.
type UIConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	Browser        string `yaml:"browser"`        // chromium, firefox or webkit
	TimeoutMs      int    `yaml:"timeoutMs"`      // Locator wait window and action timeout
	PollIntervalMs int    `yaml:"pollIntervalMs"` // Pause between resolution rounds
	Headless       bool   `yaml:"headless"`
	SlowMoMs       int    `yaml:"slowMoMs"`    // Delay inserted by the browser between operations
	TypeDelayMs    int    `yaml:"typeDelayMs"` // Per-key delay for typing
	FirstMatch     bool   `yaml:"firstMatch"`  // Accept the first of several matches
}

// APIConfig configures the HTTP side.
type APIConfig struct {
	BaseURL   string            `yaml:"baseUrl"`
	TimeoutMs int               `yaml:"timeoutMs"`
	Headers   map[string]string `yaml:"headers"`
}

// Credentials is the login pair used by UI checks.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Dir     string `yaml:"dir"`
	NoColor bool   `yaml:"noColor"`
}

// ArtifactsConfig configures failure diagnostics.
type ArtifactsConfig struct {
	ScreenshotDir       string `yaml:"screenshotDir"`
	core.ArtifactConfig `yaml:",inline"`
}

// RetryConfig is the default retry policy.
type RetryConfig struct {
	MaxAttempts int   `yaml:"maxAttempts"`
	BackoffMs   int   `yaml:"backoffMs"`  // Linear step
	ScheduleMs  []int `yaml:"scheduleMs"` // Explicit schedule; overrides backoffMs
}

// ValidationConfig configures response validation.
type ValidationConfig struct {
	PreviewLimit int `yaml:"previewLimit"` // Body preview bound in runes
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		UI: UIConfig{
			BaseURL:        "https://www.saucedemo.com",
			Browser:        "chromium",
			TimeoutMs:      10000,
			PollIntervalMs: 100,
			Headless:       true,
		},
		API: APIConfig{
			BaseURL:   "https://airportgap.com/",
			TimeoutMs: 10000,
			Headers: map[string]string{
				"Accept":     "application/json",
				"User-Agent": "ui-api-automation-tests/1.0",
			},
		},
		Credentials: Credentials{
			Username: "standard_user",
			Password: "secret_sauce",
		},
		Logging: LoggingConfig{
			Level: "INFO",
			Dir:   "logs",
		},
		Artifacts: ArtifactsConfig{
			ScreenshotDir:  "screenshots",
			ArtifactConfig: core.DefaultArtifactConfig(),
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BackoffMs:   250,
		},
		Validation: ValidationConfig{
			PreviewLimit: 500,
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try config.yaml first
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try config.yml
	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	cfg := Default()
	return &cfg, nil
}

// UITimeout returns the UI wait window.
func (c Config) UITimeout() time.Duration {
	return time.Duration(c.UI.TimeoutMs) * time.Millisecond
}

// PollInterval returns the pause between resolution rounds.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.UI.PollIntervalMs) * time.Millisecond
}

// TypeDelay returns the per-key typing delay.
func (c Config) TypeDelay() time.Duration {
	return time.Duration(c.UI.TypeDelayMs) * time.Millisecond
}

// APITimeout returns the HTTP request timeout.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutMs) * time.Millisecond
}

// Backoff returns the retry schedule as durations, or nil when the linear
// step applies.
func (c Config) Backoff() []time.Duration {
	if len(c.Retry.ScheduleMs) == 0 {
		return nil
	}
	out := make([]time.Duration, len(c.Retry.ScheduleMs))
	for i, ms := range c.Retry.ScheduleMs {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// BackoffStep returns the linear retry step.
func (c Config) BackoffStep() time.Duration {
	return time.Duration(c.Retry.BackoffMs) * time.Millisecond
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf(format, args...))
	}

	baseURLs := []struct{ name, raw string }{
		{"ui.baseUrl", c.UI.BaseURL},
		{"api.baseUrl", c.API.BaseURL},
	}
	for _, b := range baseURLs {
		u, err := url.Parse(b.raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("%s: %q is not an absolute URL", b.name, b.raw)
		}
	}
	switch strings.ToLower(c.UI.Browser) {
	case "chromium", "firefox", "webkit":
	default:
		return invalid("ui.browser: unknown browser %q", c.UI.Browser)
	}
	if c.UI.TimeoutMs < 0 || c.UI.PollIntervalMs < 0 || c.UI.SlowMoMs < 0 || c.UI.TypeDelayMs < 0 || c.API.TimeoutMs < 0 {
		return invalid("timeouts and delays must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return invalid("retry.maxAttempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffMs < 0 {
		return invalid("retry.backoffMs must not be negative")
	}
	for _, ms := range c.Retry.ScheduleMs {
		if ms < 0 {
			return invalid("retry.scheduleMs entries must not be negative")
		}
	}
	if c.Validation.PreviewLimit < 1 {
		return invalid("validation.previewLimit must be positive, got %d", c.Validation.PreviewLimit)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level: %v", err)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Credentials.Password != "" {
		c.Credentials.Password = "********"
	}
	headers := make(map[string]string, len(c.API.Headers))
	for k, v := range c.API.Headers {
		if strings.EqualFold(k, "Authorization") {
			v = "********"
		}
		headers[k] = v
	}
	c.API.Headers = headers
	return c
}
