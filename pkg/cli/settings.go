package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/harness/pkg/config"
)

const (
	defaultEnvFile = ".env"
	metaArgs       = "args"
)

// loadConfig builds the run configuration. Precedence, lowest first:
// defaults, config file, dotenv file, process environment, flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	if path == "" {
		path = config.Home()
	}

	var (
		loaded *config.Config
		err    error
	)
	if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
		loaded, err = config.LoadFromDir(path)
	} else {
		loaded, err = config.Load(path)
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	lookup, err := envLookup(c.String("env-file"), c.IsSet("env-file"))
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.FromEnv(*loaded, lookup)
	if err != nil {
		return config.Config{}, err
	}

	applyFlags(c, &cfg)
	cfg.Logging.Dir = config.ResolveDir(cfg.Logging.Dir)
	cfg.Artifacts.ScreenshotDir = config.ResolveDir(cfg.Artifacts.ScreenshotDir)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-dir") {
		cfg.Logging.Dir = c.String("log-dir")
	}
	if c.IsSet("screenshot-dir") {
		cfg.Artifacts.ScreenshotDir = c.String("screenshot-dir")
	}
	if c.IsSet("browser") {
		cfg.UI.Browser = c.String("browser")
	}
	if c.Bool("headed") {
		cfg.UI.Headless = false
	}
	if c.IsSet("retries") {
		cfg.Retry.MaxAttempts = c.Int("retries")
	}
	if c.IsSet("backoff-ms") {
		cfg.Retry.BackoffMs = c.Int("backoff-ms")
		cfg.Retry.ScheduleMs = nil
	}
	if c.Bool("no-ansi") {
		cfg.Logging.NoColor = true
		color.NoColor = true
	}
}

// envLookup returns a lookup that prefers non-blank process environment
// values and falls back to the dotenv file. A missing default file is not
// an error.
func envLookup(path string, explicit bool) (func(string) (string, bool), error) {
	fileEnv := map[string]string{}
	if path != "" {
		m, err := godotenv.Read(path)
		switch {
		case err == nil:
			fileEnv = m
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
		}
	}

	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}, nil
}
