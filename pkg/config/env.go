package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/devicelab-dev/harness/pkg/core"
)

// Environment variable names read by FromEnv.
const (
	EnvBaseURL           = "BASE_URL"
	EnvUITimeout         = "UI_TIMEOUT"
	EnvHeadless          = "HEADLESS"
	EnvSlowMo            = "SLOWMO"
	EnvBrowser           = "BROWSER"
	EnvAPIBaseURL        = "AIRPORT_GAP_BASE_URL"
	EnvAPITimeout        = "API_TIMEOUT"
	EnvUsername          = "SAUCE_USERNAME"
	EnvPassword          = "SAUCE_PASSWORD"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogDir            = "LOG_DIR"
	EnvScreenshotDir     = "SCREENSHOT_DIR"
	EnvRetryMaxAttempts  = "RETRY_MAX_ATTEMPTS"
	EnvRetryBackoff      = "RETRY_BACKOFF_MS"
	EnvWorkerID          = "HARNESS_WORKER"
	EnvPytestXdistWorker = "PYTEST_XDIST_WORKER"
)

// FromEnv overlays environment settings on base. lookup is usually
// os.LookupEnv; tests pass a map. Unset variables leave base untouched.
func FromEnv(base Config, lookup func(string) (string, bool)) (Config, error) {
	cfg := base
	o := overlay{lookup: lookup}

	o.str(EnvBaseURL, &cfg.UI.BaseURL)
	o.int(EnvUITimeout, &cfg.UI.TimeoutMs)
	o.bool(EnvHeadless, &cfg.UI.Headless)
	o.int(EnvSlowMo, &cfg.UI.SlowMoMs)
	o.str(EnvBrowser, &cfg.UI.Browser)
	o.str(EnvAPIBaseURL, &cfg.API.BaseURL)
	o.int(EnvAPITimeout, &cfg.API.TimeoutMs)
	o.str(EnvUsername, &cfg.Credentials.Username)
	o.str(EnvPassword, &cfg.Credentials.Password)
	o.str(EnvLogLevel, &cfg.Logging.Level)
	o.str(EnvLogDir, &cfg.Logging.Dir)
	o.str(EnvScreenshotDir, &cfg.Artifacts.ScreenshotDir)
	o.int(EnvRetryMaxAttempts, &cfg.Retry.MaxAttempts)
	o.int(EnvRetryBackoff, &cfg.Retry.BackoffMs)
	o.str(EnvPytestXdistWorker, &cfg.WorkerID)
	o.str(EnvWorkerID, &cfg.WorkerID)

	if o.err != nil {
		return base, o.err
	}
	return cfg, nil
}

type overlay struct {
	lookup func(string) (string, bool)
	err    error
}

func (o *overlay) get(name string) (string, bool) {
	if o.err != nil {
		return "", false
	}
	v, ok := o.lookup(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (o *overlay) str(name string, dst *string) {
	if v, ok := o.get(name); ok {
		*dst = v
	}
}

func (o *overlay) int(name string, dst *int) {
	v, ok := o.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		o.err = core.ErrInvalidConfig.WithMessage(fmt.Sprintf("%s: %q is not an integer", name, v)).WithCause(err)
		return
	}
	*dst = n
}

func (o *overlay) bool(name string, dst *bool) {
	v, ok := o.get(name)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		o.err = core.ErrInvalidConfig.WithMessage(fmt.Sprintf("%s: %q is not a boolean", name, v))
	}
}
