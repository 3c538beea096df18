// Package session wires one worker's logger, capturer, resolver, retry
// executor and interactor from a frozen configuration. Sessions share no
// mutable state; run several in parallel with a Pool.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/devicelab-dev/harness/pkg/config"
	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/diagnostics"
	"github.com/devicelab-dev/harness/pkg/interact"
	"github.com/devicelab-dev/harness/pkg/locator"
	"github.com/devicelab-dev/harness/pkg/logger"
	"github.com/devicelab-dev/harness/pkg/metrics"
	"github.com/devicelab-dev/harness/pkg/retry"
	"github.com/devicelab-dev/harness/pkg/validate"
)

// Session is one worker's execution context.
type Session struct {
	ID       string
	WorkerID string
	Config   config.Config

	Log      *logger.Logger
	Metrics  *metrics.Recorder
	Capturer *diagnostics.Capturer
	Exec     *retry.Executor

	// Set only when the session has a driver.
	Resolver *locator.Resolver
	UI       *interact.Interactor

	driver  core.Driver
	cleanup func() error
}

type options struct {
	driver   core.Driver
	cleanup  func() error
	registry prometheus.Registerer
	console  io.Writer
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Session.
type Option func(*options)

// WithDriver attaches a UI driver. cleanup, if set, runs on Close.
func WithDriver(d core.Driver, cleanup func() error) Option {
	return func(o *options) {
		o.driver = d
		o.cleanup = cleanup
	}
}

// WithRegistry registers the session's collectors on reg, labelled with the
// worker ID. Without it the session uses a private registry.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithConsole adds a console log sink.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithClock replaces time.Now for log and artifact names.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSleep replaces the retry backoff sleep (for testing).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

// New builds a session from cfg. The caller must Close it.
func New(cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, core.ErrInvalidConfig.WithCause(err)
	}
	log, err := logger.New(logger.Config{
		Level:    level,
		Dir:      cfg.Logging.Dir,
		WorkerID: cfg.WorkerID,
		Console:  o.console,
		NoColor:  cfg.Logging.NoColor,
		Now:      o.now,
	})
	if err != nil {
		return nil, fmt.Errorf("session logger: %w", err)
	}

	s := &Session{
		ID:       uuid.NewString(),
		WorkerID: cfg.WorkerID,
		Config:   cfg,
		Log:      log,
		driver:   o.driver,
		cleanup:  o.cleanup,
	}
	s.Metrics = metrics.New(prometheus.WrapRegistererWith(prometheus.Labels{"worker": workerLabel(cfg.WorkerID)}, o.registry))

	s.Capturer = diagnostics.New(diagnostics.Config{
		ScreenshotDir: cfg.Artifacts.ScreenshotDir,
		LogDir:        cfg.Logging.Dir,
		WorkerID:      cfg.WorkerID,
		Artifacts:     cfg.Artifacts.ArtifactConfig,
	},
		diagnostics.WithLogger(log.With("component", "diagnostics")),
		diagnostics.WithMetrics(s.Metrics),
		diagnostics.WithClock(o.now),
	)

	execOpts := []retry.Option{
		retry.WithPolicy(Policy(cfg)),
		retry.WithCapturer(s.Capturer),
		retry.WithLogger(log.With("component", "retry")),
		retry.WithMetrics(s.Metrics),
	}
	if o.sleep != nil {
		execOpts = append(execOpts, retry.WithSleep(o.sleep))
	}
	s.Exec = retry.NewExecutor(execOpts...)

	if o.driver != nil {
		s.Resolver = locator.NewResolver(o.driver, locator.Options{
			Timeout:      cfg.UITimeout(),
			PollInterval: cfg.PollInterval(),
			FirstMatch:   cfg.UI.FirstMatch,
		},
			locator.WithLogger(log.With("component", "locator")),
			locator.WithMetrics(s.Metrics),
		)
		s.UI = interact.New(o.driver, s.Resolver, s.Exec, interact.WithTypeDelay(cfg.TypeDelay()))
	}

	log.Info("session started", "session", s.ID, "log", log.Path())
	return s, nil
}

// Policy maps the retry settings of cfg to a retry.Policy. An explicit
// schedule wins over the linear step.
func Policy(cfg config.Config) retry.Policy {
	p := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     retry.Linear{Step: cfg.BackoffStep()},
	}
	if s := cfg.Backoff(); s != nil {
		p.Backoff = retry.Schedule(s)
	}
	return p
}

// Driver returns the attached driver, or nil.
func (s *Session) Driver() core.Driver {
	return s.driver
}

// Snapshot saves an on-demand screenshot of the attached driver.
func (s *Session) Snapshot(ctx context.Context, name string) (string, error) {
	if s.driver == nil {
		return "", core.ErrUnsupportedAction.WithMessage("session has no driver")
	}
	return s.Capturer.Snapshot(ctx, s.driver, name)
}

// Envelope wraps resp with the session's preview limit and metrics.
func (s *Session) Envelope(resp core.Response) *validate.Envelope {
	return validate.New(resp,
		validate.WithPreviewLimit(s.Config.Validation.PreviewLimit),
		validate.WithMetrics(s.Metrics),
	)
}

// Call sends an API request under retry and returns the response envelope.
// send must issue a fresh request on every attempt. Transport errors are
// retried per the policy; a response whose validation failure the policy
// deems retryable (see retry.OnStatus) is retried too. Other validation
// failures are left for the caller to discover through Parse.
func (s *Session) Call(ctx context.Context, target string, p retry.Policy, send func(ctx context.Context) (core.Response, error)) (*validate.Envelope, retry.Result, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = s.Exec.Policy().Retryable
	}
	op := retry.Op{Target: target, Policy: p}
	return retry.Do(ctx, s.Exec, op, func(ctx context.Context, attempt int) (*validate.Envelope, error) {
		resp, err := send(ctx)
		if err != nil {
			return nil, err
		}
		env := s.Envelope(resp)
		if _, verr := env.Parse(); verr != nil && retryable(verr) {
			return nil, verr
		}
		s.Log.Debug("response received", "target", target, "attempt", attempt, "status", env.Status())
		return env, nil
	})
}

// Close releases the driver and flushes the logger. It is safe to call
// more than once.
func (s *Session) Close() error {
	var errs []error
	if s.cleanup != nil {
		errs = append(errs, s.cleanup())
		s.cleanup = nil
	}
	s.Log.Info("session closed", "session", s.ID)
	errs = append(errs, s.Log.Close())
	return errors.Join(errs...)
}

func workerLabel(id string) string {
	if id == "" {
		return "main"
	}
	return id
}
