// Package diagnostics captures failure artifacts for operations that failed
// terminally: one screenshot and one structured JSON-lines record.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/logger"
	"github.com/devicelab-dev/harness/pkg/metrics"
	"github.com/devicelab-dev/harness/pkg/paths"
)

// DefaultScreenshotTimeout bounds a single screenshot.
const DefaultScreenshotTimeout = 10 * time.Second

// Config controls where and what the Capturer writes.
type Config struct {
	ScreenshotDir     string
	LogDir            string // Directory of the failures JSON-lines file
	WorkerID          string
	Artifacts         core.ArtifactConfig
	ScreenshotTimeout time.Duration
}

// Capturer writes diagnostics. It is safe for concurrent use, and several
// capturers may share directories: file names carry a timestamp, the worker
// ID and a per-capturer sequence number.
type Capturer struct {
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	seq atomic.Uint64
	mu  sync.Mutex // Serializes appends to the records file
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithLogger sets the logger that receives terminal failures and capture
// warnings.
func WithLogger(l *logger.Logger) Option {
	return func(c *Capturer) { c.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Capturer) { c.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Capturer) { c.now = now }
}

// New creates a Capturer. Directories are created on first use.
func New(cfg Config, opts ...Option) *Capturer {
	if cfg.ScreenshotTimeout <= 0 {
		cfg.ScreenshotTimeout = DefaultScreenshotTimeout
	}
	c := &Capturer{cfg: cfg, log: logger.Nop(), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RecordsPath returns the JSON-lines file receiving failure records.
func (c *Capturer) RecordsPath() string {
	name := "failures.jsonl"
	if c.cfg.WorkerID != "" {
		name = "failures_" + paths.SanitizeName(c.cfg.WorkerID) + ".jsonl"
	}
	return filepath.Join(c.cfg.LogDir, name)
}

// Capture builds the report for fc and writes its artifacts. It never fails:
// problems writing artifacts are logged at WARN and the affected path is left
// empty in the report.
func (c *Capturer) Capture(ctx context.Context, fc core.FailureContext) (report core.FailureReport) {
	ts := c.now().UTC()
	report = core.NewFailureReport(fc, ts)
	report.WorkerID = c.cfg.WorkerID
	report.LogPath = c.log.Path()

	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("diagnostic capture panicked", "target", fc.Target, "panic", fmt.Sprint(r))
		}
	}()

	if fc.Screen != nil && c.cfg.Artifacts.ShouldCaptureScreenshot() {
		path, err := c.safeScreenshot(ctx, fc.Screen, fc.Target, ts)
		c.metrics.Capture(core.AttachmentScreenshot, err)
		if err != nil {
			c.log.Warn("screenshot capture failed", "target", fc.Target, "error", err)
		} else {
			report.ArtifactPath = path
			report.Attachments = append(report.Attachments, core.NewScreenshotAttachment(path, nil))
		}
	}

	if c.cfg.Artifacts.ShouldWriteFailureLog() && c.cfg.LogDir != "" {
		line, err := c.appendRecord(report)
		c.metrics.Capture(core.AttachmentFailureLog, err)
		if err != nil {
			c.log.Warn("failure record not written", "target", fc.Target, "error", err)
		} else {
			report.Attachments = append(report.Attachments, core.NewFailureLogAttachment(c.RecordsPath(), line))
		}
	}
	if report.LogPath != "" {
		report.Attachments = append(report.Attachments, core.NewLogAttachment(report.LogPath))
	}

	c.log.Error("operation failed",
		"target", report.Target,
		"terminal", report.Terminal.String(),
		"attempts", len(report.Attempts),
		"artifact", report.ArtifactPath,
		"error", report.LastError(),
	)
	return report
}

// Snapshot saves a screenshot of src on request, outside any failure. The
// file is named like failure screenshots with name as the identifier.
func (c *Capturer) Snapshot(ctx context.Context, src core.ScreenshotSource, name string) (string, error) {
	if src == nil {
		return "", core.ErrUnsupportedAction.WithMessage("driver cannot take screenshots")
	}
	path, err := c.safeScreenshot(ctx, src, name, c.now().UTC())
	c.metrics.Capture(core.AttachmentScreenshot, err)
	if err != nil {
		return "", err
	}
	c.log.Info("screenshot saved", "name", name, "path", path)
	return path, nil
}

// safeScreenshot turns a panicking screenshot source into an error so the
// failure record is still written.
func (c *Capturer) safeScreenshot(ctx context.Context, src core.ScreenshotSource, id string, ts time.Time) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			path, err = "", fmt.Errorf("screenshot panicked: %v", r)
		}
	}()
	return c.screenshot(ctx, src, id, ts)
}

// maxNameTries bounds the search for a free file name.
const maxNameTries = 100

func (c *Capturer) screenshot(ctx context.Context, src core.ScreenshotSource, id string, ts time.Time) (string, error) {
	if c.cfg.ScreenshotDir == "" {
		return "", fmt.Errorf("no screenshot directory configured")
	}
	if err := paths.EnsureDir(c.cfg.ScreenshotDir); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ScreenshotTimeout)
	defer cancel()
	data, err := src.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("take screenshot: %w", err)
	}

	// Another process with the same worker ID may hold a name; the next
	// sequence number is tried instead.
	for i := 0; i < maxNameTries; i++ {
		path := filepath.Join(c.cfg.ScreenshotDir, c.fileName(id, ts))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create screenshot file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write screenshot: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close screenshot: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free screenshot name for %s after %d tries", id, maxNameTries)
}

// fileName returns <UTC timestamp>_<worker>_<seq>_<target>.png.
func (c *Capturer) fileName(target string, ts time.Time) string {
	worker := c.cfg.WorkerID
	if worker == "" {
		worker = "main"
	}
	seq := c.seq.Add(1)
	return fmt.Sprintf("%s_%s_%04d_%s.png",
		ts.Format("20060102T150405.000Z"),
		paths.SanitizeName(worker),
		seq,
		paths.SanitizeName(target),
	)
}
