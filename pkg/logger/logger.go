// Package logger provides the harness's leveled, structured logger. Each
// worker owns one Logger writing JSON lines to its own file and, optionally,
// colored lines to a console.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"

	"github.com/devicelab-dev/harness/pkg/paths"
)

// Levels, lowest to highest.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Config controls where a Logger writes.
type Config struct {
	Level    slog.Level
	Dir      string    // Log directory; empty disables the file sink
	WorkerID string    // Appended to the file name so workers never share a file
	Console  io.Writer // Optional console sink
	NoColor  bool      // Plain console output

	// Now is used for the file name timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Logger is a handle to one configured sink set. The zero value is not
// usable; use New or Nop.
type Logger struct {
	log  *slog.Logger
	file *fileSink
	path string
}

// New creates the sinks described by cfg. The caller must Close the logger
// when the worker is done.
func New(cfg Config) (*Logger, error) {
	var handlers []slog.Handler
	l := &Logger{}

	if cfg.Dir != "" {
		if err := paths.EnsureDir(cfg.Dir); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		now := time.Now
		if cfg.Now != nil {
			now = cfg.Now
		}
		l.path = filepath.Join(cfg.Dir, FileName(now(), cfg.WorkerID))

		f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		l.file = &fileSink{f: f}
		handlers = append(handlers, slog.NewJSONHandler(l.file, &slog.HandlerOptions{Level: cfg.Level}))
	}

	if cfg.Console != nil {
		handlers = append(handlers, tint.NewHandler(cfg.Console, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: time.TimeOnly,
			NoColor:    cfg.NoColor,
		}))
	}

	var h slog.Handler = discardHandler{}
	switch len(handlers) {
	case 0:
	case 1:
		h = handlers[0]
	default:
		h = multiHandler(handlers)
	}
	l.log = slog.New(h)
	if cfg.WorkerID != "" {
		l.log = l.log.With("worker", cfg.WorkerID)
	}
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{log: slog.New(discardHandler{})}
}

// FileName returns the per-run log file name, e.g. test_run_20240102_030405_w1.log.
func FileName(ts time.Time, workerID string) string {
	name := "test_run_" + ts.UTC().Format("20060102_150405")
	if workerID != "" {
		name += "_" + paths.SanitizeName(workerID)
	}
	return name + ".log"
}

// ParseLevel maps DEBUG, INFO, WARN/WARNING and ERROR (any case) to a level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Path returns the log file path, or "" when there is no file sink.
func (l *Logger) Path() string {
	return l.path
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level slog.Level) bool {
	return l.log.Enabled(context.Background(), level)
}

// Log writes msg with fields at level. Nothing is formatted when level is
// below the threshold.
func (l *Logger) Log(level slog.Level, msg string, fields map[string]any) {
	if !l.Enabled(level) {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	l.log.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug logs at DEBUG with alternating key/value args.
func (l *Logger) Debug(msg string, args ...any) {
	l.log.Debug(msg, args...)
}

// Info logs at INFO.
func (l *Logger) Info(msg string, args ...any) {
	l.log.Info(msg, args...)
}

// Warn logs at WARN.
func (l *Logger) Warn(msg string, args ...any) {
	l.log.Warn(msg, args...)
}

// Error logs at ERROR.
func (l *Logger) Error(msg string, args ...any) {
	l.log.Error(msg, args...)
}

// With returns a child logger that adds args to every record and shares the
// parent's sinks. Closing the parent closes the child's file too.
func (l *Logger) With(args ...any) *Logger {
	c := *l
	c.log = l.log.With(args...)
	return &c
}

// Flush syncs the file sink to disk.
func (l *Logger) Flush() error {
	if l.file == nil {
		return nil
	}
	return l.file.sync()
}

// Close flushes and closes the file sink. Records logged after Close are
// dropped. Close is safe to call more than once.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.close()
}

// fileSink serializes writes and turns writes after close into no-ops.
type fileSink struct {
	mu     sync.Mutex
	f      *os.File
	closed bool
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return len(p), nil
	}
	return s.f.Write(p)
}

func (s *fileSink) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.f.Sync()
}

func (s *fileSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	syncErr := s.f.Sync()
	if err := s.f.Close(); err != nil {
		return err
	}
	return syncErr
}
