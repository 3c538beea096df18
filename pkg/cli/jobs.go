package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/harness/pkg/config"
	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/driver/browser"
	"github.com/devicelab-dev/harness/pkg/report"
	"github.com/devicelab-dev/harness/pkg/session"
)

// runEnv is the per-invocation state shared by the job commands.
type runEnv struct {
	cfg      config.Config
	runID    string
	out      *printer
	registry *prometheus.Registry
}

func newRunEnv(c *cli.Context) (*runEnv, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return &runEnv{
		cfg:      cfg,
		runID:    uuid.NewString(),
		out:      newPrinter(c.App.Writer, cfg.Logging.NoColor),
		registry: prometheus.NewRegistry(),
	}, nil
}

// execute runs jobs on a session pool and reports them. It returns an error
// when any job failed.
func (e *runEnv) execute(c *cli.Context, title string, newDriver session.DriverFactory, jobs []session.Job) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workers := c.Int("workers")
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers < 1 {
		workers = 1
	}
	e.out.header(title, e.runID, workers)

	pool := session.NewPool(e.cfg, workers, newDriver, e.registry)
	start := time.Now()
	run, err := pool.Run(ctx, jobs)
	if err != nil {
		return err
	}

	for _, r := range run.Results {
		e.out.result(r)
	}
	e.out.summary(run)

	if dir := c.String("report-dir"); dir != "" {
		idx := report.Build(run, report.BuildConfig{
			RunID:     e.runID,
			Command:   c.Command.Name,
			Version:   Version,
			Workers:   workers,
			StartTime: start,
		})
		if _, err := report.Write(dir, idx); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		if err := report.GenerateAllure(dir); err != nil {
			return fmt.Errorf("failed to write allure results: %w", err)
		}
	}
	if path := c.String("metrics-file"); path != "" {
		if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	if run.Failed == 0 {
		return nil
	}
	if hint := rerunHint(c, run); hint != "" {
		e.out.rerun(hint)
	}
	return fmt.Errorf("%d of %d failed", run.Failed, len(run.Results))
}

func rerunHint(c *cli.Context, run *session.RunResult) string {
	args, _ := c.App.Metadata[metaArgs].([]string)
	if c.NArg() == 0 {
		return ""
	}
	var failed []string
	for _, r := range run.Results {
		if !r.Passed() {
			failed = append(failed, r.Name)
		}
	}
	return rerunCommand(args, c.NArg(), failed)
}

// startRuntime starts the Playwright driver from the harness drivers dir.
func startRuntime() (*browser.Runtime, error) {
	return browser.Start(config.DriversDir("playwright"))
}

// browserFactory launches one browser per worker.
func browserFactory(rt *browser.Runtime, opts browser.Options) session.DriverFactory {
	return func(ctx context.Context, workerID string) (core.Driver, func() error, error) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		b, err := rt.Launch(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("worker %s: %w", workerID, err)
		}
		return b, b.Close, nil
	}
}
