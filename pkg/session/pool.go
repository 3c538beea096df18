package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/harness/pkg/config"
	"github.com/devicelab-dev/harness/pkg/core"
)

// Job is one unit of work run on a worker session.
type Job struct {
	Name string
	Run  func(ctx context.Context, s *Session) error
}

// JobResult is the outcome of one job.
type JobResult struct {
	Name     string
	WorkerID string
	Err      error
	Duration time.Duration
}

// Passed reports whether the job returned no error.
func (r JobResult) Passed() bool {
	return r.Err == nil
}

// RunResult aggregates job results in submission order.
type RunResult struct {
	Results  []JobResult
	Passed   int
	Failed   int
	Duration time.Duration // Wall clock
}

// DriverFactory opens a driver for one worker. The returned cleanup runs when
// the worker's session closes.
type DriverFactory func(ctx context.Context, workerID string) (core.Driver, func() error, error)

// Pool runs jobs on several worker sessions. Workers pull from a shared queue
// until it is empty, each with its own logger, capturer and driver.
type Pool struct {
	cfg       config.Config
	workers   int
	newDriver DriverFactory
	registry  prometheus.Registerer
	opts      []Option
}

// NewPool creates a pool of n workers (at least one). newDriver may be nil
// for API-only jobs. opts are applied to every worker session. registry must
// not already hold collectors for the pool's worker IDs.
func NewPool(cfg config.Config, n int, newDriver DriverFactory, registry prometheus.Registerer, opts ...Option) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{
		cfg:       cfg,
		workers:   n,
		newDriver: newDriver,
		registry:  registry,
		opts:      opts,
	}
}

// WorkerID returns the ID of worker i, following the pytest-xdist naming the
// log and artifact names already use.
func WorkerID(i int) string {
	return fmt.Sprintf("gw%d", i)
}

// Run executes jobs using a work queue pattern. All sessions are opened
// before any job starts; if one cannot be opened the others are closed and
// the error is returned.
func (p *Pool) Run(ctx context.Context, jobs []Job) (*RunResult, error) {
	if len(jobs) == 0 {
		return &RunResult{}, nil
	}
	n := p.workers
	if n > len(jobs) {
		n = len(jobs)
	}

	sessions, err := p.open(ctx, n)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	type workItem struct {
		job   Job
		index int
	}
	workQueue := make(chan workItem, len(jobs))
	for i, j := range jobs {
		workQueue <- workItem{job: j, index: i}
	}
	close(workQueue)

	results := make([]JobResult, len(jobs))
	// Job failures are results, not group errors: one failing job must not
	// cancel the others.
	var g errgroup.Group
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			defer s.Close()
			for item := range workQueue {
				// Each index is written by exactly one worker.
				results[item.index] = runJob(ctx, s, item.job)
			}
			return nil
		})
	}
	_ = g.Wait()

	run := &RunResult{Results: results, Duration: time.Since(startTime)}
	for _, r := range results {
		if r.Passed() {
			run.Passed++
		} else {
			run.Failed++
		}
	}
	return run, nil
}

func (p *Pool) open(ctx context.Context, n int) ([]*Session, error) {
	sessions := make([]*Session, 0, n)
	closeAll := func() {
		for _, s := range sessions {
			s.Close()
		}
	}

	for i := 0; i < n; i++ {
		cfg := p.cfg
		cfg.WorkerID = WorkerID(i)

		opts := append([]Option{WithRegistry(p.registry)}, p.opts...)
		var cleanup func() error
		if p.newDriver != nil {
			d, c, err := p.newDriver(ctx, cfg.WorkerID)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("worker %s: %w", cfg.WorkerID, err)
			}
			cleanup = c
			opts = append(opts, WithDriver(d, c))
		}

		s, err := New(cfg, opts...)
		if err != nil {
			// The session never took ownership of the driver.
			if cleanup != nil {
				cleanup()
			}
			closeAll()
			return nil, fmt.Errorf("worker %s: %w", cfg.WorkerID, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func runJob(ctx context.Context, s *Session, j Job) (r JobResult) {
	r = JobResult{Name: j.Name, WorkerID: s.WorkerID}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.Err = fmt.Errorf("job %s panicked: %v", j.Name, rec)
		}
		r.Duration = time.Since(start)
		if r.Err != nil {
			s.Log.Error("job failed", "job", j.Name, "error", r.Err)
		} else {
			s.Log.Info("job passed", "job", j.Name, "duration", r.Duration)
		}
	}()

	if err := ctx.Err(); err != nil {
		r.Err = &core.CancelledError{Target: j.Name, Cause: err}
		return r
	}
	r.Err = j.Run(ctx, s)
	return r
}

// Errors returns the failed job errors joined, or nil.
func (r *RunResult) Errors() error {
	var errs []error
	for _, jr := range r.Results {
		if jr.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", jr.Name, jr.Err))
		}
	}
	return errors.Join(errs...)
}
