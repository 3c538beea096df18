package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/driver/mock"
)

func TestPool_RunsEveryJobInOrder(t *testing.T) {
	cfg := testConfig(t)
	pool := NewPool(cfg, 3, nil, prometheus.NewRegistry(), WithSleep(noSleep))

	var jobs []Job
	for i := 0; i < 10; i++ {
		i := i
		jobs = append(jobs, Job{
			Name: fmt.Sprintf("job-%d", i),
			Run: func(context.Context, *Session) error {
				if i%4 == 0 {
					return fmt.Errorf("job %d failed", i)
				}
				return nil
			},
		})
	}

	run, err := pool.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, run.Results, 10)

	for i, r := range run.Results {
		assert.Equal(t, fmt.Sprintf("job-%d", i), r.Name)
		assert.Contains(t, []string{"gw0", "gw1", "gw2"}, r.WorkerID)
	}
	assert.Equal(t, 7, run.Passed)
	assert.Equal(t, 3, run.Failed)
	assert.Error(t, run.Errors())
}

func TestPool_SessionsAreIsolated(t *testing.T) {
	cfg := testConfig(t)

	var mu sync.Mutex
	drivers := map[string]*mock.Driver{}
	factory := func(_ context.Context, workerID string) (core.Driver, func() error, error) {
		d := mock.New(mock.Config{})
		mu.Lock()
		drivers[workerID] = d
		mu.Unlock()
		return d, nil, nil
	}

	seen := make(map[string]string)
	var seenMu sync.Mutex
	jobs := make([]Job, 6)
	for i := range jobs {
		jobs[i] = Job{
			Name: fmt.Sprintf("job-%d", i),
			Run: func(_ context.Context, s *Session) error {
				seenMu.Lock()
				defer seenMu.Unlock()
				if prev, ok := seen[s.WorkerID]; ok && prev != s.ID {
					return errors.New("worker switched sessions")
				}
				seen[s.WorkerID] = s.ID
				if s.Driver() != drivers[s.WorkerID] {
					return errors.New("session bound to another worker's driver")
				}
				return nil
			},
		}
	}

	run, err := NewPool(cfg, 2, factory, prometheus.NewRegistry()).Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 6, run.Passed, "errors: %v", run.Errors())
	assert.Len(t, drivers, 2)
}

func TestPool_NeverStartsMoreWorkersThanJobs(t *testing.T) {
	opened := 0
	factory := func(context.Context, string) (core.Driver, func() error, error) {
		opened++
		return mock.New(mock.Config{}), nil, nil
	}

	jobs := []Job{{Name: "only", Run: func(context.Context, *Session) error { return nil }}}
	_, err := NewPool(testConfig(t), 4, factory, nil).Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 1, opened)
}

func TestPool_DriverFailureClosesOpenedSessions(t *testing.T) {
	closed := 0
	factory := func(_ context.Context, workerID string) (core.Driver, func() error, error) {
		if workerID == WorkerID(1) {
			return nil, nil, errors.New("browser failed to launch")
		}
		return mock.New(mock.Config{}), func() error {
			closed++
			return nil
		}, nil
	}

	jobs := []Job{
		{Name: "a", Run: func(context.Context, *Session) error { return nil }},
		{Name: "b", Run: func(context.Context, *Session) error { return nil }},
	}
	_, err := NewPool(testConfig(t), 2, factory, nil).Run(context.Background(), jobs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gw1")
	assert.Equal(t, 1, closed)
}

func TestPool_RecoversPanickingJob(t *testing.T) {
	jobs := []Job{{Name: "boom", Run: func(context.Context, *Session) error { panic("unexpected") }}}

	run, err := NewPool(testConfig(t), 1, nil, nil).Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)
	assert.Contains(t, run.Results[0].Err.Error(), "panicked")
}

func TestPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	jobs := []Job{{Name: "skipped", Run: func(context.Context, *Session) error {
		ran = true
		return nil
	}}}

	run, err := NewPool(testConfig(t), 1, nil, nil).Run(ctx, jobs)
	require.NoError(t, err)
	assert.False(t, ran)

	var ce *core.CancelledError
	assert.True(t, errors.As(run.Results[0].Err, &ce))
}

func TestPool_NoJobs(t *testing.T) {
	run, err := NewPool(testConfig(t), 2, nil, nil).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, run.Results)
}
