package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/driver/browser"
	"github.com/devicelab-dev/harness/pkg/retry"
	"github.com/devicelab-dev/harness/pkg/session"
	"github.com/devicelab-dev/harness/pkg/validate"
)

var apiCommand = &cli.Command{
	Name:      "api",
	Usage:     "Call API endpoints and validate their JSON responses",
	ArgsUsage: "<path>...",
	Description: `Each path is requested relative to api.baseUrl and becomes one job.
Non-2xx statuses and malformed bodies fail with a bounded body preview.

Examples:
  harness api api/airports --count data=30
  harness api api/airports/KIX api/airports/NRT --require data.attributes.name
  harness api api/airports/distance --method POST \
    --data '{"from":"KIX","to":"NRT"}' --require data.attributes.kilometers
  harness api api/airports/XXX --expect-status 404`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "method",
			Aliases: []string{"X"},
			Usage:   "HTTP method",
			Value:   "GET",
		},
		&cli.StringFlag{
			Name:  "data",
			Usage: "JSON request body",
		},
		&cli.StringSliceFlag{
			Name:    "header",
			Aliases: []string{"H"},
			Usage:   "Extra request header (Name: value)",
		},
		&cli.StringSliceFlag{
			Name:  "require",
			Usage: "Dotted path that must be present in the body",
		},
		&cli.StringSliceFlag{
			Name:  "count",
			Usage: "Expected array length (path=n)",
		},
		&cli.IntFlag{
			Name:  "expect-status",
			Usage: "Expected status code (default: any 2xx)",
		},
		&cli.IntSliceFlag{
			Name:  "retry-status",
			Usage: "Retry responses with this status (repeatable)",
		},
	},
	Action: runAPI,
}

// apiCheck is what one api job verifies on a response.
type apiCheck struct {
	status  int // 0 means any 2xx
	require []string
	counts  []countCheck
}

type countCheck struct {
	path string
	n    int
}

func runAPI(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one API path is required")
	}

	headers, err := parseHeaders(c.StringSlice("header"))
	if err != nil {
		return err
	}
	counts, err := parseCounts(c.StringSlice("count"))
	if err != nil {
		return err
	}
	var data interface{}
	if body := c.String("data"); body != "" {
		if !json.Valid([]byte(body)) {
			return fmt.Errorf("--data is not valid JSON")
		}
		data = body
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}
	check := apiCheck{
		status:  c.Int("expect-status"),
		require: c.StringSlice("require"),
		counts:  counts,
	}
	policy := retry.Policy{}
	if codes := c.IntSlice("retry-status"); len(codes) > 0 {
		policy.Retryable = retry.Any(retry.DefaultRetryable, retry.OnStatus(codes...))
	}

	env, err := newRunEnv(c)
	if err != nil {
		return err
	}
	rt, err := startRuntime()
	if err != nil {
		return err
	}
	defer rt.Stop()

	clients := &apiClients{rt: rt, opts: browser.APIOptionsFromConfig(env.cfg)}
	defer clients.close()

	method := strings.ToUpper(c.String("method"))
	jobs := make([]session.Job, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		path := path
		req := browser.Request{Method: method, Path: path, Headers: headers, Data: data}
		jobs = append(jobs, session.Job{
			Name: path,
			Run: func(ctx context.Context, s *session.Session) error {
				client, err := clients.get(s.WorkerID)
				if err != nil {
					return err
				}
				resp, _, err := s.Call(ctx, method+" "+path, policy, func(ctx context.Context) (core.Response, error) {
					return client.Do(ctx, req)
				})
				if err != nil {
					return err
				}
				return check.verify(resp)
			},
		})
	}
	return env.execute(c, "API", nil, jobs)
}

// verify applies the status, presence and count checks in that order.
func (a apiCheck) verify(env *validate.Envelope) error {
	if a.status != 0 {
		if env.Status() != a.status {
			return &core.ValidationFailure{
				Reason:      core.ReasonBadStatus,
				URL:         env.URL(),
				StatusCode:  env.Status(),
				Detail:      fmt.Sprintf("expected status %d", a.status),
				BodyPreview: env.Preview(),
			}
		}
		if a.status < 200 || a.status > 299 {
			return nil
		}
	}
	if _, err := env.Parse(); err != nil {
		return err
	}
	if err := env.Require(a.require...); err != nil {
		return err
	}
	for _, cc := range a.counts {
		if err := env.ExpectCount(cc.path, cc.n); err != nil {
			return err
		}
	}
	return nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, want Name: value", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

func parseCounts(raw []string) ([]countCheck, error) {
	out := make([]countCheck, 0, len(raw))
	for _, s := range raw {
		path, num, ok := strings.Cut(s, "=")
		n, err := strconv.Atoi(strings.TrimSpace(num))
		if !ok || path == "" || err != nil || n < 0 {
			return nil, fmt.Errorf("invalid count %q, want path=n", s)
		}
		out = append(out, countCheck{path: strings.TrimSpace(path), n: n})
	}
	return out, nil
}

// apiClients holds one request context per worker, created on first use.
type apiClients struct {
	rt   *browser.Runtime
	opts browser.APIOptions

	mu      sync.Mutex
	clients map[string]*browser.APIClient
}

func (a *apiClients) get(workerID string) (*browser.APIClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[workerID]; ok {
		return c, nil
	}
	c, err := a.rt.NewAPIClient(a.opts)
	if err != nil {
		return nil, err
	}
	if a.clients == nil {
		a.clients = make(map[string]*browser.APIClient)
	}
	a.clients[workerID] = c
	return c, nil
}

func (a *apiClients) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, c := range a.clients {
		errs = append(errs, c.Close())
	}
	a.clients = nil
	return errors.Join(errs...)
}
