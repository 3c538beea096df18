package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/devicelab-dev/harness/pkg/config"
	"github.com/devicelab-dev/harness/pkg/core"
)

// APIOptions configures an API request context.
type APIOptions struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string // Sent with every request
}

// APIOptionsFromConfig maps the API settings of cfg.
func APIOptionsFromConfig(cfg config.Config) APIOptions {
	return APIOptions{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.APITimeout(),
		Headers: cfg.API.Headers,
	}
}

// APIClient issues HTTP requests through Playwright's request context. Its
// responses satisfy core.Response and carry their URL.
type APIClient struct {
	req  playwright.APIRequestContext
	opts APIOptions
}

// NewAPIClient creates a request context.
func (r *Runtime) NewAPIClient(opts APIOptions) (*APIClient, error) {
	ctxOpts := playwright.APIRequestNewContextOptions{
		ExtraHttpHeaders: opts.Headers,
	}
	if opts.BaseURL != "" {
		ctxOpts.BaseURL = playwright.String(opts.BaseURL)
	}
	if opts.Timeout > 0 {
		ctxOpts.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}
	req, err := r.pw.Request.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create API request context: %w", err)
	}
	return &APIClient{req: req, opts: opts}, nil
}

// Request is one API call.
type Request struct {
	Method  string // Defaults to GET
	Path    string // Relative to the base URL
	Headers map[string]string
	Data    interface{} // JSON-encoded by Playwright
}

// Do sends req. Only transport failures are errors; any HTTP status is a
// response for the validator to judge.
func (c *APIClient) Do(ctx context.Context, req Request) (core.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = "GET"
	}

	opts := playwright.APIRequestContextFetchOptions{
		Method:  playwright.String(method),
		Headers: req.Headers,
		Timeout: timeoutMs(ctx, c.opts.Timeout),
	}
	if req.Data != nil {
		opts.Data = req.Data
	}

	resp, err := c.req.Fetch(strings.TrimPrefix(req.Path, "/"), opts)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

// Close disposes the request context.
func (c *APIClient) Close() error {
	return c.req.Dispose()
}
