// Package validate checks HTTP responses defensively: status, JSON body and
// required fields, always reporting a bounded preview of the raw body.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/metrics"
)

// Envelope wraps one response. The body is read once at construction and
// parsed at most once, on first use.
type Envelope struct {
	status       int
	headers      map[string]string
	body         []byte
	bodyErr      error
	url          string
	previewLimit int
	metrics      *metrics.Recorder

	once    sync.Once
	parsed  ldvalue.Value
	failure *core.ValidationFailure
}

// Option configures an Envelope.
type Option func(*Envelope)

// WithURL sets the request URL reported in failures.
func WithURL(url string) Option {
	return func(e *Envelope) { e.url = url }
}

// WithPreviewLimit sets the body preview bound in runes.
func WithPreviewLimit(n int) Option {
	return func(e *Envelope) {
		if n > 0 {
			e.previewLimit = n
		}
	}
}

// WithMetrics records the parse result.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Envelope) { e.metrics = m }
}

// New reads resp into an Envelope. A body read error is kept and reported as
// a malformed body on Parse.
func New(resp core.Response, opts ...Option) *Envelope {
	body, err := resp.Body()
	e := FromBytes(resp.Status(), resp.Headers(), body, opts...)
	e.bodyErr = err
	if u, ok := resp.(interface{ URL() string }); ok && e.url == "" {
		e.url = u.URL()
	}
	return e
}

// FromBytes builds an Envelope from already-read parts.
func FromBytes(status int, headers map[string]string, body []byte, opts ...Option) *Envelope {
	e := &Envelope{
		status:       status,
		headers:      headers,
		body:         body,
		previewLimit: DefaultPreviewLimit,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// FromHTTP reads and closes resp.Body.
func FromHTTP(resp *http.Response, opts ...Option) (*Envelope, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	if resp.Request != nil && resp.Request.URL != nil {
		opts = append([]Option{WithURL(resp.Request.URL.String())}, opts...)
	}
	return FromBytes(resp.StatusCode, headers, body, opts...), nil
}

// Status returns the HTTP status code.
func (e *Envelope) Status() int { return e.status }

// URL returns the request URL, if known.
func (e *Envelope) URL() string { return e.url }

// Body returns the raw body.
func (e *Envelope) Body() []byte { return e.body }

// Header returns a header value, matching the name case-insensitively.
func (e *Envelope) Header(name string) string {
	if v, ok := e.headers[name]; ok {
		return v
	}
	for k, v := range e.headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Preview returns the bounded body preview used in failures.
func (e *Envelope) Preview() string {
	return Preview(e.body, e.previewLimit)
}

// Parse checks the status and decodes the body. The outcome is computed once;
// later calls return the same value or the same *core.ValidationFailure.
//
// A non-2xx response fails with bad_status, unless its body claims to be JSON
// and does not decode, which is malformed_body. A 2xx body that does not
// decode is malformed_body. A 204 response parses as null.
func (e *Envelope) Parse() (ldvalue.Value, error) {
	e.once.Do(e.parse)
	if e.failure != nil {
		return ldvalue.Null(), e.failure
	}
	return e.parsed, nil
}

func (e *Envelope) parse() {
	defer func() {
		reason := ""
		if e.failure != nil {
			reason = string(e.failure.Reason)
		}
		e.metrics.Validation(reason)
	}()

	if e.status < 200 || e.status > 299 {
		if e.bodyErr == nil && e.looksJSON() {
			var v ldvalue.Value
			if err := json.Unmarshal(e.body, &v); err != nil {
				e.failure = e.fail(core.ReasonMalformedBody, "", "error response body is not valid JSON", err)
				return
			}
		}
		e.failure = e.fail(core.ReasonBadStatus, "", fmt.Sprintf("expected a 2xx status, got %d", e.status), nil)
		return
	}

	if e.bodyErr != nil {
		e.failure = e.fail(core.ReasonMalformedBody, "", "response body could not be read", e.bodyErr)
		return
	}
	if e.status == http.StatusNoContent && len(bytes.TrimSpace(e.body)) == 0 {
		e.parsed = ldvalue.Null()
		return
	}

	var v ldvalue.Value
	if err := json.Unmarshal(e.body, &v); err != nil {
		e.failure = e.fail(core.ReasonMalformedBody, "", "response body is not valid JSON", err)
		return
	}
	e.parsed = v
}

// looksJSON reports whether the response claims a JSON body.
func (e *Envelope) looksJSON() bool {
	if strings.Contains(strings.ToLower(e.Header("content-type")), "json") {
		return true
	}
	trimmed := bytes.TrimSpace(e.body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func (e *Envelope) fail(reason core.FailureReason, path, detail string, cause error) *core.ValidationFailure {
	return &core.ValidationFailure{
		Reason:      reason,
		StatusCode:  e.status,
		URL:         e.url,
		Path:        path,
		Detail:      detail,
		BodyPreview: e.Preview(),
		Cause:       cause,
	}
}
