// Package metrics instruments attempts, resolutions, captures and response
// validations with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "harness"

// Recorder holds the collectors of one registry. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	attempts        *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	terminal        *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	captures        *prometheus.CounterVec
	validations     *prometheus.CounterVec
}

// New registers the harness collectors on reg. Workers sharing a registry
// must wrap it with a distinct constant label, see prometheus.WrapRegistererWith.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Attempts made by the retry executor, by outcome.",
		}, []string{"outcome"}),
		attemptDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of a single attempt.",
			Buckets:   prometheus.DefBuckets,
		}),
		terminal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminal_failures_total",
			Help:      "Operations that failed terminally, by reason.",
		}, []string{"reason"}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Strategy lookups made by the resolver, by strategy kind and result.",
		}, []string{"strategy", "result"}),
		captures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Diagnostic captures, by artifact and result.",
		}, []string{"artifact", "result"}),
		validations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Response validations, by result.",
		}, []string{"result"}),
	}
}

// Attempt records one finished attempt.
func (r *Recorder) Attempt(succeeded bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	outcome := "failure"
	if succeeded {
		outcome = "success"
	}
	r.attempts.WithLabelValues(outcome).Inc()
	r.attemptDuration.Observe(elapsed.Seconds())
}

// Terminal records a terminal failure.
func (r *Recorder) Terminal(reason string) {
	if r == nil {
		return
	}
	r.terminal.WithLabelValues(reason).Inc()
}

// Resolution records the result of one strategy lookup: resolved, not_found,
// ambiguous or error.
func (r *Recorder) Resolution(strategy, result string) {
	if r == nil {
		return
	}
	r.resolutions.WithLabelValues(strategy, result).Inc()
}

// Capture records one artifact write.
func (r *Recorder) Capture(artifact string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.captures.WithLabelValues(artifact, result).Inc()
}

// Validation records a validation result; an empty reason means success.
func (r *Recorder) Validation(reason string) {
	if r == nil {
		return
	}
	if reason == "" {
		reason = "ok"
	}
	r.validations.WithLabelValues(reason).Inc()
}
