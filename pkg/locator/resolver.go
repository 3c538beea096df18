package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/logger"
	"github.com/devicelab-dev/harness/pkg/metrics"
)

// DefaultPollInterval is the pause between resolution rounds.
const DefaultPollInterval = 100 * time.Millisecond

// Options controls resolution.
type Options struct {
	// Timeout is the wait window for the whole chain. Zero means one round.
	Timeout time.Duration

	// PollInterval is the pause between rounds. Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// FirstMatch accepts the first candidate when a strategy matches several
	// elements. By default such a match is ambiguous and does not resolve.
	FirstMatch bool
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	Handle    core.Handle
	Reference Reference            // The strategy that resolved
	Tried     []core.StrategyError // Earlier strategies that failed in the winning round
	Rounds    int
}

// Resolver turns chains into handles using a Driver.
type Resolver struct {
	driver  core.Driver
	opts    Options
	log     *logger.Logger
	metrics *metrics.Recorder
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for per-strategy debug records.
func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver.
func NewResolver(driver core.Driver, opts Options, options ...Option) *Resolver {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	r := &Resolver{
		driver: driver,
		opts:   opts,
		log:    logger.Nop(),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Options returns the resolver's effective options.
func (r *Resolver) Options() Options {
	return r.opts
}

// Resolve finds one element for chain within scope (nil for the whole page).
//
// Resolution proceeds in rounds. Each round asks the driver for every
// strategy in chain order and the first strategy yielding an acceptable
// match wins. Rounds repeat every PollInterval until Timeout elapses.
// Strategies that fail with a non-transient driver error are not retried in
// later rounds.
//
// When nothing resolves the error is *core.AmbiguousMatchError if any
// strategy last failed on ambiguity, otherwise *core.ResolutionError. Both
// carry every strategy's last error. Cancellation yields *core.CancelledError.
func (r *Resolver) Resolve(ctx context.Context, chain Chain, scope core.Handle) (Resolution, error) {
	target := chain.String()
	if len(chain) == 0 {
		return Resolution{}, core.ErrMissingRequired.WithMessage("empty locator chain")
	}

	start := time.Now()
	deadline := start.Add(r.opts.Timeout)
	tried := make([]core.StrategyError, len(chain))
	dead := make([]bool, len(chain))

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return Resolution{}, &core.CancelledError{Target: target, Cause: err}
		}

		live := 0
		for i, ref := range chain {
			if dead[i] {
				continue
			}
			h, se, err := r.try(ctx, ref, scope, round)
			if err != nil {
				return Resolution{}, &core.CancelledError{Target: target, Cause: err}
			}
			if h != nil {
				return Resolution{
					Handle:    h,
					Reference: ref,
					Tried:     append([]core.StrategyError(nil), tried[:i]...),
					Rounds:    round,
				}, nil
			}
			tried[i] = se
			if !core.IsTransient(se.Err) {
				dead[i] = true
				continue
			}
			live++
		}

		remaining := time.Until(deadline)
		if live == 0 || remaining <= 0 {
			break
		}
		wait := r.opts.PollInterval
		if wait > remaining {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			return Resolution{}, &core.CancelledError{Target: target, Cause: err}
		}
	}

	return Resolution{}, chainError(target, time.Since(start), tried)
}

// try performs one lookup. A nil handle with a populated StrategyError means
// the strategy did not resolve; a non-nil error means ctx ended.
func (r *Resolver) try(ctx context.Context, ref Reference, scope core.Handle, round int) (core.Handle, core.StrategyError, error) {
	se := core.StrategyError{Strategy: ref.String()}
	kind := ref.Kind().String()

	handles, err := r.driver.FindCandidates(ctx, ref.Query(), scope)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, se, ctxErr
		}
		se.Err = err
		r.metrics.Resolution(kind, "error")
		r.log.Debug("strategy failed", "strategy", se.Strategy, "round", round, "error", err)
		return nil, se, nil
	}

	se.Candidates = len(handles)
	details := map[string]interface{}{"strategy": se.Strategy, "candidates": len(handles), "round": round}
	switch {
	case len(handles) == 0:
		se.Err = core.ErrElementNotFound.
			WithMessage(fmt.Sprintf("%s matched no elements", se.Strategy)).
			WithDetails(details)
		r.metrics.Resolution(kind, "not_found")
	case len(handles) > 1 && !r.opts.FirstMatch:
		se.Err = core.ErrAmbiguousMatch.
			WithMessage(fmt.Sprintf("%s matched %d elements", se.Strategy, len(handles))).
			WithDetails(details)
		r.metrics.Resolution(kind, "ambiguous")
	default:
		r.metrics.Resolution(kind, "resolved")
		r.log.Debug("strategy resolved", "strategy", se.Strategy, "round", round, "candidates", len(handles))
		return handles[0], se, nil
	}
	r.log.Debug("strategy did not resolve", "strategy", se.Strategy, "round", round, "candidates", len(handles))
	return nil, se, nil
}

// Count returns how many elements ref currently matches. It does not wait.
func (r *Resolver) Count(ctx context.Context, ref Reference, scope core.Handle) (int, error) {
	handles, err := r.driver.FindCandidates(ctx, ref.Query(), scope)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", ref, err)
	}
	return len(handles), nil
}

func chainError(target string, waited time.Duration, tried []core.StrategyError) error {
	for _, se := range tried {
		if errors.Is(se.Err, core.ErrAmbiguousMatch) {
			return &core.AmbiguousMatchError{
				Target:   target,
				Strategy: se.Strategy,
				Count:    se.Candidates,
				Tried:    tried,
			}
		}
	}
	return &core.ResolutionError{Target: target, Waited: waited, Tried: tried}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
