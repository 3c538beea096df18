// Package interact performs UI actions on located elements under retry. Every
// attempt resolves the element afresh before acting on it.
package interact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/locator"
	"github.com/devicelab-dev/harness/pkg/retry"
)

// Interactor binds a driver, a resolver and a retry executor.
type Interactor struct {
	driver    core.Driver
	resolver  *locator.Resolver
	exec      *retry.Executor
	typeDelay time.Duration
}

// Option configures an Interactor.
type Option func(*Interactor)

// WithTypeDelay sets the per-key delay used by Type.
func WithTypeDelay(d time.Duration) Option {
	return func(i *Interactor) { i.typeDelay = d }
}

// New creates an Interactor.
func New(driver core.Driver, resolver *locator.Resolver, exec *retry.Executor, opts ...Option) *Interactor {
	i := &Interactor{driver: driver, resolver: resolver, exec: exec}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Navigator is implemented by drivers that can load pages.
type Navigator interface {
	Goto(ctx context.Context, url string) error
	Reload(ctx context.Context) error
}

// Goto loads url under the executor's policy. A terminal failure is captured
// like any other UI failure.
func (i *Interactor) Goto(ctx context.Context, nav Navigator, url string) error {
	return i.navigate(ctx, nav, "goto "+url, func(ctx context.Context) error {
		return nav.Goto(ctx, url)
	})
}

// Reload reloads the current page under the executor's policy.
func (i *Interactor) Reload(ctx context.Context, nav Navigator) error {
	return i.navigate(ctx, nav, "reload", func(ctx context.Context) error {
		return nav.Reload(ctx)
	})
}

func (i *Interactor) navigate(ctx context.Context, nav Navigator, target string, fn func(ctx context.Context) error) error {
	if nav == nil {
		return core.ErrUnsupportedAction.WithMessage("driver cannot navigate")
	}
	op := retry.Op{Target: target, Screen: i.driver}
	_, err := i.exec.Execute(ctx, op, func(ctx context.Context, _ int) error {
		return fn(ctx)
	})
	return err
}

// Do resolves chain and performs a on every attempt until it succeeds or the
// policy gives up. A zero policy uses the executor's default.
func (i *Interactor) Do(ctx context.Context, chain locator.Chain, a core.Action, p retry.Policy) (core.ActionResult, retry.Result, error) {
	op := retry.Op{
		Target: fmt.Sprintf("%s %s", a.Kind, chain),
		Policy: p,
		Screen: i.driver,
	}
	return retry.Do(ctx, i.exec, op, func(ctx context.Context, _ int) (core.ActionResult, error) {
		res, err := i.resolver.Resolve(ctx, chain, nil)
		if err != nil {
			return core.ActionResult{}, err
		}
		return i.driver.Perform(ctx, res.Handle, a)
	})
}

// Click clicks the element. force skips the driver's actionability checks.
func (i *Interactor) Click(ctx context.Context, chain locator.Chain, force bool) error {
	_, _, err := i.Do(ctx, chain, core.Action{Kind: core.ActionClick, Force: force}, retry.Policy{})
	return err
}

// Fill clears the field and enters text.
func (i *Interactor) Fill(ctx context.Context, chain locator.Chain, text string) error {
	_, _, err := i.Do(ctx, chain, core.Action{Kind: core.ActionFill, Text: text, Clear: true}, retry.Policy{})
	return err
}

// Type enters text key by key with the configured delay.
func (i *Interactor) Type(ctx context.Context, chain locator.Chain, text string) error {
	_, _, err := i.Do(ctx, chain, core.Action{Kind: core.ActionType, Text: text, Delay: i.typeDelay}, retry.Policy{})
	return err
}

// Hover moves the pointer over the element.
func (i *Interactor) Hover(ctx context.Context, chain locator.Chain) error {
	_, _, err := i.Do(ctx, chain, core.Action{Kind: core.ActionHover}, retry.Policy{})
	return err
}

// Text returns the element's text content.
func (i *Interactor) Text(ctx context.Context, chain locator.Chain) (string, error) {
	res, _, err := i.Do(ctx, chain, core.Action{Kind: core.ActionText}, retry.Policy{})
	return res.Text, err
}

// Visible reports whether the first reference of chain that matches anything
// is visible right now. It neither waits nor retries, and a chain matching
// nothing is simply not visible.
func (i *Interactor) Visible(ctx context.Context, chain locator.Chain) (bool, error) {
	for _, ref := range chain {
		handles, err := i.driver.FindCandidates(ctx, ref.Query(), nil)
		if err != nil {
			return false, err
		}
		if len(handles) == 0 {
			continue
		}
		res, err := i.driver.Perform(ctx, handles[0], core.Action{Kind: core.ActionVisible})
		if err != nil {
			return false, err
		}
		return res.Visible, nil
	}
	return false, nil
}

// ExpectCount waits until ref matches exactly n elements, polling under the
// executor's policy.
func (i *Interactor) ExpectCount(ctx context.Context, ref locator.Reference, n int) error {
	op := retry.Op{
		Target: fmt.Sprintf("count %s == %d", ref, n),
		Screen: i.driver,
	}
	_, err := i.exec.Execute(ctx, op, func(ctx context.Context, _ int) error {
		got, err := i.resolver.Count(ctx, ref, nil)
		if err != nil {
			return err
		}
		if got != n {
			return core.ErrConditionNotMet.WithMessage(fmt.Sprintf("%s matched %d elements, want %d", ref, got, n))
		}
		return nil
	})
	return err
}

// ExpectText waits until the first resolvable element of chain has text
// equal to want, ignoring surrounding whitespace.
func (i *Interactor) ExpectText(ctx context.Context, chain locator.Chain, want string) error {
	op := retry.Op{
		Target: fmt.Sprintf("text %s == %q", chain, want),
		Screen: i.driver,
	}
	_, err := i.exec.Execute(ctx, op, func(ctx context.Context, _ int) error {
		res, err := i.resolver.Resolve(ctx, chain, nil)
		if err != nil {
			return err
		}
		got, err := i.driver.Perform(ctx, res.Handle, core.Action{Kind: core.ActionText})
		if err != nil {
			return err
		}
		if strings.TrimSpace(got.Text) != strings.TrimSpace(want) {
			return core.ErrConditionNotMet.WithMessage(fmt.Sprintf("%s has text %q, want %q", chain, got.Text, want))
		}
		return nil
	})
	return err
}

// ExpectVisible waits until chain's visibility equals want. A chain that
// matches nothing counts as not visible.
func (i *Interactor) ExpectVisible(ctx context.Context, chain locator.Chain, want bool) error {
	op := retry.Op{
		Target: fmt.Sprintf("visible %s == %t", chain, want),
		Screen: i.driver,
	}
	_, err := i.exec.Execute(ctx, op, func(ctx context.Context, _ int) error {
		got, err := i.Visible(ctx, chain)
		if err != nil {
			return err
		}
		if got != want {
			return core.ErrConditionNotMet.WithMessage(fmt.Sprintf("%s visible = %t, want %t", chain, got, want))
		}
		return nil
	})
	return err
}
