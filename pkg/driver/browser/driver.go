// Package browser implements core.Driver over playwright-go. It finds
// candidates for each query kind and performs single actions; waiting,
// retrying and diagnostics stay in the harness.
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

// Options configures a browser launch.
type Options struct {
	Browser  string // chromium, firefox or webkit
	Headless bool
	SlowMo   time.Duration
	BaseURL  string
	Timeout  time.Duration // Per-action timeout when ctx has no earlier deadline
	FullPage bool          // Full page screenshots
}

// OptionsFromConfig maps the UI settings of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Browser:  cfg.UI.Browser,
		Headless: cfg.UI.Headless,
		SlowMo:   time.Duration(cfg.UI.SlowMoMs) * time.Millisecond,
		BaseURL:  cfg.UI.BaseURL,
		Timeout:  cfg.UITimeout(),
		FullPage: cfg.Artifacts.FullPage,
	}
}

// Runtime owns the Playwright driver process. One Runtime serves every
// worker; each worker launches its own Browser.
type Runtime struct {
	pw *playwright.Playwright
}

// Start runs the Playwright driver installed under driversDir (empty for
// playwright-go's default location).
func Start(driversDir string) (*Runtime, error) {
	pw, err := playwright.Run(&playwright.RunOptions{
		DriverDirectory:     driversDir,
		SkipInstallBrowsers: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	return &Runtime{pw: pw}, nil
}

// Stop terminates the driver process.
func (r *Runtime) Stop() error {
	return r.pw.Stop()
}

// Browser is one browser, context and page. It implements core.Driver.
type Browser struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	opts    Options
}

// Launch starts a browser with a fresh context and page.
func (r *Runtime) Launch(opts Options) (*Browser, error) {
	bt, err := r.browserType(opts.Browser)
	if err != nil {
		return nil, err
	}

	browser, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(float64(opts.SlowMo.Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.BaseURL != "" {
		ctxOpts.BaseURL = playwright.String(opts.BaseURL)
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &Browser{browser: browser, context: bctx, page: page, opts: opts}, nil
}

func (r *Runtime) browserType(name string) (playwright.BrowserType, error) {
	switch strings.ToLower(name) {
	case "", "chromium", "chrome":
		return r.pw.Chromium, nil
	case "firefox":
		return r.pw.Firefox, nil
	case "webkit", "safari":
		return r.pw.WebKit, nil
	}
	return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown browser %q", name))
}

// Close closes the context and the browser.
func (b *Browser) Close() error {
	if err := b.context.Close(); err != nil {
		b.browser.Close()
		return err
	}
	return b.browser.Close()
}

// Goto navigates the page. A relative url is resolved against the base URL.
func (b *Browser) Goto(ctx context.Context, url string) error {
	_, err := b.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMs(ctx, b.opts.Timeout),
	})
	return classify(err)
}

// Reload reloads the current page.
func (b *Browser) Reload(ctx context.Context) error {
	_, err := b.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMs(ctx, b.opts.Timeout),
	})
	return classify(err)
}

// element is the handle returned by FindCandidates.
type element struct {
	loc  playwright.Locator
	desc string
}

func (e *element) Describe() string { return e.desc }

// FindCandidates implements core.Driver.
func (b *Browser) FindCandidates(ctx context.Context, q core.Query, scope core.Handle) ([]core.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var root locatorRoot = pageRoot{b.page}
	if scope != nil {
		el, ok := scope.(*element)
		if !ok {
			return nil, core.ErrActionFailed.WithMessage(fmt.Sprintf("scope %s was not produced by this driver", scope.Describe()))
		}
		root = locatorScope{el.loc}
	}

	loc, err := root.query(q)
	if err != nil {
		return nil, err
	}
	all, err := loc.All()
	if err != nil {
		return nil, classify(err)
	}

	out := make([]core.Handle, len(all))
	for i, l := range all {
		out[i] = &element{loc: l, desc: fmt.Sprintf("%s #%d", q, i)}
	}
	return out, nil
}

// Perform implements core.Driver.
func (b *Browser) Perform(ctx context.Context, h core.Handle, a core.Action) (core.ActionResult, error) {
	el, ok := h.(*element)
	if !ok {
		return core.ActionResult{}, core.ErrActionFailed.WithMessage(fmt.Sprintf("handle %s was not produced by this driver", h.Describe()))
	}
	timeout := timeoutMs(ctx, b.opts.Timeout)

	switch a.Kind {
	case core.ActionClick:
		return core.ActionResult{}, classify(el.loc.Click(playwright.LocatorClickOptions{
			Force:   playwright.Bool(a.Force),
			Timeout: timeout,
		}))
	case core.ActionFill:
		if a.Clear {
			if err := el.loc.Clear(playwright.LocatorClearOptions{Timeout: timeout}); err != nil {
				return core.ActionResult{}, classify(err)
			}
		}
		return core.ActionResult{}, classify(el.loc.Fill(a.Text, playwright.LocatorFillOptions{Timeout: timeout}))
	case core.ActionType:
		return core.ActionResult{}, classify(el.loc.PressSequentially(a.Text, playwright.LocatorPressSequentiallyOptions{
			Delay:   playwright.Float(float64(a.Delay.Milliseconds())),
			Timeout: timeout,
		}))
	case core.ActionText:
		text, err := el.loc.TextContent(playwright.LocatorTextContentOptions{Timeout: timeout})
		return core.ActionResult{Text: text}, classify(err)
	case core.ActionVisible:
		visible, err := el.loc.IsVisible()
		return core.ActionResult{Visible: visible}, classify(err)
	case core.ActionHover:
		return core.ActionResult{}, classify(el.loc.Hover(playwright.LocatorHoverOptions{Timeout: timeout}))
	}
	return core.ActionResult{}, core.ErrUnsupportedAction.WithMessage(fmt.Sprintf("action %q is not supported", a.Kind))
}

// Screenshot implements core.ScreenshotSource.
func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := b.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(b.opts.FullPage),
		Timeout:  timeoutMs(ctx, b.opts.Timeout),
	})
	return data, classify(err)
}

// timeoutMs converts the remaining ctx budget, capped at def, to a Playwright
// timeout. Playwright treats 0 as no timeout, so an expired deadline yields
// 1ms. nil means no timeout at all.
func timeoutMs(ctx context.Context, def time.Duration) *float64 {
	d := def
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left < time.Millisecond {
			left = time.Millisecond
		}
		if d <= 0 || left < d {
			d = left
		}
	}
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d.Milliseconds()))
}

var _ core.Driver = (*Browser)(nil)
