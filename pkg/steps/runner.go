package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/interact"
	"github.com/devicelab-dev/harness/pkg/logger"
)

// Navigator is implemented by drivers that can load pages.
type Navigator = interact.Navigator

// SnapshotFunc saves an on-demand screenshot and returns its path.
type SnapshotFunc func(ctx context.Context, name string) (string, error)

// StepError reports the step a file failed on.
type StepError struct {
	Path  string
	Index int // 0-based
	Step  Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s:%d: step %d (%s): %v", e.Path, e.Step.Line, e.Index+1, e.Step.Describe(), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	Step     Step
	Err      error
	Duration time.Duration
}

// Runner executes steps files through an interactor.
type Runner struct {
	ui  *interact.Interactor
	nav Navigator
	log *logger.Logger

	// OnStep, if set, is called after every executed step.
	OnStep func(StepResult)
	// Snapshot serves screenshot steps. Without it they are unsupported.
	Snapshot SnapshotFunc
}

// NewRunner creates a Runner. nav may be nil when no file navigates.
func NewRunner(ui *interact.Interactor, nav Navigator, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{ui: ui, nav: nav, log: log}
}

// Run executes f's steps in order and stops at the first failure.
func (r *Runner) Run(ctx context.Context, f *File) error {
	r.log.Info("steps started", "file", f.Path, "steps", len(f.Steps))
	for i, step := range f.Steps {
		start := time.Now()
		err := r.runStep(ctx, step)
		if r.OnStep != nil {
			r.OnStep(StepResult{Step: step, Err: err, Duration: time.Since(start)})
		}
		if err != nil {
			return &StepError{Path: f.Path, Index: i, Step: step, Err: err}
		}
		r.log.Debug("step passed", "file", f.Path, "step", step.Describe())
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, s Step) error {
	switch s.Kind {
	case KindGoto:
		return r.ui.Goto(ctx, r.nav, s.URL)
	case KindReload:
		return r.ui.Reload(ctx, r.nav)
	case KindScreenshot:
		if r.Snapshot == nil {
			return core.ErrUnsupportedAction.WithMessage("screenshots are not configured")
		}
		path, err := r.Snapshot(ctx, s.Name)
		if err != nil {
			return err
		}
		r.log.Info("screenshot step", "name", s.Name, "path", path)
		return nil
	case KindClick:
		return r.ui.Click(ctx, s.Target, s.Force)
	case KindFill:
		return r.ui.Fill(ctx, s.Target, s.Text)
	case KindType:
		return r.ui.Type(ctx, s.Target, s.Text)
	case KindHover:
		return r.ui.Hover(ctx, s.Target)
	case KindAssertText:
		return r.ui.ExpectText(ctx, s.Target, s.Text)
	case KindAssertVisible:
		return r.ui.ExpectVisible(ctx, s.Target, true)
	case KindAssertNotVisible:
		return r.ui.ExpectVisible(ctx, s.Target, false)
	case KindAssertCount:
		return r.ui.ExpectCount(ctx, s.Target[0], s.Count)
	}
	return core.ErrUnsupportedAction.WithMessage(fmt.Sprintf("unknown step type %s", s.Kind))
}
