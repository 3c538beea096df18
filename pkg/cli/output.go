package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/alessio/shellescape"
	"github.com/fatih/color"

	"github.com/devicelab-dev/harness/pkg/session"
	"github.com/devicelab-dev/harness/pkg/steps"
)

// printer writes live progress. Workers share one printer, so every method
// holds the lock for the whole entry.
type printer struct {
	mu sync.Mutex
	w  io.Writer

	pass *color.Color
	fail *color.Color
	info *color.Color
	dim  *color.Color
	bold *color.Color
}

func newPrinter(w io.Writer, noColor bool) *printer {
	p := &printer{
		w:    w,
		pass: color.New(color.FgGreen),
		fail: color.New(color.FgRed),
		info: color.New(color.FgCyan),
		dim:  color.New(color.FgHiBlack),
		bold: color.New(color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.pass, p.fail, p.info, p.dim, p.bold} {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) header(title, runID string, workers int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "\n%s %s\n", p.bold.Sprint(title), p.dim.Sprintf("run %s", runID))
	if workers > 1 {
		fmt.Fprintf(p.w, "  %s %d workers\n", p.info.Sprint("ℹ Parallel Mode:"), workers)
	}
	fmt.Fprintln(p.w, strings.Repeat("─", 60))
}

func (p *printer) step(workerID string, res steps.StepResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prefix := ""
	if workerID != "" {
		prefix = p.dim.Sprintf("[%s] ", workerID)
	}
	dur := formatDuration(res.Duration)
	if res.Err == nil {
		fmt.Fprintf(p.w, "    %s%s %s %s\n", prefix, p.pass.Sprint("✓"), res.Step.Describe(), p.dim.Sprintf("(%s)", dur))
		return
	}
	fmt.Fprintf(p.w, "    %s%s %s (%s)\n", prefix, p.fail.Sprint("✗"), res.Step.Describe(), dur)
}

func (p *printer) result(r session.JobResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dur := p.dim.Sprint(formatDuration(r.Duration))
	if r.Passed() {
		fmt.Fprintf(p.w, "%s %s %s\n", p.pass.Sprint("✓"), r.Name, dur)
		return
	}
	fmt.Fprintf(p.w, "%s %s %s\n", p.fail.Sprint("✗"), r.Name, dur)
	for _, line := range failureLines(r.Err) {
		fmt.Fprintf(p.w, "  %s %s\n", p.dim.Sprint("╰─"), line)
	}
}

func (p *printer) summary(run *session.RunResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w)
	if run.Passed > 0 {
		fmt.Fprintf(p.w, "  %s (%s)\n", p.pass.Sprintf("%d passing", run.Passed), formatDuration(run.Duration))
	}
	if run.Failed > 0 {
		fmt.Fprintf(p.w, "  %s\n", p.fail.Sprintf("%d failing", run.Failed))
	}
}

func (p *printer) rerun(cmd string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "\n  %s %s\n", p.info.Sprint("Re-run failed:"), cmd)
}

// failureLines splits err for indented display. Terminal failures render
// multi-line reports naming the screenshot and log.
func failureLines(err error) []string {
	var lines []string
	for _, l := range strings.Split(err.Error(), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// rerunCommand rebuilds the invocation with only the failed positional
// arguments. urfave/cli stops parsing flags at the first positional
// argument, so positionals always form the tail of args.
func rerunCommand(args []string, positional int, failed []string) string {
	if len(args) == 0 || positional > len(args) {
		return ""
	}
	out := append([]string{}, args[:len(args)-positional]...)
	out = append(out, failed...)
	return shellescape.QuoteCommand(out)
}

// formatDuration shows milliseconds below a second, seconds below a minute.
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
