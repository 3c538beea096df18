package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/harness/pkg/driver/browser"
	"github.com/devicelab-dev/harness/pkg/locator"
	"github.com/devicelab-dev/harness/pkg/session"
	"github.com/devicelab-dev/harness/pkg/steps"
)

var uiCommand = &cli.Command{
	Name:  "ui",
	Usage: "Perform one action on an element found through a fallback chain",
	Description: `Each --target is one reference of the chain, tried in order:

  role=button:Login   label=Username   testid=login-button
  attr=data-qa:submit text=Products    css=#user-name

Anything without a known prefix is a CSS selector.

Examples:
  harness ui --url / --target label=Username --target '#user-name' \
    --action fill --text standard_user
  harness ui --url /inventory.html --target .inventory_item \
    --action assertCount --count 6`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "url",
			Usage: "Page to load first, relative to ui.baseUrl",
		},
		&cli.StringSliceFlag{
			Name:     "target",
			Aliases:  []string{"t"},
			Usage:    "Element reference (repeat for fallbacks)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "action",
			Usage: "click, fill, type, hover, assertText, assertVisible, assertNotVisible or assertCount",
			Value: string(steps.KindClick),
		},
		&cli.StringFlag{
			Name:  "text",
			Usage: "Text for fill, type and assertText",
		},
		&cli.IntFlag{
			Name:  "count",
			Usage: "Expected count for assertCount",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Click without actionability checks",
		},
	},
	Action: runUI,
}

// uiSteps turns the ui flags into a steps file.
func uiSteps(c *cli.Context) (*steps.File, error) {
	var chain locator.Chain
	for _, spec := range c.StringSlice("target") {
		ref, err := locator.Parse(spec)
		if err != nil {
			return nil, err
		}
		chain = append(chain, ref)
	}

	action := steps.Step{
		Kind:   steps.Kind(c.String("action")),
		Target: chain,
		Text:   c.String("text"),
		Count:  c.Int("count"),
		Force:  c.Bool("force"),
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	if action.Kind == steps.KindGoto {
		return nil, fmt.Errorf("use --url to navigate")
	}

	f := &steps.File{Path: "ui", Name: chain.String()}
	if u := c.String("url"); u != "" {
		f.Steps = append(f.Steps, steps.Step{Kind: steps.KindGoto, URL: u})
	}
	f.Steps = append(f.Steps, action)
	return f, nil
}

func runUI(c *cli.Context) error {
	f, err := uiSteps(c)
	if err != nil {
		return err
	}
	return runStepFiles(c, "UI", []*steps.File{f})
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run YAML steps files",
	ArgsUsage: "<steps-file-or-folder>...",
	Description: `Run steps files in a browser. Each file is one job; with --workers
files run in parallel, each worker in its own browser.

Example file:
  - goto: /
  - fill: {target: [{label: Username}, "#user-name"], text: standard_user}
  - fill: {target: {testId: password}, text: secret_sauce}
  - click: {role: button, name: Login}
  - assertText: {target: .title, text: Products}
  - assertCount: {target: .inventory_item, count: 6}`,
	Action: runSteps,
}

func runSteps(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one steps file or folder is required")
	}
	paths, err := collectStepFiles(c.Args().Slice())
	if err != nil {
		return err
	}
	files := make([]*steps.File, 0, len(paths))
	for _, p := range paths {
		f, err := steps.ParseFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	return runStepFiles(c, "Execution", files)
}

// collectStepFiles expands folders into their .yaml and .yml files.
func collectStepFiles(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to access %s: %w", arg, err)
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", arg, err)
		}
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if e.IsDir() || (ext != ".yaml" && ext != ".yml") || e.Name() == "config.yaml" || e.Name() == "config.yml" {
				continue
			}
			out = append(out, filepath.Join(arg, e.Name()))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no steps files found")
	}
	return out, nil
}

func runStepFiles(c *cli.Context, title string, files []*steps.File) error {
	env, err := newRunEnv(c)
	if err != nil {
		return err
	}
	rt, err := startRuntime()
	if err != nil {
		return err
	}
	defer rt.Stop()

	jobs := make([]session.Job, 0, len(files))
	for _, f := range files {
		f := f
		jobs = append(jobs, session.Job{
			Name: f.Path,
			Run: func(ctx context.Context, s *session.Session) error {
				nav, _ := s.Driver().(steps.Navigator)
				r := steps.NewRunner(s.UI, nav, s.Log)
				r.Snapshot = s.Snapshot
				r.OnStep = func(res steps.StepResult) { env.out.step(s.WorkerID, res) }
				return r.Run(ctx, f)
			},
		})
	}
	return env.execute(c, title, browserFactory(rt, browser.OptionsFromConfig(env.cfg)), jobs)
}
