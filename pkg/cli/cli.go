// Package cli provides the command-line interface for harness.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Config file, or directory holding config.yaml (default: harness home)",
		EnvVars: []string{"HARNESS_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "env-file",
		Usage: "Dotenv file read after the process environment",
		Value: defaultEnvFile,
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level (DEBUG, INFO, WARNING, ERROR)",
	},
	&cli.StringFlag{
		Name:  "log-dir",
		Usage: "Directory for per-worker log files",
	},
	&cli.StringFlag{
		Name:  "screenshot-dir",
		Usage: "Directory for failure screenshots",
	},
	&cli.StringFlag{
		Name:  "browser",
		Usage: "Browser engine (chromium, firefox, webkit)",
	},
	&cli.BoolFlag{
		Name:  "headed",
		Usage: "Show the browser window",
	},
	&cli.IntFlag{
		Name:    "workers",
		Aliases: []string{"n"},
		Usage:   "Number of parallel workers",
		Value:   1,
	},
	&cli.IntFlag{
		Name:  "retries",
		Usage: "Maximum attempts per operation (overrides retry.maxAttempts)",
	},
	&cli.IntFlag{
		Name:  "backoff-ms",
		Usage: "Linear backoff step in milliseconds (overrides retry.backoffMs)",
	},
	&cli.StringFlag{
		Name:  "report-dir",
		Usage: "Write report.json and allure-results/ to this directory",
	},
	&cli.StringFlag{
		Name:  "metrics-file",
		Usage: "Write Prometheus metrics in text format to this file after the run",
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:    "harness",
		Usage:   "Resilient UI and API checks",
		Version: Version,
		Description: `harness resolves elements through fallback chains, retries flaky
operations with backoff, captures screenshots and logs on terminal failure,
and validates JSON API responses with bounded previews.

Examples:
  harness api api/airports --count data=30
  harness api api/airports/distance --method POST --data '{"from":"KIX","to":"NRT"}' --require data.attributes.kilometers
  harness ui --url / --target 'label=Username' --target '#user-name' --action fill --text standard_user
  harness -n 4 run flows/
  harness config`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			apiCommand,
			uiCommand,
			runCommand,
			configCommand,
		},
		Writer:    stdout,
		ErrWriter: stderr,
	}
}

// Execute runs the CLI.
func Execute() {
	app := newApp(os.Stdout, os.Stderr)
	app.Metadata = map[string]interface{}{metaArgs: os.Args}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
