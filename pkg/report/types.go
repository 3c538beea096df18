// Package report writes the JSON run report and Allure results.
//
// Layout:
//   - report.json: run index with one entry per job
//   - allure-results/: one result file per job, with the failure screenshot
//     and worker log copied alongside as attachments
package report

import (
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the execution status.
type Status string

// Status values.
const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Index is the main report file (report.json).
type Index struct {
	Version   string     `json:"version"`
	RunID     string     `json:"runId"`
	Command   string     `json:"command"` // api, ui or run
	Status    Status     `json:"status"`
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
	Harness   RunnerInfo `json:"harness"`
	Summary   Summary    `json:"summary"`
	Jobs      []JobEntry `json:"jobs"`
}

// RunnerInfo describes the harness build that produced the report.
type RunnerInfo struct {
	Version string `json:"version"`
	Workers int    `json:"workers"`
}

// Summary contains aggregated counts.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// JobEntry is the index entry for one job.
type JobEntry struct {
	Index    int      `json:"index"`
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	WorkerID string   `json:"worker"`
	Status   Status   `json:"status"`
	Duration int64    `json:"duration"` // milliseconds
	Error    *string  `json:"error,omitempty"`
	Failure  *Failure `json:"failure,omitempty"`
}

// Failure is the serialisable form of a core.FailureReport.
type Failure struct {
	Target      string              `json:"target"`
	Terminal    core.TerminalReason `json:"terminal"`
	Attempts    []Attempt           `json:"attempts"`
	Attachments []core.Attachment   `json:"attachments,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

// Attempt is one attempt of a failed operation.
type Attempt struct {
	Attempt  int    `json:"attempt"`
	Duration int64  `json:"duration"` // milliseconds
	Error    string `json:"error,omitempty"`
}
