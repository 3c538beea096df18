package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/paths"
	"github.com/devicelab-dev/harness/pkg/session"
)

// BuildConfig carries the run metadata for Build.
type BuildConfig struct {
	RunID     string
	Command   string
	Version   string
	Workers   int
	StartTime time.Time
}

// Build converts a pool run into a report index.
func Build(run *session.RunResult, cfg BuildConfig) *Index {
	idx := &Index{
		Version:   Version,
		RunID:     cfg.RunID,
		Command:   cfg.Command,
		Status:    StatusPassed,
		StartTime: cfg.StartTime,
		EndTime:   cfg.StartTime.Add(run.Duration),
		Harness:   RunnerInfo{Version: cfg.Version, Workers: cfg.Workers},
		Jobs:      make([]JobEntry, 0, len(run.Results)),
	}

	for i, r := range run.Results {
		entry := JobEntry{
			Index:    i,
			ID:       fmt.Sprintf("job-%03d", i),
			Name:     r.Name,
			WorkerID: r.WorkerID,
			Status:   StatusPassed,
			Duration: r.Duration.Milliseconds(),
		}
		idx.Summary.Total++
		if r.Passed() {
			idx.Summary.Passed++
		} else {
			idx.Summary.Failed++
			idx.Status = StatusFailed
			entry.Status = StatusFailed
			msg := r.Err.Error()
			entry.Error = &msg
			entry.Failure = failureOf(r.Err)
		}
		idx.Jobs = append(idx.Jobs, entry)
	}
	return idx
}

// failureOf extracts the terminal failure report from err, if any.
func failureOf(err error) *Failure {
	var exhausted *core.ExhaustedRetriesError
	if !errors.As(err, &exhausted) {
		return nil
	}
	r := exhausted.Report
	f := &Failure{
		Target:      r.Target,
		Terminal:    r.Terminal,
		Attachments: attachmentsOf(r),
		Timestamp:   r.Timestamp,
		Attempts:    make([]Attempt, 0, len(r.Attempts)),
	}
	for _, a := range r.Attempts {
		f.Attempts = append(f.Attempts, Attempt{
			Attempt:  a.Attempt,
			Duration: a.Elapsed.Milliseconds(),
			Error:    a.ErrorMessage(),
		})
	}
	return f
}

// attachmentsOf returns the report's attachments. Reports built without a
// capturer only carry paths, so those are turned into attachments.
func attachmentsOf(r core.FailureReport) []core.Attachment {
	if len(r.Attachments) > 0 {
		return append([]core.Attachment(nil), r.Attachments...)
	}
	var out []core.Attachment
	if r.ArtifactPath != "" {
		out = append(out, core.NewScreenshotAttachment(r.ArtifactPath, nil))
	}
	if r.LogPath != "" {
		out = append(out, core.NewLogAttachment(r.LogPath))
	}
	return out
}

// Write writes <dir>/report.json and returns its path.
func Write(dir string, idx *Index) (string, error) {
	if err := paths.EnsureDir(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "report.json")
	if err := atomicWriteJSON(path, idx); err != nil {
		return "", err
	}
	return path, nil
}

// ReadReport reads <dir>/report.json.
func ReadReport(dir string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse report.json: %w", err)
	}
	return &idx, nil
}

// atomicWriteJSON writes v to a temp file and renames it over path, so
// readers never see a partial report.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
