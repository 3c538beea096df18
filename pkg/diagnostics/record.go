package diagnostics

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/paths"
)

// Record is one line of the failures file.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	Worker    string          `json:"worker,omitempty"`
	Target    string          `json:"target"`
	Terminal  string          `json:"terminal"`
	Attempts  []AttemptRecord `json:"attempts"`
	Artifact  string          `json:"artifact,omitempty"`
	Log       string          `json:"log,omitempty"`
}

// AttemptRecord is the serialized form of core.AttemptOutcome.
type AttemptRecord struct {
	Attempt   int                    `json:"attempt"`
	Succeeded bool                   `json:"succeeded"`
	Error     string                 `json:"error,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	ElapsedMs int64                  `json:"elapsedMs"`
}

// NewRecord converts a report.
func NewRecord(r core.FailureReport) Record {
	rec := Record{
		Timestamp: r.Timestamp,
		Worker:    r.WorkerID,
		Target:    r.Target,
		Terminal:  r.Terminal.String(),
		Artifact:  r.ArtifactPath,
		Log:       r.LogPath,
		Attempts:  make([]AttemptRecord, len(r.Attempts)),
	}
	for i, a := range r.Attempts {
		rec.Attempts[i] = AttemptRecord{
			Attempt:   a.Attempt,
			Succeeded: a.Succeeded,
			Error:     a.ErrorMessage(),
			ElapsedMs: a.Elapsed.Milliseconds(),
		}
		var ee *core.ExecutionError
		if errors.As(a.Err, &ee) {
			rec.Attempts[i].Code = ee.Code
			rec.Attempts[i].Details = ee.Details
		}
	}
	return rec
}

// appendRecord writes r as one line and returns the line.
func (c *Capturer) appendRecord(r core.FailureReport) ([]byte, error) {
	line, err := json.Marshal(NewRecord(r))
	if err != nil {
		return nil, fmt.Errorf("encode failure record: %w", err)
	}
	line = append(line, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := paths.EnsureDir(c.cfg.LogDir); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(c.RecordsPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open failure records: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return nil, fmt.Errorf("append failure record: %w", err)
	}
	return line, f.Close()
}
