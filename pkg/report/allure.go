package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/harness/pkg/core"
)

// Allure result schema types.

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep represents a step within a test result. Failed jobs get one
// step per attempt.
type AllureStep struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Stage  string `json:"stage"`
	Start  int64  `json:"start"`
	Stop   int64  `json:"stop"`
}

// AllureAttachment represents a file attachment.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// AllureCategory defines a failure category with regex matching.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// GenerateAllure generates Allure-compatible report files in <reportDir>/allure-results/.
func GenerateAllure(reportDir string) error {
	index, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	allureDir := filepath.Join(reportDir, "allure-results")
	if err := os.MkdirAll(allureDir, 0o755); err != nil {
		return fmt.Errorf("create allure-results dir: %w", err)
	}

	// Write one result file per job
	for _, entry := range index.Jobs {
		result := buildAllureResult(entry, index)
		copyAllureAttachments(allureDir, entry)

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal allure result for %s: %w", entry.ID, err)
		}
		resultPath := filepath.Join(allureDir, result.UUID+"-result.json")
		if err := os.WriteFile(resultPath, data, 0o644); err != nil {
			return fmt.Errorf("write allure result %s: %w", entry.ID, err)
		}
	}

	if err := writeAllureCategories(allureDir); err != nil {
		return err
	}
	return writeAllureEnvironment(allureDir, index)
}

// buildAllureResult builds an AllureResult from a job entry.
func buildAllureResult(entry JobEntry, index *Index) AllureResult {
	// Job offsets are not recorded; results are laid out from run start.
	startMs := index.StartTime.UnixMilli()
	stopMs := startMs + entry.Duration

	labels := []AllureLabel{
		{Name: "suite", Value: index.Command},
		{Name: "framework", Value: "harness"},
		{Name: "severity", Value: "normal"},
	}
	if entry.WorkerID != "" {
		labels = append(labels, AllureLabel{Name: "thread", Value: entry.WorkerID})
	}

	var details AllureStatusDetails
	if entry.Error != nil {
		details.Message = *entry.Error
	}

	steps := []AllureStep{}
	var attachments []AllureAttachment
	if f := entry.Failure; f != nil {
		details.Trace = failureTrace(f)
		offset := startMs
		for _, a := range f.Attempts {
			status := "passed"
			if a.Error != "" {
				status = "failed"
			}
			steps = append(steps, AllureStep{
				Name:   fmt.Sprintf("attempt %d: %s", a.Attempt, f.Target),
				Status: status,
				Stage:  "finished",
				Start:  offset,
				Stop:   offset + a.Duration,
			})
			offset += a.Duration
		}
		for _, a := range f.Attachments {
			if a.Path == "" {
				continue
			}
			attachments = append(attachments, AllureAttachment{
				Name:   allureAttachmentTitle(a.Name),
				Source: attachmentName(entry, a.Path),
				Type:   a.ContentType,
			})
		}
	}

	return AllureResult{
		UUID:          index.RunID + "-" + entry.ID,
		HistoryID:     fnv32aHash(index.Command + ":" + entry.Name),
		FullName:      index.Command + " " + entry.Name,
		Name:          entry.Name,
		Status:        mapAllureStatus(entry.Status),
		Stage:         "finished",
		Start:         startMs,
		Stop:          stopMs,
		Labels:        labels,
		StatusDetails: details,
		Steps:         steps,
		Attachments:   attachments,
	}
}

func failureTrace(f *Failure) string {
	var b strings.Builder
	for _, a := range f.Attempts {
		fmt.Fprintf(&b, "attempt %d (%dms): %s\n", a.Attempt, a.Duration, a.Error)
	}
	return b.String()
}

func allureAttachmentTitle(name string) string {
	switch name {
	case core.AttachmentScreenshot:
		return "Screenshot"
	case core.AttachmentFailureLog:
		return "Failure record"
	case core.AttachmentLog:
		return "Log"
	}
	return name
}

// attachmentName prefixes the job ID so workers sharing a log file name
// cannot overwrite each other's attachment.
func attachmentName(entry JobEntry, path string) string {
	return entry.ID + "-" + filepath.Base(path)
}

// copyAllureAttachments copies the failure attachments into allure-results/ flat.
func copyAllureAttachments(allureDir string, entry JobEntry) {
	if entry.Failure == nil {
		return
	}
	for _, a := range entry.Failure.Attachments {
		if a.Path == "" {
			continue
		}
		copyFile(a.Path, filepath.Join(allureDir, attachmentName(entry, a.Path)))
	}
}

// copyFile copies a single file from src to dst. Missing sources are
// skipped; a capture may have failed without failing the job.
func copyFile(src, dst string) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return
	}
	defer out.Close()

	_, _ = io.Copy(out, in)
}

// mapAllureStatus maps report Status to Allure status string.
func mapAllureStatus(s Status) string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// writeAllureCategories writes categories.json for failure categorization.
// The regexes match the messages of core's error types.
func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Element Not Found", MatchedStatuses: []string{"failed"}, MessageRegex: "(?s).*no element resolved.*"},
		{Name: "Ambiguous Match", MatchedStatuses: []string{"failed"}, MessageRegex: "(?s).*ambiguous.*"},
		{Name: "Timeout", MatchedStatuses: []string{"failed"}, MessageRegex: "(?is).*timeout.*|.*timed out.*"},
		{Name: "Bad Status", MatchedStatuses: []string{"failed"}, MessageRegex: "(?s).*\\(bad_status\\).*"},
		{Name: "Malformed Body", MatchedStatuses: []string{"failed"}, MessageRegex: "(?s).*\\(malformed_body\\).*"},
		{Name: "Missing Field", MatchedStatuses: []string{"failed"}, MessageRegex: "(?s).*\\(missing_field\\).*"},
		{Name: "Unexpected Value", MatchedStatuses: []string{"failed"}, MessageRegex: "(?s).*\\(unexpected_value\\).*"},
		{Name: "Cancelled", MatchedStatuses: []string{"failed"}, MessageRegex: "(?s).*cancelled.*"},
	}

	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	path := filepath.Join(allureDir, "categories.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}
	return nil
}

// writeAllureEnvironment writes environment.properties with run metadata.
func writeAllureEnvironment(allureDir string, index *Index) error {
	var b strings.Builder
	b.WriteString("framework=harness\n")
	b.WriteString(fmt.Sprintf("run.id=%s\n", index.RunID))
	if index.Harness.Version != "" {
		b.WriteString(fmt.Sprintf("harness.version=%s\n", index.Harness.Version))
	}
	if index.Harness.Workers > 0 {
		b.WriteString(fmt.Sprintf("harness.workers=%d\n", index.Harness.Workers))
	}

	path := filepath.Join(allureDir, "environment.properties")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}
	return nil
}
