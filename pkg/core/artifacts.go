// Package core provides the execution model types shared by the harness:
// provider interfaces, attempt and failure records, and the error taxonomy.
package core

// Attachment represents a debug artifact captured for a failure
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot, log
	ContentType string `json:"contentType"` // MIME type: image/png, application/json, text/plain
	Path        string `json:"path"`        // File path of the written artifact
	Body        []byte `json:"-"`           // In-memory content (not serialized to JSON)
}

// Common attachment names
const (
	AttachmentScreenshot = "screenshot"
	AttachmentFailureLog = "failure_log"
	AttachmentLog        = "log"
)

// Common content types
const (
	ContentTypePNG   = "image/png"
	ContentTypeJSON  = "application/json"
	ContentTypeJSONL = "application/x-ndjson"
	ContentTypeText  = "text/plain"
)

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentScreenshot,
		ContentType: ContentTypePNG,
		Path:        path,
		Body:        data,
	}
}

// NewFailureLogAttachment creates an attachment for a structured failure record
func NewFailureLogAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentFailureLog,
		ContentType: ContentTypeJSONL,
		Path:        path,
		Body:        data,
	}
}

// NewLogAttachment references the worker's run log. The body is not loaded.
func NewLogAttachment(path string) Attachment {
	return Attachment{
		Name:        AttachmentLog,
		ContentType: ContentTypeText,
		Path:        path,
	}
}

// Find returns the first attachment with the given name.
func Find(list []Attachment, name string) (Attachment, bool) {
	for _, a := range list {
		if a.Name == name {
			return a, true
		}
	}
	return Attachment{}, false
}

// ArtifactConfig controls when and what artifacts are captured
type ArtifactConfig struct {
	// When to capture
	CaptureOnFailure bool `yaml:"captureOnFailure" json:"captureOnFailure"` // Default: true

	// What to capture
	Screenshot bool `yaml:"screenshot" json:"screenshot"` // Default: true
	FullPage   bool `yaml:"fullPage" json:"fullPage"`     // Default: true
	FailureLog bool `yaml:"failureLog" json:"failureLog"` // Default: true
}

// DefaultArtifactConfig returns sensible defaults for artifact capture
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		CaptureOnFailure: true,
		Screenshot:       true,
		FullPage:         true,
		FailureLog:       true,
	}
}

// ShouldCaptureScreenshot returns true if a terminal failure gets a screenshot
func (c ArtifactConfig) ShouldCaptureScreenshot() bool {
	return c.CaptureOnFailure && c.Screenshot
}

// ShouldWriteFailureLog returns true if a terminal failure gets a structured record
func (c ArtifactConfig) ShouldWriteFailureLog() bool {
	return c.CaptureOnFailure && c.FailureLog
}
