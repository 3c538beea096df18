package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
}

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var records []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("invalid JSON line %q: %v", sc.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func TestNew_FileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := New(Config{Level: LevelInfo, Dir: dir, WorkerID: "w1", Now: fixedNow})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	want := filepath.Join(dir, "test_run_20240305_140709_w1.log")
	if l.Path() != want {
		t.Errorf("Path() = %q, want %q", l.Path(), want)
	}

	l.Debug("dropped")
	l.Info("resolved", "strategy", "css=#login")
	l.Log(LevelWarn, "capture failed", map[string]any{"target": "login", "attempt": 3})
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	records := readRecords(t, want)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %v", len(records), records)
	}
	if records[0]["msg"] != "resolved" || records[0]["strategy"] != "css=#login" || records[0]["worker"] != "w1" {
		t.Errorf("record[0] = %v", records[0])
	}
	if records[1]["level"] != "WARN" || records[1]["target"] != "login" || records[1]["attempt"] != float64(3) {
		t.Errorf("record[1] = %v", records[1])
	}
}

func TestLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: LevelDebug, Console: &buf, NoColor: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if l.Path() != "" {
		t.Errorf("Path() = %q, want empty without a directory", l.Path())
	}

	l.Debug("polling", "round", 2)
	out := buf.String()
	if !strings.Contains(out, "polling") || !strings.Contains(out, "round=2") {
		t.Errorf("console output = %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("NoColor output contains ANSI escapes: %q", out)
	}
}

func TestLogger_LevelThreshold(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: LevelWarn, Console: &buf, NoColor: true})
	if err != nil {
		t.Fatal(err)
	}

	if l.Enabled(LevelInfo) {
		t.Error("INFO should be disabled at WARN threshold")
	}
	if !l.Enabled(LevelError) {
		t.Error("ERROR should be enabled at WARN threshold")
	}

	l.Info("hidden")
	l.Log(LevelDebug, "hidden too", map[string]any{"k": "v"})
	l.Error("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("output contains dropped records: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("output missing ERROR record: %q", out)
	}
}

type countingStringer struct{ n *int }

func (c countingStringer) String() string {
	*c.n++
	return "formatted"
}

func TestLogger_DroppedLevelsAreNotFormatted(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: LevelInfo, Console: &buf, NoColor: true})
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	l.Debug("dropped", "value", countingStringer{&calls})
	l.Log(LevelDebug, "dropped", map[string]any{"value": countingStringer{&calls}})
	if calls != 0 {
		t.Errorf("String() called %d times for dropped records", calls)
	}
}

func TestLogger_FileAndConsoleShareRecords(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	l, err := New(Config{Level: LevelInfo, Dir: dir, Console: &buf, NoColor: true, Now: fixedNow})
	if err != nil {
		t.Fatal(err)
	}
	child := l.With("component", "resolver")
	child.Info("both sinks")
	if err := l.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	l.Close()

	if !strings.Contains(buf.String(), "component=resolver") {
		t.Errorf("console = %q", buf.String())
	}
	records := readRecords(t, l.Path())
	if len(records) != 1 || records[0]["component"] != "resolver" {
		t.Errorf("file records = %v", records)
	}
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	l, err := New(Config{Level: LevelInfo, Dir: t.TempDir(), Now: fixedNow})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	l.Info("after close")
	if err := l.Flush(); err != nil {
		t.Errorf("Flush() after Close() error = %v", err)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	l.Log(LevelError, "nothing", nil)
	if l.Enabled(LevelError) {
		t.Error("Nop logger should not be enabled")
	}
	if l.Path() != "" || l.Close() != nil || l.Flush() != nil {
		t.Error("Nop logger should have no file")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"debug", "DEBUG", false},
		{"INFO", "INFO", false},
		{"", "INFO", false},
		{"Warning", "WARN", false},
		{"error", "ERROR", false},
		{"verbose", "INFO", true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got.String() != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(fixedNow(), ""); got != "test_run_20240305_140709.log" {
		t.Errorf("FileName() = %q", got)
	}
	if got := FileName(fixedNow(), "gw 0"); got != "test_run_20240305_140709_gw_0.log" {
		t.Errorf("FileName() = %q", got)
	}
}
