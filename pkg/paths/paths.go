// Package paths resolves and prepares the directories the harness writes to.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// EnsureDir creates dir and any missing parents. It succeeds when the
// directory already exists, including when another worker created it
// concurrently.
func EnsureDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("ensure dir: empty path")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		// MkdirAll can lose a race with a concurrent creator on some
		// filesystems; accept the result if a directory is now there.
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			return nil
		}
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}

// Resolve returns path unchanged when absolute, otherwise joined onto base.
func Resolve(base, path string) string {
	path = ExpandHome(path)
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName turns a free-form description into a file name fragment.
// The result is never empty and at most 80 bytes long.
func SanitizeName(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "._")
	if len(s) > 80 {
		s = strings.TrimRight(s[:80], "._")
	}
	if s == "" {
		return "unnamed"
	}
	return s
}

// HomeFrom picks the installation home: override when set, else the parent
// of a bin/ directory holding the executable, else workdir.
func HomeFrom(override, executable, workdir string) string {
	if override = strings.TrimSpace(override); override != "" {
		return ExpandHome(override)
	}
	if executable != "" {
		if resolved, err := filepath.EvalSymlinks(executable); err == nil {
			executable = resolved
		}
		if dir := filepath.Dir(executable); filepath.Base(dir) == "bin" {
			return filepath.Dir(dir)
		}
	}
	if workdir != "" {
		return workdir
	}
	return "."
}

// DetectHome resolves the home for the running process, reading the
// override from envVar.
func DetectHome(envVar string) string {
	exe, _ := os.Executable()
	wd, _ := os.Getwd()
	return HomeFrom(os.Getenv(envVar), exe, wd)
}
