package config

import (
	"path/filepath"
	"testing"
)

func TestHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv(HomeEnv, "/custom/path")

	if got := Home(); got != "/custom/path" {
		t.Errorf("Home() = %q, want %q", got, "/custom/path")
	}
}

func TestHome_FallbackIsNotEmpty(t *testing.T) {
	ResetHome()
	t.Setenv(HomeEnv, "")

	if got := Home(); got == "" {
		t.Error("Home() returned empty string")
	}
}

func TestHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv(HomeEnv, "/first")
	first := Home()

	t.Setenv(HomeEnv, "/second")
	if second := Home(); first != second {
		t.Errorf("Home() not cached: first=%q, second=%q", first, second)
	}
}

func TestDriversDir(t *testing.T) {
	ResetHome()
	t.Setenv(HomeEnv, "/test/home")

	want := filepath.Join("/test/home", "drivers", "playwright")
	if got := DriversDir("playwright"); got != want {
		t.Errorf("DriversDir() = %q, want %q", got, want)
	}
}

func TestResolveDir(t *testing.T) {
	ResetHome()
	t.Setenv(HomeEnv, "/test/home")

	tests := []struct {
		dir  string
		want string
	}{
		{"logs", filepath.Join("/test/home", "logs")},
		{"/var/log/harness", "/var/log/harness"},
	}
	for _, tt := range tests {
		if got := ResolveDir(tt.dir); got != tt.want {
			t.Errorf("ResolveDir(%q) = %q, want %q", tt.dir, got, tt.want)
		}
	}
}
