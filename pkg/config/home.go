package config

import (
	"path/filepath"
	"sync"

	"github.com/devicelab-dev/harness/pkg/paths"
)

// HomeEnv overrides the detected installation home.
const HomeEnv = "HARNESS_HOME"

var home = newHomeCache()

func newHomeCache() func() string {
	return sync.OnceValue(func() string { return paths.DetectHome(HomeEnv) })
}

// Home returns the installation home, resolved once per process. See
// paths.HomeFrom for the lookup order.
func Home() string {
	return home()
}

// DriversDir returns <home>/drivers/<name>, where browser drivers are
// installed.
func DriversDir(name string) string {
	return filepath.Join(Home(), "drivers", name)
}

// ResolveDir returns dir unchanged when absolute, otherwise relative to the
// home directory.
func ResolveDir(dir string) string {
	return paths.Resolve(Home(), dir)
}

// ResetHome drops the cached home so the next call detects it again.
func ResetHome() {
	home = newHomeCache()
}
