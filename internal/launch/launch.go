// Package launch resolves the filesystem paths and environment needed to start
// the compute engine for a deployment mode and host operating system.
package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode distinguishes a development source tree from a packaged installation.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModePackaged    Mode = "production"
)

// ParseMode accepts the usual spellings of both modes.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return ModeDevelopment, nil
	case "production", "prod", "packaged":
		return ModePackaged, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Paths are the two roots the resolver can work from.
type Paths struct {
	// SourceRoot is the repository checkout (development).
	SourceRoot string
	// ResourcesDir is the platform resource directory of an installed app (packaged).
	ResourcesDir string
}

// Spec is everything needed to spawn the engine. No further path joining is
// required by the caller.
type Spec struct {
	Interpreter string
	Script      string
	WorkDir     string
	// Env is an overlay applied on top of the parent environment.
	Env map[string]string
}

// Command returns the argv for the engine: interpreter plus the script path.
// An empty spec yields nil, leaving container runtimes on the image command.
func (s Spec) Command() []string {
	if s.Interpreter == "" {
		return nil
	}
	return []string{s.Interpreter, s.Script}
}

// Container returns the spec for an engine image: no host paths, only the
// environment overlay.
func Container() Spec {
	return Spec{
		Env: map[string]string{
			"PYTHONUNBUFFERED": "1",
		},
	}
}

const backendDir = "backend"

// Resolve computes a Spec. It never checks that the paths exist: a missing
// interpreter surfaces as a spawn error in the supervisor.
func Resolve(mode Mode, goos string, paths Paths) Spec {
	root := paths.SourceRoot
	if mode == ModePackaged {
		root = paths.ResourcesDir
	}
	workDir := filepath.Join(root, backendDir)

	interpreter := filepath.Join(workDir, "venv", "bin", "python")
	// Windows installs ship the venv layout produced by the Windows build
	if mode == ModePackaged && goos == "windows" {
		interpreter = filepath.Join(workDir, "venv", "Scripts", "python.exe")
	}

	return Spec{
		Interpreter: interpreter,
		Script:      filepath.Join(workDir, "server.py"),
		WorkDir:     workDir,
		Env: map[string]string{
			"PYTHONUNBUFFERED": "1",
			"PYTHONPATH":       workDir,
		},
	}
}

// DefaultPaths derives the roots from the process environment: the working
// directory for development, and the resource directory next to the
// executable for packaged builds (Contents/Resources inside a macOS bundle).
func DefaultPaths(goos string) (Paths, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Paths{}, fmt.Errorf("failed to get working directory: %w", err)
	}
	exe, err := os.Executable()
	if err != nil {
		return Paths{}, fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return Paths{
		SourceRoot:   wd,
		ResourcesDir: ResourcesDir(goos, exe),
	}, nil
}

// ResourcesDir returns the platform resource directory for an executable path.
func ResourcesDir(goos, exe string) string {
	dir := filepath.Dir(exe)
	if goos == "darwin" {
		return filepath.Join(dir, "..", "Resources")
	}
	return filepath.Join(dir, "resources")
}
