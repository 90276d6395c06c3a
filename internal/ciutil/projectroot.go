package ciutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Files and directories marking a project root, in order of preference.
const (
	ConfigMarker = "dbtestkit.yaml"
	GoModFile    = "go.mod"
	GitDirectory = ".git"
)

// maxTraversalDepth bounds the upward search for a project root.
const maxTraversalDepth = 10

var (
	ErrProjectRootNotFound = errors.New("unable to find project root")
	ErrInvalidProjectRoot  = errors.New("invalid project root: no go.mod or " + ConfigMarker + " found")
)

// rootSource is an environment variable that may name the project root.
type rootSource struct {
	envVar string
	active func() bool
}

var rootSources = []rootSource{
	{EnvProjectRoot, func() bool { return true }},
	{EnvGitHubWorkspace, IsGitHubActions},
	{EnvGitLabProjectDir, IsGitLabCI},
}

// FindProjectRoot returns the directory directive files and the config file
// are resolved against. DBTESTKIT_PROJECT_ROOT wins, then the CI checkout
// (GITHUB_WORKSPACE, CI_PROJECT_DIR); otherwise the working directory and
// its parents are searched for dbtestkit.yaml, go.mod or .git.
//
// A directory named by a variable must contain dbtestkit.yaml or go.mod.
func FindProjectRoot(logger *slog.Logger) (string, error) {
	for _, src := range rootSources {
		if !src.active() {
			continue
		}
		dir := os.Getenv(src.envVar)
		if dir == "" {
			continue
		}
		if logger != nil {
			logger.Debug("project root taken from environment",
				"variable", src.envVar,
				"project_root", dir)
		}
		if !isValidProjectRoot(dir) {
			return "", fmt.Errorf("%w at %s (from %s)", ErrInvalidProjectRoot, dir, src.envVar)
		}
		return dir, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	return findProjectRootByTraversal(wd, logger)
}

// findProjectRootByTraversal walks from startDir towards the filesystem root
// and returns the first directory holding a root marker.
func findProjectRootByTraversal(startDir string, logger *slog.Logger) (string, error) {
	dir := startDir
	for range maxTraversalDepth {
		if marker, ok := rootMarker(dir); ok {
			if logger != nil {
				logger.Debug("project root found",
					"project_root", dir,
					"marker", marker)
			}
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if logger != nil {
		logger.Warn("project root not found",
			"start_dir", startDir,
			"max_depth", maxTraversalDepth)
	}
	return "", ErrProjectRootNotFound
}

// rootMarker reports which marker, if any, dir contains.
func rootMarker(dir string) (string, bool) {
	for _, name := range []string{ConfigMarker, GoModFile} {
		if fileExists(filepath.Join(dir, name)) {
			return name, true
		}
	}
	if dirExists(filepath.Join(dir, GitDirectory)) {
		return GitDirectory, true
	}
	return "", false
}

func isValidProjectRoot(dir string) bool {
	marker, ok := rootMarker(dir)
	return ok && marker != GitDirectory
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ResolvePath makes a relative path absolute. A path that exists relative to
// the working directory resolves there; otherwise it resolves against the
// project root.
func ResolvePath(path string, logger *slog.Logger) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	if _, err := os.Stat(path); err == nil {
		return filepath.Abs(path)
	}

	root, err := FindProjectRoot(logger)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return filepath.Join(root, path), nil
}
