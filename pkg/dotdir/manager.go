// Package dotdir resolves the .textgen/ directory that holds config.toml.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the textgen directory.
	dirName = ".textgen"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to a .textgen/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.textgen/ dir
//  3. Home ~/.textgen/ dir
//  4. If none found, returns an empty string
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating textgen directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if dirExists(filepath.Join(cwd, dirName)) {
		return filepath.Join(cwd, dirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	if dirExists(filepath.Join(home, dirName)) {
		return filepath.Join(home, dirName), nil
	}

	return "", nil
}

// HomeDir returns ~/.textgen, creating it if needed.
func (m *Manager) HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir := filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating textgen directory %s: %w", dir, err)
	}
	return dir, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
