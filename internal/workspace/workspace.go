// Package workspace owns the per-build working directories of the worker.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrExists is returned when a build directory is already present
var ErrExists = errors.New("working directory already exists")

// Manager hands out build directories under a common root
type Manager struct {
	root string
}

// New ensures the workspace root exists
func New(root string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: root}, nil
}

// Root returns the configured root directory
func (m *Manager) Root() string {
	return m.root
}

// Path returns <root>/<repository>/<buildID> without touching the filesystem
func (m *Manager) Path(repository, buildID string) string {
	return filepath.Join(m.root, filepath.FromSlash(repository), buildID)
}

// Prepare creates a fresh directory for one build. Build ids are unique, so a
// leftover directory means two runs would share state and is refused.
func (m *Manager) Prepare(repository, buildID string) (string, error) {
	if repository == "" || buildID == "" {
		return "", fmt.Errorf("repository and build id are required")
	}
	dir := m.Path(repository, buildID)
	if !m.within(dir) {
		return "", fmt.Errorf("refusing to create workspace outside root: %s", dir)
	}
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, dir)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", fmt.Errorf("create workspace parent: %w", err)
	}
	// Mkdir (not MkdirAll) so a concurrent creator loses the race with an error.
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%w: %s", ErrExists, dir)
		}
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// Cleanup removes a directory previously returned by Prepare
func (m *Manager) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	if !m.within(path) {
		return fmt.Errorf("refusing to cleanup path outside workspace root")
	}
	return os.RemoveAll(path)
}

func (m *Manager) within(path string) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return false
	}
	return true
}
