// Package workspace materializes one repository on disk and owns its
// lifecycle: deterministic path layout, shallow clone, and best-effort
// removal.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codetrawl/internal/logging"
	"github.com/fyrsmithlabs/codetrawl/internal/metrics"
	"github.com/fyrsmithlabs/codetrawl/internal/search"
)

// ErrWorkspaceExists indicates the target path is already occupied,
// likely by a previous run. The task fails fast rather than mixing
// stale and fresh results.
var ErrWorkspaceExists = errors.New("workspace path already exists")

// CloneFunc performs a shallow clone of url into path. It must create
// path and its parents.
type CloneFunc func(ctx context.Context, url, path string) error

// GitClone is the default CloneFunc, a single-commit clone via go-git.
func GitClone(ctx context.Context, url, path string) error {
	_, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	return err
}

// Manager computes workspace paths under the target directory and
// clones repositories into them. Each workspace is exclusively owned by
// the task processing its repository; paths never collide because
// descriptors are unique per (owner, name).
type Manager struct {
	targetDir string
	clone     CloneFunc
	log       *logging.Logger
}

// NewManager creates a workspace manager rooted at targetDir.
func NewManager(targetDir string, log *logging.Logger) *Manager {
	return &Manager{
		targetDir: targetDir,
		clone:     GitClone,
		log:       log.Named("workspace"),
	}
}

// SetCloneFunc replaces the clone operation. Tests substitute a fake.
func (m *Manager) SetCloneFunc(fn CloneFunc) {
	m.clone = fn
}

// Path returns the deterministic workspace path for a descriptor:
// {target-dir}/{owner}/{name}.
func (m *Manager) Path(desc search.Descriptor) string {
	return filepath.Join(m.targetDir, desc.Owner, desc.Name)
}

// Clone materializes the repository and returns its workspace path.
// An already-existing path fails fast with ErrWorkspaceExists. A failed
// clone may leave a partial directory behind; the caller removes it via
// Remove when cleanup is enabled.
func (m *Manager) Clone(ctx context.Context, desc search.Descriptor) (string, error) {
	path := m.Path(desc)

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrWorkspaceExists, path)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat workspace path %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create owner directory: %w", err)
	}

	if err := m.clone(ctx, desc.CloneURL, path); err != nil {
		return "", fmt.Errorf("failed to clone %s: %w", desc.ID(), err)
	}

	m.log.Debug("cloned repository",
		zap.String("repo", desc.ID()),
		zap.String("path", path))
	return path, nil
}

// Remove deletes the workspace directory recursively, then deletes the
// owner directory if it is now empty. Owner directories are shared
// across repositories, so emptiness is re-checked here instead of being
// tracked: removal of an already-absent path is an idempotent no-op.
// Both deletions are best-effort and never retried.
func (m *Manager) Remove(desc search.Descriptor) {
	path := m.Path(desc)

	// Refuse to remove anything outside the target directory.
	if rel, err := filepath.Rel(m.targetDir, path); err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		m.log.Warn("refusing to remove path outside target directory",
			zap.String("path", path))
		return
	}

	if err := os.RemoveAll(path); err != nil {
		metrics.CleanupFailures.Inc()
		m.log.Warn("failed to remove workspace",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	m.log.Debug("removed workspace", zap.String("path", path))

	ownerDir := filepath.Dir(path)
	entries, err := os.ReadDir(ownerDir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn("failed to read owner directory",
				zap.String("path", ownerDir),
				zap.Error(err))
		}
		return
	}
	if len(entries) > 0 {
		return
	}
	if err := os.Remove(ownerDir); err != nil {
		metrics.CleanupFailures.Inc()
		m.log.Warn("failed to remove empty owner directory",
			zap.String("path", ownerDir),
			zap.Error(err))
		return
	}
	m.log.Debug("removed empty owner directory", zap.String("path", ownerDir))
}
