package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codetrawl/internal/logging"
	"github.com/fyrsmithlabs/codetrawl/internal/search"
)

var testDesc = search.Descriptor{
	Owner:    "alice",
	Name:     "solver",
	CloneURL: "https://github.com/alice/solver.git",
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	targetDir := t.TempDir()
	m := NewManager(targetDir, logging.NewTestLogger().Logger)
	m.SetCloneFunc(func(ctx context.Context, url, path string) error {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(path, "main.c"), []byte("int main;\n"), 0o644)
	})
	return m, targetDir
}

func TestPath(t *testing.T) {
	m, targetDir := newTestManager(t)
	assert.Equal(t, filepath.Join(targetDir, "alice", "solver"), m.Path(testDesc))
}

func TestClone(t *testing.T) {
	m, targetDir := newTestManager(t)

	path, err := m.Clone(context.Background(), testDesc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(targetDir, "alice", "solver"), path)
	assert.FileExists(t, filepath.Join(path, "main.c"))
}

func TestCloneCollision(t *testing.T) {
	m, targetDir := newTestManager(t)

	stale := filepath.Join(targetDir, "alice", "solver")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "old.c"), []byte("stale\n"), 0o644))

	_, err := m.Clone(context.Background(), testDesc)
	require.ErrorIs(t, err, ErrWorkspaceExists)

	// The existing directory must be left untouched.
	assert.FileExists(t, filepath.Join(stale, "old.c"))
}

func TestCloneFailure(t *testing.T) {
	m, _ := newTestManager(t)
	cloneErr := errors.New("remote hung up")
	m.SetCloneFunc(func(ctx context.Context, url, path string) error {
		return cloneErr
	})

	_, err := m.Clone(context.Background(), testDesc)
	require.Error(t, err)
	assert.ErrorIs(t, err, cloneErr)
}

func TestRemove(t *testing.T) {
	m, targetDir := newTestManager(t)

	path, err := m.Clone(context.Background(), testDesc)
	require.NoError(t, err)

	m.Remove(testDesc)
	assert.NoDirExists(t, path)
	// Owner directory is removed when it becomes empty.
	assert.NoDirExists(t, filepath.Join(targetDir, "alice"))
	assert.DirExists(t, targetDir)
}

func TestRemoveKeepsOccupiedOwnerDir(t *testing.T) {
	m, targetDir := newTestManager(t)

	_, err := m.Clone(context.Background(), testDesc)
	require.NoError(t, err)

	sibling := search.Descriptor{Owner: "alice", Name: "mesh", CloneURL: "https://github.com/alice/mesh.git"}
	siblingPath, err := m.Clone(context.Background(), sibling)
	require.NoError(t, err)

	m.Remove(testDesc)
	assert.NoDirExists(t, filepath.Join(targetDir, "alice", "solver"))
	assert.DirExists(t, siblingPath)
	assert.DirExists(t, filepath.Join(targetDir, "alice"))
}

func TestRemoveIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	// Nothing cloned; removal of an absent workspace is a no-op.
	m.Remove(testDesc)
	m.Remove(testDesc)
}

func TestRemoveRefusesEscape(t *testing.T) {
	targetDir := t.TempDir()
	outside := t.TempDir()
	marker := filepath.Join(outside, "keep.txt")
	require.NoError(t, os.WriteFile(marker, []byte("keep\n"), 0o644))

	m := NewManager(targetDir, logging.NewTestLogger().Logger)
	m.Remove(search.Descriptor{Owner: "..", Name: filepath.Base(outside)})

	assert.FileExists(t, marker)
}
