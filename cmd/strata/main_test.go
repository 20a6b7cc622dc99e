package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProjectRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	got := findProjectRoot(root)
	assert.Equal(t, root, got)
}

func TestFindProjectRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	got := findProjectRoot(deep)
	assert.Equal(t, root, got)
}

func TestFindProjectRoot_IndexBeatsGit(t *testing.T) {
	t.Parallel()
	// An existing index in a subdirectory wins over the enclosing git
	// repository, so a project indexed below the repo root keeps
	// resolving to its own index.
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	project := filepath.Join(root, "services", "api")
	require.NoError(t, os.MkdirAll(filepath.Join(project, ".strata"), 0o755))

	got := findProjectRoot(filepath.Join(project))
	assert.Equal(t, project, got)
}

func TestFindProjectRoot_NoMarkerAncestor(t *testing.T) {
	t.Parallel()
	// TempDir has neither marker anywhere in its ancestry (unless /tmp
	// itself is a repo, which would be unusual).
	dir := t.TempDir()

	got := findProjectRoot(dir)
	assert.Equal(t, dir, got)
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.Error(t, validateFormat("yaml"))
	assert.Error(t, validateFormat(""))
}
