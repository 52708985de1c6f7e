package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/projects")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "projects"), got)

	got, err = ExpandPath("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)
}

func TestExpandPathRelative(t *testing.T) {
	got, err := ExpandPath("somewhere")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestCanonicalizeResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(real, 0o750))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(real, link))

	assert.Equal(t, Canonicalize(real), Canonicalize(link))
}

func TestCanonicalizeMissingPathFallsBack(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	got := Canonicalize(missing)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, missing, got)
}
