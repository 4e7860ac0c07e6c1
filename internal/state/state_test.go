package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "instinctd")

	s, err := Open(root)
	require.NoError(t, err)

	assert.DirExists(t, s.ArchiveDir)
	assert.DirExists(t, s.PatternsDir)
	assert.DirExists(t, s.ArtifactsDir)
	assert.DirExists(t, s.CheckpointsDir)
	assert.FileExists(t, filepath.Join(root, "identity.json"))
}

func TestOpen_IdentityStableAcrossReopen(t *testing.T) {
	root := t.TempDir()

	s1, err := Open(root)
	require.NoError(t, err)
	id1 := s1.Identity()
	require.NotEmpty(t, id1.ID)

	s2, err := Open(root)
	require.NoError(t, err)
	id2 := s2.Identity()

	assert.Equal(t, id1.ID, id2.ID)
	assert.Equal(t, Version, id2.Version)
}

func TestOpen_CorruptIdentityRewritten(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "identity.json"), []byte("{not json"), 0o600))

	s, err := Open(root)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Identity().ID)
}

func TestArtifactDir(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	dir, err := s.ArtifactDir("skill")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(s.ArtifactsDir, "skills"), dir)
}
