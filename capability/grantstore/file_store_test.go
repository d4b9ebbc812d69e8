package grantstore

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphir-dev/exthost/extension/ports"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(WithPath(filepath.Join(t.TempDir(), "grants.yaml")))
	grants, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "grants.yaml")
	s := NewFileStore(WithPath(path))

	in := map[string]ports.Grant{
		"elm":   {ExtensionID: "elm", ExternalReads: true},
		"scala": {ExtensionID: "scala", ExternalReads: true, ExternalWrites: true},
	}
	require.NoError(t, s.Save(in))

	out, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoadStampsExtensionIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")
	// A hand-edited file may omit the id inside each entry.
	doc := "grants:\n  elm:\n    external_reads: true\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s := NewFileStore(WithPath(path))
	grants, err := s.Load()
	require.NoError(t, err)
	require.Contains(t, grants, "elm")
	assert.Equal(t, "elm", grants["elm"].ExtensionID)
	assert.True(t, grants["elm"].ExternalReads)
}

func TestLoadRejectsMalformedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grants: [not a map"), 0o600))

	s := NewFileStore(WithPath(path))
	_, err := s.Load()
	assert.Error(t, err)
}

func TestSaveNilGrants(t *testing.T) {
	s := NewFileStore(WithPath(filepath.Join(t.TempDir(), "grants.yaml")))
	require.NoError(t, s.Save(nil))

	grants, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are advisory on windows")
	}

	path := filepath.Join(t.TempDir(), "grants.yaml")
	s := NewFileStore(WithPath(path))
	require.NoError(t, s.Save(map[string]ports.Grant{"elm": {ExtensionID: "elm"}}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")
	assert.Equal(t, path, NewFileStore(WithPath(path)).ConfigPath())
}
