package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workspaceConfig() *VirtualPathConfig {
	return ForWorkspace("/real/project", "/real/out", "")
}

func TestStrictSandboxDeniesOutsidePaths(t *testing.T) {
	s := New(workspaceConfig())

	_, err := s.ResolveRead("/etc/passwd")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.NotErrorIs(t, err, ErrInvalidPath)

	_, err = s.ResolveWrite("/etc/passwd")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestStrictSandboxResolvesMappedPaths(t *testing.T) {
	s := New(workspaceConfig())

	real, err := s.ResolveRead("/workspace/src/Main.elm")
	require.NoError(t, err)
	assert.Contains(t, real, "/real/project")

	real, err = s.ResolveWrite("/output/Main.scala")
	require.NoError(t, err)
	assert.Contains(t, real, "/real/out")
}

func TestExternalReadEscapeHatch(t *testing.T) {
	s := WithExternalAccess(workspaceConfig(), true, false)

	assert.True(t, s.CanRead("/etc/hosts"))
	assert.False(t, s.CanWrite("/etc/hosts"))

	// Policy passes but no mapping covers it: configuration gap, not a
	// security denial.
	_, err := s.ResolveRead("/etc/hosts")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.NotErrorIs(t, err, ErrAccessDenied)

	_, err = s.ResolveWrite("/etc/hosts")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestPermissiveSandbox(t *testing.T) {
	s := Permissive(workspaceConfig())

	assert.True(t, s.CanRead("/anywhere"))
	assert.True(t, s.CanWrite("/anywhere"))

	real, err := s.ResolveRead("/workspace/morphir.json")
	require.NoError(t, err)
	assert.NotEmpty(t, real)
}
