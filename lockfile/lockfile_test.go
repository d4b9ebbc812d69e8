package lockfile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDigest = "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestNew(t *testing.T) {
	lock := New()
	assert.Equal(t, 1, lock.Version)
	assert.False(t, lock.Generated.IsZero())
	assert.Zero(t, lock.Count())
	assert.NoError(t, lock.Validate())
}

func TestAddRequiresDigest(t *testing.T) {
	lock := New()
	err := lock.Add("elm", ExtensionLock{Source: "github:finos/morphir-elm"})
	require.Error(t, err)
	assert.Zero(t, lock.Count())
}

func TestAddAndGet(t *testing.T) {
	lock := New()
	before := lock.Generated

	require.NoError(t, lock.Add("elm", ExtensionLock{
		Source:   "github:finos/morphir-elm@v2.90.0/morphir-elm.wasm",
		Resolved: "2.90.0",
		Digest:   testDigest,
		Fetched:  time.Now().UTC(),
	}))

	entry := lock.Get("elm")
	require.NotNil(t, entry)
	assert.Equal(t, "2.90.0", entry.Resolved)
	assert.Equal(t, testDigest, entry.Digest)
	assert.False(t, lock.Generated.Before(before))

	assert.Nil(t, lock.Get("missing"))
}

func TestAddReplacesEntry(t *testing.T) {
	lock := New()
	require.NoError(t, lock.Add("elm", ExtensionLock{Source: "s", Resolved: "1.0.0", Digest: testDigest}))
	require.NoError(t, lock.Add("elm", ExtensionLock{Source: "s", Resolved: "2.0.0", Digest: testDigest}))

	assert.Equal(t, 1, lock.Count())
	assert.Equal(t, "2.0.0", lock.Get("elm").Resolved)
}

func TestRemove(t *testing.T) {
	lock := New()
	require.NoError(t, lock.Add("elm", ExtensionLock{Source: "s", Digest: testDigest}))

	lock.Remove("elm")
	assert.Zero(t, lock.Count())

	lock.Remove("never-there")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		lock    Lockfile
		wantErr string
	}{
		{name: "empty", lock: Lockfile{Version: 1}},
		{
			name: "entries without timestamp",
			lock: Lockfile{
				Version:    1,
				Extensions: map[string]ExtensionLock{"x": {Source: "s", Digest: testDigest}},
			},
			wantErr: "generated",
		},
		{
			name: "entry missing digest",
			lock: Lockfile{
				Version:    1,
				Generated:  time.Now(),
				Extensions: map[string]ExtensionLock{"x": {Source: "s"}},
			},
			wantErr: "digest",
		},
		{
			name: "entry missing source",
			lock: Lockfile{
				Version:    1,
				Generated:  time.Now(),
				Extensions: map[string]ExtensionLock{"x": {Digest: testDigest}},
			},
			wantErr: "source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lock.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
