package chromium

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorBuildCmdArgsUsesProvidedUserDataDir(t *testing.T) {
	a := &Allocator{initFlags: map[string]interface{}{"user-data-dir": "/tmp/existing-dir"}}

	store := &DataStore{}
	args, err := a.buildCmdArgs(store)

	require.NoError(t, err)
	assert.Equal(t, "/tmp/existing-dir", store.Dir)
	assert.False(t, store.remove)
	assert.Contains(t, args, "--user-data-dir=/tmp/existing-dir")
}

func TestAllocatorBuildCmdArgsCreatesTempUserDataDir(t *testing.T) {
	a := &Allocator{initFlags: map[string]interface{}{}}

	store := &DataStore{}
	_, err := a.buildCmdArgs(store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(store.Dir) })

	assert.NotEmpty(t, store.Dir)
	assert.True(t, store.remove)
	assert.DirExists(t, store.Dir)
}

func TestAllocatorBuildCmdArgsRejectsInvalidFlagType(t *testing.T) {
	a := &Allocator{initFlags: map[string]interface{}{"bad-flag": 42}}

	_, err := a.buildCmdArgs(&DataStore{})
	assert.Error(t, err)
}

func TestAllocatorFindExecPathSetsAFallback(t *testing.T) {
	a := &Allocator{execPath: "google-chrome"}
	a.findExecPath()
	assert.NotEmpty(t, a.execPath)
}

func TestDataStoreMakeAndCleanup(t *testing.T) {
	t.Parallel()

	t.Run("creates and removes a temp dir", func(t *testing.T) {
		t.Parallel()
		store := &DataStore{}
		require.NoError(t, store.Make(t.TempDir(), nil))
		assert.DirExists(t, store.Dir)

		store.Cleanup()
		assert.NoDirExists(t, store.Dir)
	})

	t.Run("keeps a provided dir", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		store := &DataStore{}
		require.NoError(t, store.Make("", dir))
		assert.Equal(t, dir, store.Dir)

		store.Cleanup()
		assert.DirExists(t, dir)
	})
}
