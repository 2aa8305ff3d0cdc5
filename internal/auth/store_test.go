package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")

	store, err := NewStore(path)
	require.NoError(t, err)

	u := NewUser("alice")
	require.NoError(t, store.Put(u))

	reloaded, err := NewStore(path)
	require.NoError(t, err)

	got, ok := reloaded.Get(u.UID)
	require.True(t, ok)
	assert.Equal(t, u.Username, got.Username)
}

func TestStore_DeleteRollsBackOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")

	store, err := NewStore(path)
	require.NoError(t, err)
	u := NewUser("alice")
	require.NoError(t, store.Put(u))

	// Point the store at a path inside a missing directory so persisting
	// fails (the temp file cannot be created there), then verify the
	// in-memory user is still present.
	store.path = filepath.Join(dir, "missing-subdir", "users.json")
	err = store.Delete(u.UID)
	assert.Error(t, err)

	_, ok := store.Get(u.UID)
	assert.True(t, ok, "delete should roll back on persistence failure")
}

func TestStore_HasOwner(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "users.json"))
	require.NoError(t, err)
	assert.False(t, store.HasOwner())

	owner := NewUser("root")
	owner.IsOwner = true
	require.NoError(t, store.Put(owner))
	assert.True(t, store.HasOwner())
}

func TestNewStore_MissingFileStartsEmpty(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Empty(t, store.All())
}

func TestNewStore_CorruptFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := NewStore(path)
	assert.Error(t, err)
}
