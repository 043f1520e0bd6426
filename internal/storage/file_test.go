package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodonik/tierlist-client/pkg/errors"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), "passphrase")
	require.NoError(t, err)

	require.NoError(t, store.SetItem(ctx, KeyToken, "jwt-value"))

	got, err := store.GetItem(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "jwt-value", got)
}

func TestFileStore_MissingItem(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "passphrase")
	require.NoError(t, err)

	_, err = store.GetItem(context.Background(), KeyToken)
	assert.True(t, errors.Is(err, errors.ErrItemNotFound))
}

func TestFileStore_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), "passphrase")
	require.NoError(t, err)

	require.NoError(t, store.SetItem(ctx, KeyUser, `{"id":"u1"}`))
	require.NoError(t, store.RemoveItem(ctx, KeyUser))
	require.NoError(t, store.RemoveItem(ctx, KeyUser))

	_, err = store.GetItem(ctx, KeyUser)
	assert.True(t, errors.Is(err, errors.ErrItemNotFound))
}

func TestFileStore_ValuesEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir, "passphrase")
	require.NoError(t, err)

	secret := "very-secret-token-material"
	require.NoError(t, store.SetItem(ctx, KeyToken, secret))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		require.NoError(t, err)
		assert.NotContains(t, string(data), secret)
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir, "passphrase")
	require.NoError(t, err)
	require.NoError(t, store.SetItem(ctx, KeyToken, "persisted"))

	reopened, err := NewFileStore(dir, "passphrase")
	require.NoError(t, err)
	got, err := reopened.GetItem(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got)
}

func TestFileStore_WrongPassphraseIsStorageError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir, "passphrase")
	require.NoError(t, err)
	require.NoError(t, store.SetItem(ctx, KeyToken, "persisted"))

	other, err := NewFileStore(dir, "different")
	require.NoError(t, err)
	_, err = other.GetItem(ctx, KeyToken)
	assert.True(t, errors.Is(err, errors.ErrStorage))
}

func TestFileStore_CorruptedItemIsStorageError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir, "passphrase")
	require.NoError(t, err)
	require.NoError(t, store.SetItem(ctx, KeyToken, "persisted"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".cred") {
			require.NoError(t, os.WriteFile(filepath.Join(dir, entry.Name()), []byte("garbage!"), 0600))
		}
	}

	_, err = store.GetItem(ctx, KeyToken)
	assert.True(t, errors.Is(err, errors.ErrStorage))
}

func TestMemStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	require.NoError(t, store.SetItem(ctx, KeyToken, "t1"))
	got, err := store.GetItem(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "t1", got)

	require.NoError(t, store.RemoveItem(ctx, KeyToken))
	_, err = store.GetItem(ctx, KeyToken)
	assert.True(t, errors.Is(err, errors.ErrItemNotFound))
}
