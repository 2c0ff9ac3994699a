package local

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/shopscan/internal/snapshot"
)

func newTestStore(t *testing.T) (*LocalSnapshotStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewLocalSnapshotStore(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return store, dir
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestLocalSnapshotStoreSaveAndLatest(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	key, err := store.Save(ctx, "session-1", bytes.NewReader([]byte("first")))
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	rc, err := store.Latest(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), readAll(t, rc))
}

func TestLocalSnapshotStoreKeepsOnlyNewest(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	first, err := store.Save(ctx, "session-1", bytes.NewReader([]byte("first")))
	require.NoError(t, err)
	_, err = store.Save(ctx, "session-1", bytes.NewReader([]byte("second")))
	require.NoError(t, err)

	rc, err := store.Latest(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), readAll(t, rc))

	_, err = os.Stat(filepath.Join(dir, first))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalSnapshotStoreSessionsIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, "a", bytes.NewReader([]byte("for a")))
	require.NoError(t, err)

	_, err = store.Latest(ctx, "b")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestLocalSnapshotStoreDeleteSession(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, "session-1", bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(ctx, "session-1"))

	_, err = store.Latest(ctx, "session-1")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
	_, err = os.Stat(filepath.Join(dir, "session-1"))
	assert.True(t, os.IsNotExist(err))

	// Deleting again is harmless.
	assert.NoError(t, store.DeleteSession(ctx, "session-1"))
}

func TestLocalSnapshotStorePathTraversal(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, "../../etc", bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, errPathTraversal)

	assert.ErrorIs(t, store.DeleteSession(ctx, "../.."), errPathTraversal)
}

func TestLocalSnapshotStoreCancelledContext(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Save(ctx, "session-1", bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, context.Canceled)
}
