package preferences_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenpath/greenpath/internal/preferences"
)

func openSQLite(t *testing.T) (*preferences.SQLiteStorage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "greenpath.db")
	storage, err := preferences.OpenSQLiteStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage, path
}

func TestSQLiteStorage_CRUD(t *testing.T) {
	ctx := context.Background()
	storage, _ := openSQLite(t)

	_, err := storage.Get(ctx, "missing")
	assert.ErrorIs(t, err, preferences.ErrNotFound)

	require.NoError(t, storage.Set(ctx, "k", []byte(`{"a":1}`)))
	require.NoError(t, storage.Set(ctx, "k", []byte(`{"a":2}`)))

	got, err := storage.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(got))

	require.NoError(t, storage.Delete(ctx, "k"))
	require.NoError(t, storage.Delete(ctx, "k"), "deleting a missing key is fine")
	_, err = storage.Get(ctx, "k")
	assert.ErrorIs(t, err, preferences.ErrNotFound)
}

func TestSQLiteStorage_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	storage, path := openSQLite(t)

	svc := newService(storage)
	require.NoError(t, svc.RecordRouteSelection(ctx, home, work, preferences.RouteCool))
	require.NoError(t, storage.Close())

	reopened, err := preferences.OpenSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec := newStore(reopened).Load(ctx)
	require.Len(t, rec.RouteHistory, 1)
	assert.Equal(t, preferences.RouteCool, rec.PreferredRouteType)
}

func TestSQLiteStorage_CancelledContext(t *testing.T) {
	storage, _ := openSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, storage.Set(ctx, "k", []byte("v")), context.Canceled)
}

func TestOpenSQLiteStorage_RequiresPath(t *testing.T) {
	_, err := preferences.OpenSQLiteStorage("  ")
	assert.Error(t, err)
}
