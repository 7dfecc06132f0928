package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gowiki/internal/wiki"
)

func newTestStore(t *testing.T) *PageStore {
	t.Helper()
	store, err := New(Config{Path: filepath.Join(t.TempDir(), "db", "wiki.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestNewRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Path: " "}, nil)
	require.ErrorContains(t, err, "database path is required")
}

func TestInitIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.Init(context.Background()))
	require.NoError(t, store.Ping(context.Background()))
}

func TestPageLifecycle(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	names, err := store.ListPageNames(ctx)
	require.NoError(t, err)
	require.Empty(t, names)

	id, err := store.CreatePage(ctx, "Home", "# Home")
	require.NoError(t, err)
	require.Positive(t, id)

	_, err = store.CreatePage(ctx, "Home", "duplicate")
	require.ErrorIs(t, err, wiki.ErrConflict)

	_, err = store.CreatePage(ctx, "About", "about us")
	require.NoError(t, err)

	names, err = store.ListPageNames(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"About", "Home"}, names)

	require.NoError(t, store.SavePage(ctx, id, "# Home, edited"))
	page, err := store.GetPage(ctx, "Home")
	require.NoError(t, err)
	require.Equal(t, wiki.Page{ID: id, Name: "Home", Content: "# Home, edited"}, page)

	all, err := store.AllPages(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "Home", all[0].Name)

	require.NoError(t, store.DeletePage(ctx, id))
	_, err = store.GetPage(ctx, "Home")
	require.ErrorIs(t, err, wiki.ErrNotFound)
	require.ErrorIs(t, store.DeletePage(ctx, id), wiki.ErrNotFound)
	require.ErrorIs(t, store.SavePage(ctx, id, "gone"), wiki.ErrNotFound)
}

func TestPagesSurviveReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wiki.db")
	ctx := context.Background()

	first, err := New(Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, first.Init(ctx))
	_, err = first.CreatePage(ctx, "Persistent", "still here")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(Config{Path: path}, nil)
	require.NoError(t, err)
	defer second.Close() //nolint:errcheck // test cleanup
	require.NoError(t, second.Init(ctx))
	page, err := second.GetPage(ctx, "Persistent")
	require.NoError(t, err)
	require.Equal(t, "still here", page.Content)
}

func TestInMemoryDatabase(t *testing.T) {
	t.Parallel()

	store, err := New(Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	_, err = store.CreatePage(ctx, "Scratch", "x")
	require.NoError(t, err)
	names, err := store.ListPageNames(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Scratch"}, names)
}
