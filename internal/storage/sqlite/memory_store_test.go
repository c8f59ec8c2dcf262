package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleMemory() *types.Memory {
	now := time.Now().UTC()
	return &types.Memory{
		ID:             types.NewMemoryID(),
		Namespace:      types.NewProject("demo"),
		Content:        "use context.Context for cancellation",
		MemoryType:     types.MemoryTypeCodePattern,
		Importance:     5,
		Confidence:     0.8,
		LastAccessedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryStore_StoreAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := sampleMemory()
	require.NoError(t, store.Store(ctx, m))

	got, err := store.Get(ctx, m.ID, false)
	require.NoError(t, err)
	require.Equal(t, m.Content, got.Content)
	require.True(t, m.Namespace.Equal(got.Namespace))
}

func TestMemoryStore_Get_ArchivedHiddenByDefault(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := sampleMemory()
	require.NoError(t, store.Store(ctx, m))
	require.NoError(t, store.Archive(ctx, m.ID))

	_, err := store.Get(ctx, m.ID, false)
	require.Error(t, err)

	got, err := store.Get(ctx, m.ID, true)
	require.NoError(t, err)
	require.True(t, got.IsArchived)
}

func TestMemoryStore_Archive_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := sampleMemory()
	require.NoError(t, store.Store(ctx, m))
	require.NoError(t, store.Archive(ctx, m.ID))
	require.NoError(t, store.Archive(ctx, m.ID))
}

func TestMemoryStore_IncrementAccessCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := sampleMemory()
	require.NoError(t, store.Store(ctx, m))
	require.NoError(t, store.IncrementAccessCount(ctx, m.ID))
	require.NoError(t, store.IncrementAccessCount(ctx, m.ID))

	got, err := store.Get(ctx, m.ID, false)
	require.NoError(t, err)
	require.Equal(t, 2, got.AccessCount)
}

func TestMemoryStore_Update(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := sampleMemory()
	require.NoError(t, store.Store(ctx, m))

	newContent := "use context.Context with explicit deadlines"
	newImportance := 8
	updated, err := store.Update(ctx, m.ID, storage.MemoryPatch{
		Content:    &newContent,
		Importance: &newImportance,
	})
	require.NoError(t, err)
	require.Equal(t, newContent, updated.Content)
	require.Equal(t, newImportance, updated.Importance)
}

func TestMemoryStore_Supersede(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := sampleMemory()
	require.NoError(t, store.Store(ctx, old))

	replacement := sampleMemory()
	replacement.Content = "revised guidance"
	require.NoError(t, store.Store(ctx, replacement))

	require.NoError(t, store.Supersede(ctx, replacement.ID, old.ID))

	got, err := store.Get(ctx, old.ID, true)
	require.NoError(t, err)
	require.True(t, got.IsArchived)
	require.NotNil(t, got.SupersededBy)
	require.Equal(t, replacement.ID, *got.SupersededBy)

	links, err := store.LinksFrom(ctx, replacement.ID, nil)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, types.LinkSupersedes, links[0].LinkType)
	require.True(t, links[0].UserCreated)
}

func TestMemoryStore_HardDelete_CascadesLinks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleMemory()
	b := sampleMemory()
	require.NoError(t, store.Store(ctx, a))
	require.NoError(t, store.Store(ctx, b))

	require.NoError(t, store.CreateLink(ctx, &types.Link{
		SourceID: a.ID, TargetID: b.ID, LinkType: types.LinkExtends, Strength: 0.5, CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, store.HardDelete(ctx, a.ID))

	links, err := store.LinksFrom(ctx, a.ID, nil)
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestMemoryStore_List_FiltersByNamespace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleMemory()
	a.Namespace = types.NewProject("alpha")
	b := sampleMemory()
	b.Namespace = types.NewProject("beta")
	require.NoError(t, store.Store(ctx, a))
	require.NoError(t, store.Store(ctx, b))

	result, err := store.List(ctx, storage.ListOptions{Namespace: types.NewProject("alpha"), Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, a.ID, result.Items[0].ID)
}

func TestMemoryStore_FirstImportance_NoHistoryFallsBackToCurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := sampleMemory()
	require.NoError(t, store.Store(ctx, m))

	first, err := store.FirstImportance(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, m.Importance, first)
}

func TestMemoryStore_AllNonArchived_SkipsArchived(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleMemory()
	b := sampleMemory()
	require.NoError(t, store.Store(ctx, a))
	require.NoError(t, store.Store(ctx, b))
	require.NoError(t, store.Archive(ctx, b.ID))

	var seen []uuid.UUID
	err := store.AllNonArchived(ctx, 10, func(m *types.Memory) bool {
		seen = append(seen, m.ID)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a.ID}, seen)
}
