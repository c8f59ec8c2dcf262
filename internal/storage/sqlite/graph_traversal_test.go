package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

func TestTraverse_MultiHopBidirectional(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, b, c := sampleMemory(), sampleMemory(), sampleMemory()
	require.NoError(t, store.Store(ctx, a))
	require.NoError(t, store.Store(ctx, b))
	require.NoError(t, store.Store(ctx, c))

	require.NoError(t, store.CreateLink(ctx, &types.Link{SourceID: a.ID, TargetID: b.ID, LinkType: types.LinkExtends, Strength: 0.8, CreatedAt: time.Now().UTC()}))
	require.NoError(t, store.CreateLink(ctx, &types.Link{SourceID: c.ID, TargetID: b.ID, LinkType: types.LinkReferences, Strength: 0.5, CreatedAt: time.Now().UTC()}))

	results, err := store.Traverse(ctx, a.ID, storage.GraphBounds{MaxHops: 2, Limit: 10})
	require.NoError(t, err)

	var found []string
	for _, r := range results {
		found = append(found, r.Memory.ID.String())
	}
	require.Contains(t, found, b.ID.String())
	require.Contains(t, found, c.ID.String())

	for _, r := range results {
		if r.Memory.ID == b.ID {
			require.Equal(t, 1, r.HopDistance)
		}
		if r.Memory.ID == c.ID {
			require.Equal(t, 2, r.HopDistance)
		}
	}
}

func TestTraverse_NoLinksReturnsNil(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleMemory()
	require.NoError(t, store.Store(ctx, a))

	results, err := store.Traverse(ctx, a.ID, storage.GraphBounds{MaxHops: 2, Limit: 10})
	require.NoError(t, err)
	require.Nil(t, results)
}

func TestTraverse_ExcludesArchivedNeighbors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, b := sampleMemory(), sampleMemory()
	require.NoError(t, store.Store(ctx, a))
	require.NoError(t, store.Store(ctx, b))
	require.NoError(t, store.CreateLink(ctx, &types.Link{SourceID: a.ID, TargetID: b.ID, LinkType: types.LinkExtends, Strength: 0.5, CreatedAt: time.Now().UTC()}))
	require.NoError(t, store.Archive(ctx, b.ID))

	results, err := store.Traverse(ctx, a.ID, storage.GraphBounds{MaxHops: 2, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestTraverse_RespectsLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleMemory()
	require.NoError(t, store.Store(ctx, a))

	for i := 0; i < 5; i++ {
		n := sampleMemory()
		require.NoError(t, store.Store(ctx, n))
		require.NoError(t, store.CreateLink(ctx, &types.Link{SourceID: a.ID, TargetID: n.ID, LinkType: types.LinkExtends, Strength: 0.5, CreatedAt: time.Now().UTC()}))
	}

	results, err := store.Traverse(ctx, a.ID, storage.GraphBounds{MaxHops: 1, Limit: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
}
