package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rand/mnemosyne/internal/merrors"
)

func TestEmbeddingProvider_StoreGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := sampleMemory()
	require.NoError(t, store.Store(ctx, m))

	vec := []float32{0.1, 0.2, 0.3, 0.4}
	require.NoError(t, store.StoreEmbedding(ctx, m.ID, vec, "test-model"))

	got, model, err := store.GetEmbedding(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "test-model", model)
	require.Equal(t, vec, got)

	require.NoError(t, store.DeleteEmbedding(ctx, m.ID))
	_, _, err = store.GetEmbedding(ctx, m.ID)
	require.Error(t, err)
	require.Equal(t, merrors.KindNotFound, merrors.KindOf(err))
}

func TestEmbeddingProvider_StoreEmbedding_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := sampleMemory()
	require.NoError(t, store.Store(ctx, m))

	require.NoError(t, store.StoreEmbedding(ctx, m.ID, []float32{1, 0, 0}, "model-a"))
	require.NoError(t, store.StoreEmbedding(ctx, m.ID, []float32{0, 1, 0, 0}, "model-b"))

	got, model, err := store.GetEmbedding(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "model-b", model)
	require.Equal(t, []float32{0, 1, 0, 0}, got)
}

func TestEmbeddingProvider_StoreEmbedding_RejectsEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := sampleMemory()
	require.NoError(t, store.Store(ctx, m))

	err := store.StoreEmbedding(ctx, m.ID, nil, "model")
	require.Error(t, err)
	require.Equal(t, merrors.KindInvalidParams, merrors.KindOf(err))
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 0.0001)
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
	require.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 0.0001)
	require.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestSerializeDeserializeEmbedding_RoundTrip(t *testing.T) {
	vec := []float32{0.5, -0.25, 1.75, 0}
	blob := serializeEmbedding(vec)
	got, err := deserializeEmbedding(blob, len(vec))
	require.NoError(t, err)
	require.Equal(t, vec, got)
}

func TestDeserializeEmbedding_SizeMismatch(t *testing.T) {
	_, err := deserializeEmbedding([]byte{1, 2, 3}, 4)
	require.Error(t, err)
}
