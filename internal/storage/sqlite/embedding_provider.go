package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/merrors"
)

// StoreEmbedding serializes embedding as a little-endian float32 BLOB in
// vec_memories (see migrations/003_vector_embeddings.up.sql for why this
// project stores vectors itself instead of delegating to a loadable SQLite
// vector extension).
func (s *MemoryStore) StoreEmbedding(ctx context.Context, memoryID uuid.UUID, embedding []float32, model string) error {
	if len(embedding) == 0 {
		return merrors.New(merrors.KindInvalidParams, "embedding vector cannot be empty")
	}
	if model == "" {
		return merrors.New(merrors.KindInvalidParams, "embedding model is required")
	}

	blob := serializeEmbedding(embedding)
	now := timeString(time.Now().UTC())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vec_memories (memory_id, embedding, dimension, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			embedding = excluded.embedding, dimension = excluded.dimension,
			model = excluded.model, updated_at = excluded.updated_at
	`, memoryID.String(), blob, len(embedding), model, now, now)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "store embedding", err)
	}

	_, err = s.db.ExecContext(ctx, "UPDATE memories SET embedding_model = ? WHERE id = ?", model, memoryID.String())
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "update embedding model", err)
	}

	s.embedCache.Add(memoryID, embedding)
	return nil
}

func (s *MemoryStore) GetEmbedding(ctx context.Context, memoryID uuid.UUID) ([]float32, string, error) {
	var blob []byte
	var dimension int
	var model string

	err := s.db.QueryRowContext(ctx, `
		SELECT embedding, dimension, model FROM vec_memories WHERE memory_id = ?
	`, memoryID.String()).Scan(&blob, &dimension, &model)
	if err == sql.ErrNoRows {
		return nil, "", merrors.New(merrors.KindNotFound, "no embedding stored for memory")
	}
	if err != nil {
		return nil, "", merrors.Wrap(merrors.KindStorageUnavailable, "get embedding", err)
	}

	embedding, err := deserializeEmbedding(blob, dimension)
	if err != nil {
		return nil, "", merrors.Wrap(merrors.KindInternalError, "deserialize embedding", err)
	}
	return embedding, model, nil
}

func (s *MemoryStore) DeleteEmbedding(ctx context.Context, memoryID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM vec_memories WHERE memory_id = ?", memoryID.String())
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "delete embedding", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return merrors.New(merrors.KindNotFound, "no embedding stored for memory")
	}

	s.embedCache.Remove(memoryID)
	return nil
}

func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func deserializeEmbedding(buf []byte, dimension int) ([]float32, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension: %d", dimension)
	}
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("embedding buffer size mismatch: expected %d bytes, got %d", dimension*4, len(buf))
	}
	out := make([]float32, dimension)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
