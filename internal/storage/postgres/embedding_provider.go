package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log"
	"math"

	pgvector "github.com/pgvector/pgvector-go"
	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/merrors"
)

// StoreEmbedding always writes the little-endian float32 BYTEA form so
// vector search keeps working on servers without pgvector; when pgvector
// is available it also populates embedding_vec for the ivfflat index.
func (s *MemoryStore) StoreEmbedding(ctx context.Context, memoryID uuid.UUID, embedding []float32, model string) error {
	if len(embedding) == 0 {
		return merrors.New(merrors.KindInvalidParams, "embedding vector cannot be empty")
	}
	if model == "" {
		return merrors.New(merrors.KindInvalidParams, "embedding model is required")
	}

	blob := serializeEmbedding(embedding)

	if s.pgvectorAvailable {
		vec := pgvector.NewVector(embedding)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO vec_memories (memory_id, embedding, dimension, model, embedding_vec, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			ON CONFLICT (memory_id) DO UPDATE SET
				embedding = excluded.embedding, dimension = excluded.dimension,
				model = excluded.model, embedding_vec = excluded.embedding_vec, updated_at = NOW()
		`, memoryID.String(), blob, len(embedding), model, vec)
		if err != nil {
			log.Printf("postgres: failed to store embedding_vec (falling back to BYTEA only): %v", err)
		} else {
			s.embedCache.Add(memoryID, embedding)
			return s.updateEmbeddingModel(ctx, memoryID, model)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vec_memories (memory_id, embedding, dimension, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (memory_id) DO UPDATE SET
			embedding = excluded.embedding, dimension = excluded.dimension,
			model = excluded.model, updated_at = NOW()
	`, memoryID.String(), blob, len(embedding), model)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "store embedding", err)
	}
	s.embedCache.Add(memoryID, embedding)
	return s.updateEmbeddingModel(ctx, memoryID, model)
}

func (s *MemoryStore) updateEmbeddingModel(ctx context.Context, memoryID uuid.UUID, model string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE memories SET embedding_model = $1 WHERE id = $2", model, memoryID.String()); err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "update embedding model", err)
	}
	return nil
}

func (s *MemoryStore) GetEmbedding(ctx context.Context, memoryID uuid.UUID) ([]float32, string, error) {
	var blob []byte
	var dimension int
	var model string

	err := s.db.QueryRowContext(ctx, `
		SELECT embedding, dimension, model FROM vec_memories WHERE memory_id = $1
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
	res, err := s.db.ExecContext(ctx, "DELETE FROM vec_memories WHERE memory_id = $1", memoryID.String())
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
