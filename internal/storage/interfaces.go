// Package storage provides composable storage interfaces for Mnemosyne's
// persistence layer.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed, following the interface
// segregation principle; MemoryStore, SearchProvider, GraphProvider, and
// LinkStore each cover one concern and are composed by callers that need
// more than one.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/pkg/types"
)

// MemoryStore provides CRUD operations and pagination for memories. This is
// the core storage interface for memory lifecycle management (§4.1 of
// SPEC_FULL.md).
type MemoryStore interface {
	// Store inserts a new memory and its "create" audit row in a single
	// transaction.
	Store(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory by ID. Returns a merrors.KindNotFound error if
	// the memory doesn't exist, or exists but is archived and
	// includeArchived is false.
	Get(ctx context.Context, id uuid.UUID, includeArchived bool) (*types.Memory, error)

	// List retrieves memories with pagination and filtering (non-ranked
	// enumeration, backing the RPC "list" method).
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Memory], error)

	// Update mutates the directly-mutable fields of a memory (importance,
	// tags, content, related_files, related_entities), bumps updated_at, and
	// writes an "update" audit row, all in one transaction. Keeps the FTS
	// index synchronized via trigger.
	Update(ctx context.Context, id uuid.UUID, patch MemoryPatch) (*types.Memory, error)

	// Archive soft-deletes a memory: sets is_archived=true, archived_at=now,
	// writes an "archive" audit row. Idempotent: archiving an
	// already-archived memory is a no-op and writes no second audit row.
	Archive(ctx context.Context, id uuid.UUID) error

	// Supersede soft-archives oldID with audit "supersede", sets
	// oldID.superseded_by = newID, and creates a user_created "supersedes"
	// link newID -> oldID, all in one transaction.
	Supersede(ctx context.Context, newID, oldID uuid.UUID) error

	// HardDelete permanently removes a memory and cascades to its incident
	// links. Audit rows referencing the deleted id are left with a dangling
	// memory_id, per §3.1.
	HardDelete(ctx context.Context, id uuid.UUID) error

	// IncrementAccessCount atomically increments access_count and bumps
	// last_accessed_at for id. Implemented as a single atomic
	// UPDATE ... SET access_count = access_count + 1 to avoid the
	// read-modify-write race called out in SPEC_FULL.md §9.
	IncrementAccessCount(ctx context.Context, id uuid.UUID) error

	// AllNonArchived streams every non-archived memory to visit in pages of
	// pageSize, for evolution jobs that must scan the whole store. Returns
	// when visit returns false or the store is exhausted.
	AllNonArchived(ctx context.Context, pageSize int, visit func(*types.Memory) bool) error

	// RecordImportanceChange appends an ImportanceHistory row and writes the
	// accompanying "update" audit row.
	RecordImportanceChange(ctx context.Context, h types.ImportanceHistory) error

	// FirstImportance returns the importance recorded in the first
	// ImportanceHistory row for id, or the memory's current importance if no
	// history exists yet.
	FirstImportance(ctx context.Context, id uuid.UUID) (int, error)

	// ApplyEnrichment writes an Enricher result onto an already-stored
	// memory (summary, keywords, tags, memory_type, importance, confidence),
	// bumps updated_at, and writes an "update" audit row, all in one
	// transaction. Distinct from Update/MemoryPatch, which carries only the
	// fields a caller may directly edit; enrichment fills in fields the
	// caller never supplies.
	ApplyEnrichment(ctx context.Context, id uuid.UUID, patch EnrichmentPatch) (*types.Memory, error)

	// Close releases any resources held by the store.
	Close() error
}

// LinkStore manages the typed edges between memories.
type LinkStore interface {
	// CreateLink inserts a link and its "link_create" audit row in one
	// transaction. A duplicate (source, target, link_type) key inserts
	// nothing and returns a merrors.KindConflict error, which callers may
	// treat as a no-op.
	CreateLink(ctx context.Context, link *types.Link) error

	// UpdateLinkStrength mutates strength and writes a "link_update" audit
	// row. Used by link decay.
	UpdateLinkStrength(ctx context.Context, sourceID, targetID uuid.UUID, linkType types.LinkType, newStrength float64) error

	// DeleteLink removes a link and writes a "link_delete" audit row.
	DeleteLink(ctx context.Context, sourceID, targetID uuid.UUID, linkType types.LinkType) error

	// LinksFrom returns the outgoing links from id, optionally filtered to a
	// single link type.
	LinksFrom(ctx context.Context, id uuid.UUID, linkType *types.LinkType) ([]*types.Link, error)

	// LinksTo returns the incoming links to id.
	LinksTo(ctx context.Context, id uuid.UUID) ([]*types.Link, error)

	// AllDecayable streams every non-user-created link with strength > 0.1
	// in pages of pageSize, for the link decay job.
	AllDecayable(ctx context.Context, pageSize int, visit func(*types.Link) bool) error

	// NeighborCount returns the number of links incident to id with
	// strength >= minStrength whose other end is a non-archived memory, for
	// importance recalibration's
	// graph_boost term.
	NeighborCount(ctx context.Context, id uuid.UUID, minStrength float64) (int, error)
}

// SearchProvider provides keyword and vector search capabilities used by the
// Retriever (C4).
type SearchProvider interface {
	// FullTextSearch returns memories matching query ranked by the store's
	// inverted-index score, restricted to opts.Namespace (and widened scopes
	// if opts.WidenNamespace is set).
	FullTextSearch(ctx context.Context, query string, opts SearchOptions) ([]ScoredMemory, error)

	// VectorSearch returns memories ranked by cosine similarity to
	// queryEmbedding. Returns an empty slice (not an error) if no embeddings
	// are stored or the vector index is unavailable.
	VectorSearch(ctx context.Context, queryEmbedding []float32, opts SearchOptions) ([]ScoredMemory, error)
}

// GraphProvider provides bounded link-graph traversal, used by both the
// Retriever's graph score signal and the RPC "graph" method.
type GraphProvider interface {
	// Traverse performs bounded BFS over the link graph starting at id, up
	// to bounds.MaxHops, returning up to bounds.Limit results ordered by hop
	// distance ascending then importance descending.
	Traverse(ctx context.Context, id uuid.UUID, bounds GraphBounds) ([]TraversalResult, error)
}

// EmbeddingProvider manages vector embeddings with model/dimension tracking,
// so the Retriever can detect vector-space incompatibility when the
// enrichment embedding model changes (§9).
type EmbeddingProvider interface {
	StoreEmbedding(ctx context.Context, memoryID uuid.UUID, embedding []float32, model string) error
	GetEmbedding(ctx context.Context, memoryID uuid.UUID) ([]float32, string, error)
	DeleteEmbedding(ctx context.Context, memoryID uuid.UUID) error
}

// MemoryPatch carries the directly-mutable fields an RPC "update" call may
// change. Nil fields are left unchanged.
type MemoryPatch struct {
	Content         *string
	Importance      *int
	Tags            []string
	RelatedFiles    []string
	RelatedEntities []string
}

// EnrichmentPatch carries the fields an Enricher result (internal/enricher)
// fills in on a memory after its initial capture.
type EnrichmentPatch struct {
	Summary    string
	Keywords   []string
	Tags       []string
	MemoryType types.MemoryType
	Importance int
	Confidence float64
}

// ScoredMemory pairs a memory with one search provider's raw (pre-fusion)
// score contribution.
type ScoredMemory struct {
	Memory *types.Memory
	Score  float64
}

// JobRunStore persists evolution job execution history, backing the
// scheduler's (C6) bookkeeping and the "status" CLI command.
type JobRunStore interface {
	// StartJobRun inserts a JobRun row with status "running" and returns
	// its generated ID.
	StartJobRun(ctx context.Context, jobName types.JobName, startedAt time.Time) (uuid.UUID, error)

	// FinishJobRun updates a JobRun's status, counters, completion time,
	// and error message (stored whenever errMsg is non-empty, e.g. for a
	// failed or timed-out run).
	FinishJobRun(ctx context.Context, id uuid.UUID, status types.JobStatus, processed, changed int, errMsg string, completedAt time.Time) error

	// LastRun returns the most recently started JobRun for jobName, or nil
	// if the job has never run.
	LastRun(ctx context.Context, jobName types.JobName) (*types.JobRun, error)

	// RecentRuns returns up to limit most recent JobRun rows across all
	// job categories, newest first, for the "status" command.
	RecentRuns(ctx context.Context, limit int) ([]types.JobRun, error)
}
