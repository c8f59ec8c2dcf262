package types

import (
	"time"

	"github.com/google/uuid"
)

// Memory is the atomic unit of persisted knowledge.
type Memory struct {
	ID        uuid.UUID `json:"id"`
	Namespace Namespace `json:"namespace"`

	Content string `json:"content"`
	Summary string `json:"summary,omitempty"`

	Keywords []string `json:"keywords,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Context  string   `json:"context,omitempty"`

	MemoryType MemoryType `json:"memory_type"`
	Importance int        `json:"importance"`
	Confidence float64    `json:"confidence"`

	RelatedFiles    []string `json:"related_files,omitempty"`
	RelatedEntities []string `json:"related_entities,omitempty"`

	AccessCount    int       `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	IsArchived   bool       `json:"is_archived"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
	SupersededBy *uuid.UUID `json:"superseded_by,omitempty"`

	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
}

// Validate checks the invariants on Memory that hold independent of store
// state (cross-row invariants like "superseded_by points at a non-archived
// memory" are checked at the storage layer, which has the data to check
// them).
func (m *Memory) Validate() error {
	if err := ValidateImportance(m.Importance); err != nil {
		return err
	}
	if err := ValidateConfidence(m.Confidence); err != nil {
		return err
	}
	if !IsValidMemoryType(m.MemoryType) {
		return &InvalidMemoryTypeError{MemoryType: m.MemoryType}
	}
	if m.Content == "" {
		return ErrEmptyContent
	}
	if m.AccessCount < 0 {
		return ErrNegativeAccessCount
	}
	if m.IsArchived && m.ArchivedAt == nil {
		return ErrArchivedWithoutTimestamp
	}
	return nil
}

// Link is a typed, weighted, directional edge between two memories.
// (source_id, target_id, link_type) is the primary key.
type Link struct {
	SourceID uuid.UUID `json:"source_id"`
	TargetID uuid.UUID `json:"target_id"`
	LinkType LinkType  `json:"link_type"`

	Strength float64 `json:"strength"`
	Reason   string  `json:"reason,omitempty"`

	CreatedAt       time.Time  `json:"created_at"`
	LastTraversedAt *time.Time `json:"last_traversed_at,omitempty"`

	UserCreated bool `json:"user_created"`
}

// Validate checks the invariants on Link.
func (l *Link) Validate() error {
	if l.SourceID == l.TargetID {
		return ErrSelfLink
	}
	if !IsValidLinkType(l.LinkType) {
		return &InvalidLinkTypeError{LinkType: l.LinkType}
	}
	return ValidateStrength(l.Strength)
}

// AuditEntry is an append-only record of a state-changing operation.
// Audit rows are never mutated or deleted, even when the referenced memory
// is later hard-deleted (the row survives with a dangling MemoryID).
type AuditEntry struct {
	ID        uuid.UUID      `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Operation AuditOperation `json:"operation"`
	MemoryID  *uuid.UUID     `json:"memory_id,omitempty"`
	Metadata  string         `json:"metadata"` // opaque JSON, NOT NULL; "{}" if no payload
}

// JobRun records one execution of an evolution job.
type JobRun struct {
	ID                uuid.UUID  `json:"id"`
	JobName           JobName    `json:"job_name"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Status            JobStatus  `json:"status"`
	MemoriesProcessed int        `json:"memories_processed"`
	ChangesMade       int        `json:"changes_made"`
	ErrorMessage      string     `json:"error_message,omitempty"`
}

// ImportanceHistory records one importance change for later analysis.
type ImportanceHistory struct {
	MemoryID     uuid.UUID `json:"memory_id"`
	Timestamp    time.Time `json:"timestamp"`
	OldImportance int      `json:"old_importance"`
	NewImportance int      `json:"new_importance"`
	Reason       string    `json:"reason"`
}

// NewMemoryID generates a fresh opaque 128-bit memory identifier.
func NewMemoryID() uuid.UUID {
	return uuid.New()
}
