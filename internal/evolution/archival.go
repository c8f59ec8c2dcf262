package evolution

import (
	"context"
	"time"

	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// lowImportanceCeiling, staleDaysForLowImportance, neverAccessedMaxAgeDays,
// and supersededGraceDays are the three independent archival thresholds of
// §4.5.4; a memory archives as soon as any one is met.
const (
	lowImportanceCeiling      = 2
	staleDaysForLowImportance = 90
	neverAccessedMaxAgeDays   = 180
	supersededGraceDays       = 7
)

// ArchivalJob soft-archives memories that have gone unused long enough to
// meet one of three independent thresholds (§4.5.4).
type ArchivalJob struct {
	memories storage.MemoryStore
	now      func() time.Time
}

func NewArchivalJob(memories storage.MemoryStore) *ArchivalJob {
	return &ArchivalJob{memories: memories, now: func() time.Time { return time.Now().UTC() }}
}

func (j *ArchivalJob) Name() types.JobName { return types.JobArchival }

func (j *ArchivalJob) Run(ctx context.Context) (Outcome, error) {
	now := j.now()
	var out Outcome

	err := j.memories.AllNonArchived(ctx, pageSize, func(m *types.Memory) bool {
		out.Processed++
		if !shouldArchive(m, now) {
			return true
		}
		if err := j.memories.Archive(ctx, m.ID); err == nil {
			out.Changed++
		}
		return true
	})
	return out, err
}

func shouldArchive(m *types.Memory, now time.Time) bool {
	daysSinceAccess := daysSince(m.LastAccessedAt, now)
	if m.Importance < lowImportanceCeiling && daysSinceAccess > staleDaysForLowImportance {
		return true
	}
	if m.AccessCount == 0 && daysSince(m.CreatedAt, now) > neverAccessedMaxAgeDays {
		return true
	}
	if m.SupersededBy != nil {
		// SupersededBy is set at supersession time; UpdatedAt is bumped
		// whenever Supersede runs, so it stands in for "days since
		// supersession" without a dedicated column.
		if daysSince(m.UpdatedAt, now) > supersededGraceDays {
			return true
		}
	}
	return false
}
