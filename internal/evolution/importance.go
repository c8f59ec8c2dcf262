package evolution

import (
	"context"
	"math"
	"time"

	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// ImportanceJob recalibrates each non-archived memory's importance from its
// age, access frequency, and graph centrality (§4.5.2).
type ImportanceJob struct {
	memories storage.MemoryStore
	links    storage.LinkStore
	now      func() time.Time
}

func NewImportanceJob(memories storage.MemoryStore, links storage.LinkStore) *ImportanceJob {
	return &ImportanceJob{memories: memories, links: links, now: func() time.Time { return time.Now().UTC() }}
}

func (j *ImportanceJob) Name() types.JobName { return types.JobImportance }

// graphBoostMinStrength is the link-strength floor counted toward a
// memory's neighbor_count in the graph_boost term.
const graphBoostMinStrength = 0.3

func (j *ImportanceJob) Run(ctx context.Context) (Outcome, error) {
	now := j.now()
	var out Outcome

	err := j.memories.AllNonArchived(ctx, pageSize, func(m *types.Memory) bool {
		out.Processed++

		base, err := j.memories.FirstImportance(ctx, m.ID)
		if err != nil {
			return true
		}

		ageDays := daysSince(m.CreatedAt, now)
		recency := float64(base) * math.Exp(-ageDays/30)
		accessBoost := math.Min(float64(m.AccessCount)*0.1, 2.0)

		neighbors, err := j.links.NeighborCount(ctx, m.ID, graphBoostMinStrength)
		if err != nil {
			neighbors = 0
		}
		graphBoost := math.Min(float64(neighbors)*0.05, 1.0)

		newImportance := clampImportance(recency + accessBoost + graphBoost)
		if newImportance == m.Importance {
			return true
		}

		if err := j.memories.RecordImportanceChange(ctx, types.ImportanceHistory{
			MemoryID:      m.ID,
			Timestamp:     now,
			OldImportance: m.Importance,
			NewImportance: newImportance,
			Reason:        "recalibration",
		}); err != nil {
			return true
		}
		patch := newImportance
		if _, err := j.memories.Update(ctx, m.ID, storage.MemoryPatch{Importance: &patch}); err == nil {
			out.Changed++
		}
		return true
	})
	return out, err
}
