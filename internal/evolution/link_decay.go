package evolution

import (
	"context"
	"time"

	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// gracePeriodDays is how long a link is exempt from decay after its last
// traversal (or creation, if never traversed).
const gracePeriodDays = 7

// archiveBelowStrength is the strength floor below which a decayed link is
// removed rather than just weakened.
const archiveBelowStrength = 0.2

// LinkDecayJob weakens autonomous links that haven't been traversed
// recently, and removes ones that decay past usefulness (§4.5.3).
type LinkDecayJob struct {
	links storage.LinkStore
	now   func() time.Time
}

func NewLinkDecayJob(links storage.LinkStore) *LinkDecayJob {
	return &LinkDecayJob{links: links, now: func() time.Time { return time.Now().UTC() }}
}

func (j *LinkDecayJob) Name() types.JobName { return types.JobLinkDecay }

func (j *LinkDecayJob) Run(ctx context.Context) (Outcome, error) {
	now := j.now()
	var out Outcome

	err := j.links.AllDecayable(ctx, pageSize, func(l *types.Link) bool {
		out.Processed++

		last := l.CreatedAt
		if l.LastTraversedAt != nil {
			last = *l.LastTraversedAt
		}
		daysInactive := daysSince(last, now)
		if daysInactive <= gracePeriodDays {
			return true
		}

		newStrength := l.Strength * (1 - 0.01*(daysInactive-gracePeriodDays))
		if newStrength < 0 {
			newStrength = 0
		}
		if newStrength > 1 {
			newStrength = 1
		}

		if newStrength < archiveBelowStrength {
			if err := j.links.DeleteLink(ctx, l.SourceID, l.TargetID, l.LinkType); err == nil {
				out.Changed++
			}
			return true
		}

		if err := j.links.UpdateLinkStrength(ctx, l.SourceID, l.TargetID, l.LinkType, newStrength); err == nil {
			out.Changed++
		}
		return true
	})
	return out, err
}
