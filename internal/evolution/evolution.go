// Package evolution runs the background jobs that keep a memory store
// healthy as it ages: deduplicating near-duplicate memories, recalibrating
// importance as memories age or prove useful, decaying stale links, and
// archiving memories nobody reads anymore. Each job is idempotent and safe
// to interrupt mid-run: every mutation is its own transaction, so a crash
// between candidates leaves the store consistent.
package evolution

import (
	"context"
	"time"

	"github.com/rand/mnemosyne/pkg/types"
)

// Outcome reports what a job did in one run.
type Outcome struct {
	Processed int
	Changed   int
}

// Job is one evolution job category. Run scans the store (bounded by the
// job's own candidate-selection rule), applies its decision rule, and
// returns how much it touched.
type Job interface {
	Name() types.JobName
	Run(ctx context.Context) (Outcome, error)
}

// pageSize bounds how many rows a job pulls into memory per AllNonArchived/
// AllDecayable page.
const pageSize = 200

// clampImportance clamps an importance score to the valid [1,10] range
// after recalibration's additive terms, per §4.5.2.
func clampImportance(v float64) int {
	r := int(v + 0.5) // round half up, matching §4.5.2's "round"
	if r < 1 {
		return 1
	}
	if r > 10 {
		return 10
	}
	return r
}

func daysSince(t time.Time, now time.Time) float64 {
	return now.Sub(t).Hours() / 24
}
