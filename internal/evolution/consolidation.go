package evolution

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/llm"
	"github.com/rand/mnemosyne/internal/merrors"
	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// maxPairsPerRun bounds the number of candidate pairs judged per run, to
// keep LLM cost bounded regardless of namespace size (§4.5.1).
const maxPairsPerRun = 100

// tagOverlapThreshold and importanceGap are the cheap pairwise filter a
// candidate pair must pass before it's sent to the LLM.
const (
	tagOverlapThreshold = 0.6
	maxImportanceGap    = 3
)

// Decision is the Consolidator's verdict on one candidate pair.
type Decision string

const (
	DecisionMerge     Decision = "merge"
	DecisionSupersede Decision = "supersede"
	DecisionKeepBoth  Decision = "keep_both"
)

// Verdict is the Consolidator's structured output for a pair.
type Verdict struct {
	Decision        Decision
	CombinedContent string // only meaningful when Decision == DecisionMerge
}

// Consolidator judges whether a candidate pair of near-duplicate memories
// should be merged, have one supersede the other, or be kept as-is.
type Consolidator interface {
	Judge(ctx context.Context, a, b *types.Memory) (Verdict, error)
}

// ConsolidationJob scans each namespace for near-duplicate pairs (cheap
// local prefilter: tag overlap + importance proximity) and asks a
// Consolidator to resolve each one (§4.5.1).
type ConsolidationJob struct {
	memories     storage.MemoryStore
	links        storage.LinkStore
	consolidator Consolidator
	now          func() time.Time
}

func NewConsolidationJob(memories storage.MemoryStore, links storage.LinkStore, consolidator Consolidator) *ConsolidationJob {
	return &ConsolidationJob{memories: memories, links: links, consolidator: consolidator, now: func() time.Time { return time.Now().UTC() }}
}

func (j *ConsolidationJob) Name() types.JobName { return types.JobConsolidation }

func (j *ConsolidationJob) Run(ctx context.Context) (Outcome, error) {
	var out Outcome
	var pool []*types.Memory

	err := j.memories.AllNonArchived(ctx, pageSize, func(m *types.Memory) bool {
		pool = append(pool, m)
		return true
	})
	if err != nil {
		return out, err
	}

	pairsJudged := 0
	for i := 0; i < len(pool) && pairsJudged < maxPairsPerRun; i++ {
		for k := i + 1; k < len(pool) && pairsJudged < maxPairsPerRun; k++ {
			a, b := pool[i], pool[k]
			if a.Namespace != b.Namespace {
				continue
			}
			if !isCandidatePair(a, b) {
				continue
			}
			if alreadySuperseded(ctx, j.links, a.ID, b.ID) {
				continue
			}

			out.Processed++
			pairsJudged++

			verdict, err := j.consolidator.Judge(ctx, a, b)
			if err != nil {
				continue
			}
			if j.apply(ctx, a, b, verdict) {
				out.Changed++
			}
		}
	}
	return out, nil
}

// Consolidate judges one explicit pair and applies the verdict if accepted,
// for on-demand RPC-driven consolidation ("consolidate" with ids set), as
// opposed to Run's unattended full-namespace scan.
func (j *ConsolidationJob) Consolidate(ctx context.Context, a, b *types.Memory) (Verdict, bool, error) {
	verdict, err := j.consolidator.Judge(ctx, a, b)
	if err != nil {
		return verdict, false, err
	}
	return verdict, j.apply(ctx, a, b, verdict), nil
}

// FindCandidates returns near-duplicate pairs within namespace without
// judging or applying anything, for "consolidate" called without explicit
// ids (candidate-discovery mode).
func (j *ConsolidationJob) FindCandidates(ctx context.Context, namespace types.Namespace) ([][2]*types.Memory, error) {
	var pool []*types.Memory
	err := j.memories.AllNonArchived(ctx, pageSize, func(m *types.Memory) bool {
		if m.Namespace.Equal(namespace) {
			pool = append(pool, m)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	var candidates [][2]*types.Memory
	for i := 0; i < len(pool) && len(candidates) < maxPairsPerRun; i++ {
		for k := i + 1; k < len(pool) && len(candidates) < maxPairsPerRun; k++ {
			a, b := pool[i], pool[k]
			if !isCandidatePair(a, b) {
				continue
			}
			if alreadySuperseded(ctx, j.links, a.ID, b.ID) {
				continue
			}
			candidates = append(candidates, [2]*types.Memory{a, b})
		}
	}
	return candidates, nil
}

func isCandidatePair(a, b *types.Memory) bool {
	if tagJaccard(a.Tags, b.Tags) < tagOverlapThreshold {
		return false
	}
	gap := a.Importance - b.Importance
	if gap < 0 {
		gap = -gap
	}
	return gap <= maxImportanceGap
}

// alreadySuperseded reports whether a supersedes link already exists
// between a and b in either direction, so a resolved pair isn't re-judged
// every run.
func alreadySuperseded(ctx context.Context, links storage.LinkStore, a, b uuid.UUID) bool {
	supersedes := types.LinkSupersedes
	for _, id := range [2]uuid.UUID{a, b} {
		outgoing, err := links.LinksFrom(ctx, id, &supersedes)
		if err != nil {
			continue
		}
		for _, l := range outgoing {
			if l.TargetID == a || l.TargetID == b {
				return true
			}
		}
	}
	return false
}

func (j *ConsolidationJob) apply(ctx context.Context, a, b *types.Memory, v Verdict) bool {
	switch v.Decision {
	case DecisionMerge:
		survivor, other := a, b
		if survivor.ID.String() < other.ID.String() {
			survivor, other = other, survivor
		}
		content := v.CombinedContent
		if content == "" {
			content = survivor.Content
		}
		importance := survivor.Importance
		if other.Importance > importance {
			importance = other.Importance
		}
		if _, err := j.memories.Update(ctx, survivor.ID, storage.MemoryPatch{
			Content:    &content,
			Importance: &importance,
		}); err != nil {
			return false
		}
		if err := j.memories.Supersede(ctx, survivor.ID, other.ID); err != nil {
			return false
		}
		return true

	case DecisionSupersede:
		winner, loser := a, b
		if b.Importance > a.Importance || (b.Importance == a.Importance && b.CreatedAt.After(a.CreatedAt)) {
			winner, loser = b, a
		}
		if err := j.memories.Supersede(ctx, winner.ID, loser.ID); err != nil {
			return false
		}
		return true

	case DecisionKeepBoth:
		link := &types.Link{
			SourceID:    a.ID,
			TargetID:    b.ID,
			LinkType:    types.LinkReferences,
			Strength:    0.5,
			CreatedAt:   j.now(),
			UserCreated: false,
		}
		if err := j.links.CreateLink(ctx, link); err != nil && !merrors.Is(err, merrors.KindConflict) {
			return false
		}
		return true
	}
	return false
}

// llmConsolidator is the production Consolidator, backed by a TextGenerator
// behind a circuit breaker, matching the Enricher/Linker degrade-to-noop
// contract: a failing or slow LLM call means "skip this pair", never a
// process-wide error.
type llmConsolidator struct {
	generator llm.TextGenerator
	breaker   *llm.CircuitBreaker
	timeout   time.Duration
}

func NewLLMConsolidator(generator llm.TextGenerator, timeout time.Duration) Consolidator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &llmConsolidator{generator: generator, breaker: llm.NewCircuitBreaker(), timeout: timeout}
}

func (c *llmConsolidator) Judge(ctx context.Context, a, b *types.Memory) (Verdict, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := consolidationPrompt(a, b)
	raw, err := c.breaker.Execute(callCtx, func() (interface{}, error) {
		return c.generator.Complete(callCtx, prompt)
	})
	if err != nil {
		return Verdict{Decision: DecisionKeepBoth}, err
	}
	response, ok := raw.(string)
	if !ok {
		return Verdict{Decision: DecisionKeepBoth}, nil
	}
	return parseConsolidationVerdict(response), nil
}

func tagJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[strings.ToLower(t)] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[strings.ToLower(t)] = true
	}
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
