// Package linker proposes typed edges between a newly-stored memory and its
// candidate neighbors, using an LLM to judge relationship type and strength
// over a small, cheaply-selected candidate set.
package linker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/llm"
	"github.com/rand/mnemosyne/pkg/types"
)

// Request bundles the anchor memory and the candidates it may link to.
type Request struct {
	Memory     *types.Memory
	Candidates []*types.Memory
}

// ProposedEdge is a single directed edge from Request.Memory to a candidate,
// as judged by the Linker. Strength and LinkType are not yet validated
// against the accept threshold; callers apply that filter.
type ProposedEdge struct {
	TargetID uuid.UUID
	LinkType types.LinkType
	Strength float64
	Reason   string
}

// AcceptThreshold is the minimum strength a proposed edge must carry to be
// written as a link.
const AcceptThreshold = 0.3

// MaxCandidates bounds the number of candidates sent to the LLM per call, to
// keep the prompt (and its cost) bounded regardless of namespace size.
const MaxCandidates = 20

// Linker judges candidate edges for a memory.
type Linker interface {
	Propose(ctx context.Context, req Request) ([]ProposedEdge, error)
}

type llmLinker struct {
	generator llm.TextGenerator
	breaker   *llm.CircuitBreaker
	timeout   time.Duration
}

// New constructs the LLM-backed Linker. timeout bounds a single proposal
// call; a breaker trip or timeout degrades to zero proposed edges rather
// than failing memory storage.
func New(generator llm.TextGenerator, timeout time.Duration) Linker {
	return &llmLinker{
		generator: generator,
		breaker:   llm.NewCircuitBreaker(),
		timeout:   timeout,
	}
}

func (l *llmLinker) Propose(ctx context.Context, req Request) ([]ProposedEdge, error) {
	if len(req.Candidates) == 0 {
		return nil, nil
	}
	candidates := req.Candidates
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	prompt := edgeProposalPrompt(req.Memory, candidates)
	raw, err := l.breaker.Execute(callCtx, func() (interface{}, error) {
		return l.generator.Complete(callCtx, prompt)
	})
	if err != nil {
		return nil, nil
	}
	response, ok := raw.(string)
	if !ok {
		return nil, nil
	}

	return parseEdgeProposals(response, candidates)
}

// DedupByMaxStrength collapses duplicate (target, link_type) proposals,
// keeping the highest-strength one, per the accept-dedup rule.
func DedupByMaxStrength(edges []ProposedEdge) []ProposedEdge {
	type key struct {
		target uuid.UUID
		kind   types.LinkType
	}
	best := make(map[key]ProposedEdge, len(edges))
	order := make([]key, 0, len(edges))
	for _, e := range edges {
		k := key{e.TargetID, e.LinkType}
		if existing, ok := best[k]; !ok {
			best[k] = e
			order = append(order, k)
		} else if e.Strength > existing.Strength {
			best[k] = e
		}
	}
	out := make([]ProposedEdge, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

// Accepted filters proposed edges down to those meeting AcceptThreshold,
// after deduplication.
func Accepted(edges []ProposedEdge) []ProposedEdge {
	deduped := DedupByMaxStrength(edges)
	out := make([]ProposedEdge, 0, len(deduped))
	for _, e := range deduped {
		if e.Strength >= AcceptThreshold {
			out = append(out, e)
		}
	}
	return out
}

// ToLink converts an accepted proposal into the persisted Link shape,
// sourced from memoryID and stamped user_created=false per the Linker's
// autonomous-edge contract.
func ToLink(sourceID uuid.UUID, e ProposedEdge) *types.Link {
	return &types.Link{
		SourceID:    sourceID,
		TargetID:    e.TargetID,
		LinkType:    e.LinkType,
		Strength:    e.Strength,
		Reason:      e.Reason,
		CreatedAt:   time.Now().UTC(),
		UserCreated: false,
	}
}
