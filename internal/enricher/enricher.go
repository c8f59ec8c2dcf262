// Package enricher turns raw captured content into a structured enrichment
// record (summary, keywords, tags, memory type, importance, confidence)
// with a single LLM call, degrading to a safe default rather than failing
// the capture when the call or its parsing goes wrong.
package enricher

import (
	"context"
	"time"

	"github.com/rand/mnemosyne/internal/llm"
	"github.com/rand/mnemosyne/pkg/types"
)

// Result is the structured output of an enrichment attempt.
type Result struct {
	Summary     string
	Keywords    []string
	Tags        []string
	MemoryType  types.MemoryType
	Importance  int
	Confidence  float64
	Degraded    bool
	FailureKind string
}

// Request carries the inputs an Enrich call needs.
type Request struct {
	Content        string
	Context        string
	MemoryTypeHint types.MemoryType
	ImportanceHint int
}

// Enricher produces an enrichment Result for captured content.
type Enricher interface {
	Enrich(ctx context.Context, req Request) Result
}

// llmEnricher is the production Enricher, backed by a TextGenerator behind
// a circuit breaker. A failing or slow LLM degrades to DegradedResult
// rather than propagating an error to the caller, per the capture path's
// "the memory is still stored" contract.
type llmEnricher struct {
	generator llm.TextGenerator
	breaker   *llm.CircuitBreaker
	timeout   time.Duration
}

// New constructs the production Enricher. timeout bounds a single LLM call;
// callers needing the contract's "<1s against a capable LLM" latency
// budget should pass something in that neighborhood (e.g. 5s headroom for
// slower self-hosted models).
func New(generator llm.TextGenerator, timeout time.Duration) Enricher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &llmEnricher{
		generator: generator,
		breaker:   llm.NewCircuitBreaker(),
		timeout:   timeout,
	}
}

func (e *llmEnricher) Enrich(ctx context.Context, req Request) Result {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := enrichmentPrompt(req)

	raw, err := e.breaker.Execute(callCtx, func() (interface{}, error) {
		return e.generator.Complete(callCtx, prompt)
	})
	if err != nil {
		return DegradedResult(req, "llm_call_failed")
	}

	response, ok := raw.(string)
	if !ok {
		return DegradedResult(req, "llm_call_failed")
	}

	parsed, err := parseEnrichmentResponse(response)
	if err != nil {
		return DegradedResult(req, "unparseable_response")
	}

	return Result{
		Summary:    parsed.Summary,
		Keywords:   parsed.Keywords,
		Tags:       parsed.Tags,
		MemoryType: parsed.MemoryType,
		Importance: parsed.Importance,
		Confidence: parsed.Confidence,
	}
}

// DegradedResult builds the failure-path default: empty summary/keywords/
// tags, memory type falling back to the caller's hint or "insight",
// importance falling back to the caller's hint or 5, confidence 0.0.
func DegradedResult(req Request, failureKind string) Result {
	memType := req.MemoryTypeHint
	if memType == "" {
		memType = types.MemoryTypeInsight
	}
	importance := req.ImportanceHint
	if importance < 1 || importance > 10 {
		importance = 5
	}
	return Result{
		MemoryType:  memType,
		Importance:  importance,
		Confidence:  0.0,
		Degraded:    true,
		FailureKind: failureKind,
	}
}
