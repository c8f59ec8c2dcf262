package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/enricher"
	"github.com/rand/mnemosyne/internal/linker"
	"github.com/rand/mnemosyne/internal/merrors"
	"github.com/rand/mnemosyne/internal/retriever"
	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// MemoryEngine is the capture/recall orchestrator. Capture validates input,
// writes the memory synchronously, and queues enrichment+linking onto a
// worker pool so the caller's round trip stays fast; recall delegates
// directly to the Retriever. This is the component the RPC surface and CLI
// entrypoints call into — it owns no storage of its own beyond what it is
// constructed with.
type MemoryEngine struct {
	config Config

	memories storage.MemoryStore
	links    storage.LinkStore
	search   storage.SearchProvider

	enricher enricher.Enricher
	linker   linker.Linker
	recall   *retriever.Retriever

	queue        chan *EnrichmentJob
	workerWG     sync.WaitGroup
	workerCancel context.CancelFunc

	mu           sync.RWMutex
	started      bool
	shuttingDown bool

	onMemoryCreated      func(id uuid.UUID)
	onEnrichmentComplete func(id uuid.UUID, linksWritten int)
}

// New constructs a MemoryEngine. search and recall's graph/embedding
// providers may be partial depending on the active backend; linker may be
// nil to disable link proposal entirely (capture then only stores + enriches).
func New(
	config Config,
	memories storage.MemoryStore,
	links storage.LinkStore,
	search storage.SearchProvider,
	enr enricher.Enricher,
	lnk linker.Linker,
	recall *retriever.Retriever,
) (*MemoryEngine, error) {
	if memories == nil {
		return nil, merrors.New(merrors.KindInvalidParams, "memory store is required")
	}
	if err := config.Validate(); err != nil {
		return nil, merrors.Wrap(merrors.KindInvalidParams, "invalid engine config", err)
	}

	return &MemoryEngine{
		config:   config,
		memories: memories,
		links:    links,
		search:   search,
		enricher: enr,
		linker:   lnk,
		recall:   recall,
		queue:    make(chan *EnrichmentJob, config.QueueSize),
	}, nil
}

// SetOnMemoryCreated sets a callback fired synchronously after a new memory
// is durably stored (before enrichment runs). Intended for the event
// broadcaster to publish a MemoryStored event.
func (e *MemoryEngine) SetOnMemoryCreated(cb func(id uuid.UUID)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMemoryCreated = cb
}

// SetOnEnrichmentComplete sets a callback fired when a queued job finishes
// (whether enrichment degraded or not), reporting how many links the
// Linker wrote.
func (e *MemoryEngine) SetOnEnrichmentComplete(cb func(id uuid.UUID, linksWritten int)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnrichmentComplete = cb
}

// Start launches the worker pool. Must be called before Capture.
func (e *MemoryEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return merrors.New(merrors.KindConflict, "engine already started")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	e.workerCancel = cancel

	for i := 0; i < e.config.NumWorkers; i++ {
		e.workerWG.Add(1)
		go e.runWorker(workerCtx)
	}

	e.started = true
	return nil
}

// Shutdown stops accepting new jobs and waits (bounded by
// config.ShutdownTimeout) for in-flight jobs to drain.
func (e *MemoryEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return merrors.New(merrors.KindConflict, "engine not started")
	}
	e.shuttingDown = true
	e.workerCancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(e.config.ShutdownTimeout):
		log.Printf("engine: shutdown timed out after %v, workers may still be draining", e.config.ShutdownTimeout)
	case <-ctx.Done():
	}

	e.mu.Lock()
	e.started = false
	e.shuttingDown = false
	e.mu.Unlock()
	return nil
}

// Capture validates and stores a new memory, then queues it for
// asynchronous enrichment (content → summary/keywords/tags/type/importance)
// and linking. It returns as soon as the memory is durably written;
// enrichment failures never fail the capture (§4.2's degraded-result
// contract) and a full enrichment queue only skips the async pass, not the
// store itself.
func (e *MemoryEngine) Capture(ctx context.Context, req CaptureRequest) (*types.Memory, error) {
	e.mu.RLock()
	started := e.started && !e.shuttingDown
	e.mu.RUnlock()
	if !started {
		return nil, merrors.New(merrors.KindConflict, "engine not started")
	}

	if req.Content == "" {
		return nil, merrors.New(merrors.KindInvalidParams, "content is required")
	}
	if req.Namespace.Kind == "" {
		return nil, merrors.New(merrors.KindInvalidNamespace, "namespace is required")
	}

	now := time.Now().UTC()
	memType := req.MemoryTypeHint
	if memType == "" {
		memType = types.MemoryTypeInsight
	}
	importance := req.ImportanceHint
	if importance < 1 || importance > 10 {
		importance = 5
	}

	memory := &types.Memory{
		ID:              types.NewMemoryID(),
		Namespace:       req.Namespace,
		Content:         req.Content,
		Context:         req.Context,
		MemoryType:      memType,
		Importance:      importance,
		Confidence:      0.0,
		RelatedFiles:    req.RelatedFiles,
		RelatedEntities: req.RelatedEntities,
		LastAccessedAt:  now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := memory.Validate(); err != nil {
		return nil, merrors.Wrap(merrors.KindInvalidParams, "invalid memory", err)
	}

	if err := e.memories.Store(ctx, memory); err != nil {
		return nil, err
	}

	e.mu.RLock()
	created := e.onMemoryCreated
	e.mu.RUnlock()
	if created != nil {
		created(memory.ID)
	}

	job := &EnrichmentJob{MemoryID: memory.ID.String(), Content: memory.Content, Timestamp: now}
	if !e.enqueue(job) {
		log.Printf("engine: enrichment queue full, memory %s stored without enrichment", memory.ID)
	}

	return memory, nil
}

// CaptureRequest carries Capture's inputs.
type CaptureRequest struct {
	Content         string
	Context         string
	Namespace       types.Namespace
	MemoryTypeHint  types.MemoryType
	ImportanceHint  int
	RelatedFiles    []string
	RelatedEntities []string
}

// Recall delegates to the Retriever for the hybrid ranked-search read path.
func (e *MemoryEngine) Recall(ctx context.Context, query string, namespace types.Namespace, opts retriever.Options) ([]retriever.Result, error) {
	e.mu.RLock()
	started := e.started
	e.mu.RUnlock()
	if !started {
		return nil, merrors.New(merrors.KindConflict, "engine not started")
	}
	if e.recall == nil {
		return nil, merrors.New(merrors.KindInternalError, "retriever not configured")
	}
	return e.recall.Recall(ctx, query, namespace, opts)
}

// Get retrieves a memory by ID.
func (e *MemoryEngine) Get(ctx context.Context, id uuid.UUID, includeArchived bool) (*types.Memory, error) {
	return e.memories.Get(ctx, id, includeArchived)
}

// List retrieves memories with pagination and filtering.
func (e *MemoryEngine) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	return e.memories.List(ctx, opts)
}

// QueueSize reports the current backlog of unprocessed enrichment jobs.
func (e *MemoryEngine) QueueSize() int {
	return len(e.queue)
}

func (e *MemoryEngine) enqueue(job *EnrichmentJob) bool {
	select {
	case e.queue <- job:
		return true
	default:
		return false
	}
}

func (e *MemoryEngine) runWorker(ctx context.Context) {
	defer e.workerWG.Done()
	for {
		select {
		case <-ctx.Done():
			e.drainQueue(context.Background())
			return
		case job, ok := <-e.queue:
			if !ok {
				return
			}
			e.process(ctx, job)
		}
	}
}

// drainQueue processes whatever remains in the queue once after the worker
// context is cancelled, using a background context so in-flight enrichment
// calls aren't cut off mid-request by the same cancellation that stopped
// the worker loop.
func (e *MemoryEngine) drainQueue(ctx context.Context) {
	for {
		select {
		case job, ok := <-e.queue:
			if !ok {
				return
			}
			e.process(ctx, job)
		default:
			return
		}
	}
}

func (e *MemoryEngine) process(ctx context.Context, job *EnrichmentJob) {
	id, err := uuid.Parse(job.MemoryID)
	if err != nil {
		log.Printf("engine: job has invalid memory id %q: %v", job.MemoryID, err)
		return
	}

	memory, err := e.memories.Get(ctx, id, true)
	if err != nil {
		log.Printf("engine: enrichment job could not load memory %s: %v", id, err)
		return
	}

	if e.enricher != nil {
		result := e.enricher.Enrich(ctx, enricher.Request{
			Content:        memory.Content,
			Context:        memory.Context,
			MemoryTypeHint: memory.MemoryType,
			ImportanceHint: memory.Importance,
		})
		patch := storage.EnrichmentPatch{
			Summary:    result.Summary,
			Keywords:   result.Keywords,
			Tags:       result.Tags,
			MemoryType: result.MemoryType,
			Importance: result.Importance,
			Confidence: result.Confidence,
		}
		updated, err := e.memories.ApplyEnrichment(ctx, id, patch)
		if err != nil {
			log.Printf("engine: failed to apply enrichment to memory %s: %v", id, err)
		} else {
			memory = updated
		}
		if result.Degraded {
			log.Printf("engine: enrichment degraded for memory %s (%s)", id, result.FailureKind)
		}
	}

	linksWritten := 0
	if e.linker != nil && e.links != nil {
		n, err := linker.Run(ctx, e.memories, e.search, e.links, e.linker, memory)
		if err != nil {
			log.Printf("engine: linking failed for memory %s: %v", id, err)
		} else {
			linksWritten = n
		}
	}

	e.mu.RLock()
	complete := e.onEnrichmentComplete
	e.mu.RUnlock()
	if complete != nil {
		complete(id, linksWritten)
	}
}
