package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/engine"
	"github.com/rand/mnemosyne/internal/enricher"
	"github.com/rand/mnemosyne/internal/evolution"
	"github.com/rand/mnemosyne/internal/merrors"
	"github.com/rand/mnemosyne/internal/retriever"
	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// Server implements the Model Context Protocol (MCP) for mnemosyne: a
// JSON-RPC 2.0 tool surface of 8 methods (remember, recall, list, update,
// delete, consolidate, graph, context) backed by the capture/recall engine
// and the storage layer directly for the operations the engine doesn't
// itself expose.
type Server struct {
	engine       *engine.MemoryEngine
	memories     storage.MemoryStore
	links        storage.LinkStore
	graph        storage.GraphProvider
	consolidator *evolution.ConsolidationJob
	enr          enricher.Enricher
	sessionID    string
}

// NewServer constructs an MCP Server. graph and consolidator may be nil:
// "graph" then returns KindInternalError, and "consolidate" likewise, while
// the other 6 methods work off memories/links/engine alone. enr may also be
// nil, in which case "remember" returns without an inline Enrichment
// summary (the async queue inside engine still enriches the memory, just
// not in time for this response).
func NewServer(eng *engine.MemoryEngine, memories storage.MemoryStore, links storage.LinkStore, graph storage.GraphProvider, consolidator *evolution.ConsolidationJob, enr enricher.Enricher) *Server {
	s := &Server{
		engine:       eng,
		memories:     memories,
		links:        links,
		graph:        graph,
		consolidator: consolidator,
		enr:          enr,
		sessionID:    uuid.New().String(),
	}
	log.Printf("mnemosyne-mcp: session ID: %s", s.sessionID)
	return s
}

// HandleRequest processes a JSON-RPC 2.0 request and returns a response.
// This is the main entry point for MCP protocol handling.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", nil), nil
	}

	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil), nil
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "initialized":
		result = map[string]interface{}{}
	case "tools/list":
		result, err = s.handleToolsList()
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)

	case "remember":
		result, err = s.handleRemember(ctx, req.Params)
	case "recall":
		result, err = s.handleRecall(ctx, req.Params)
	case "list":
		result, err = s.handleList(ctx, req.Params)
	case "update":
		result, err = s.handleUpdate(ctx, req.Params)
	case "delete":
		result, err = s.handleDelete(ctx, req.Params)
	case "consolidate":
		result, err = s.handleConsolidate(ctx, req.Params)
	case "graph":
		result, err = s.handleGraph(ctx, req.Params)
	case "context":
		result, err = s.handleContext(ctx, req.Params)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil), nil
	}

	if err != nil {
		return s.errorResponse(req.ID, merrors.RPCCode(err), err.Error(), nil), nil
	}
	return s.successResponse(req.ID, result)
}

func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return data, nil
}

func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) []byte {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return out
}

func decodeParams(raw interface{}, dst interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return merrors.Wrap(merrors.KindInvalidParams, "params could not be re-marshaled", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return merrors.Wrap(merrors.KindInvalidParams, "params did not match the expected shape", err)
	}
	return nil
}

func toMemoryView(m *types.Memory) MemoryView {
	return MemoryView{
		ID:         m.ID.String(),
		Namespace:  m.Namespace.String(),
		Content:    m.Content,
		Summary:    m.Summary,
		Keywords:   m.Keywords,
		Tags:       m.Tags,
		MemoryType: string(m.MemoryType),
		Importance: m.Importance,
		Confidence: m.Confidence,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  m.UpdatedAt.Format(time.RFC3339),
		IsArchived: m.IsArchived,
	}
}

// handleRemember implements the "remember" method: create a memory.
func (s *Server) handleRemember(ctx context.Context, params interface{}) (*RememberResult, error) {
	var args RememberArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	if args.Content == "" {
		return nil, merrors.New(merrors.KindInvalidParams, "content is required")
	}

	req := engine.CaptureRequest{
		Content:        args.Content,
		Namespace:      types.ParseNamespace(args.Namespace),
		MemoryTypeHint: types.MemoryType(args.Type),
		ImportanceHint: args.Importance,
	}

	// Tags aren't a Capture-time field (Capture stores content + namespace
	// hints only); apply them with a follow-up Update once the memory exists.
	memory, err := s.engine.Capture(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(args.Tags) > 0 {
		if updated, err := s.memories.Update(ctx, memory.ID, storage.MemoryPatch{Tags: args.Tags}); err == nil {
			memory = updated
		}
	}

	result := &RememberResult{ID: memory.ID.String()}

	// Capture only queues enrichment for the background worker pool, but the
	// RPC caller expects a populated result inline; run it synchronously here
	// too so "remember" can return a filled-in Enrichment. The async pass
	// still runs and overwrites with the same inputs, which is idempotent.
	if s.enr != nil {
		enrichResult := s.enr.Enrich(ctx, enricher.Request{
			Content:        memory.Content,
			Context:        memory.Context,
			MemoryTypeHint: memory.MemoryType,
			ImportanceHint: memory.Importance,
		})
		if !enrichResult.Degraded {
			if _, err := s.memories.ApplyEnrichment(ctx, memory.ID, storage.EnrichmentPatch{
				Summary:    enrichResult.Summary,
				Keywords:   enrichResult.Keywords,
				Tags:       enrichResult.Tags,
				MemoryType: enrichResult.MemoryType,
				Importance: enrichResult.Importance,
				Confidence: enrichResult.Confidence,
			}); err == nil {
				result.Enrichment = &EnrichmentSummary{
					Summary:    enrichResult.Summary,
					Keywords:   enrichResult.Keywords,
					Tags:       enrichResult.Tags,
					MemoryType: string(enrichResult.MemoryType),
					Importance: enrichResult.Importance,
					Confidence: enrichResult.Confidence,
				}
			}
		}
	}
	return result, nil
}

// handleRecall implements the "recall" method: hybrid ranked search.
func (s *Server) handleRecall(ctx context.Context, params interface{}) (*RecallResult, error) {
	var args RecallArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}

	results, err := s.engine.Recall(ctx, args.Query, types.ParseNamespace(args.Namespace), retriever.Options{
		Limit:           args.Limit,
		MinImportance:   args.MinImportance,
		IncludeGraph:    true,
		IncludeVector:   true,
		IncludeArchived: args.IncludeArchived,
	})
	if err != nil {
		return nil, err
	}

	out := make([]ScoredMemoryView, 0, len(results))
	for _, r := range results {
		out = append(out, ScoredMemoryView{MemoryView: toMemoryView(r.Memory), Score: r.Score})
	}
	return &RecallResult{Memories: out}, nil
}

// handleList implements the "list" method: non-ranked filtered enumeration.
func (s *Server) handleList(ctx context.Context, params interface{}) (*ListResult, error) {
	var args ListArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}

	page, err := s.memories.List(ctx, storage.ListOptions{
		Namespace:       types.ParseNamespace(args.Namespace),
		Page:            args.Page,
		Limit:           args.Limit,
		SortBy:          args.SortBy,
		SortOrder:       args.SortOrder,
		MinImportance:   args.MinImportance,
		MemoryType:      args.MemoryType,
		IncludeArchived: args.IncludeArchived,
	})
	if err != nil {
		return nil, err
	}

	views := make([]MemoryView, 0, len(page.Items))
	for i := range page.Items {
		views = append(views, toMemoryView(&page.Items[i]))
	}
	return &ListResult{Memories: views, Total: page.Total, Page: page.Page, HasMore: page.HasMore}, nil
}

// handleUpdate implements the "update" method: in-place mutation of mutable
// fields.
func (s *Server) handleUpdate(ctx context.Context, params interface{}) (*UpdateResult, error) {
	var args UpdateArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(args.ID)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindInvalidParams, "invalid memory id", err)
	}

	_, err = s.memories.Update(ctx, id, storage.MemoryPatch{
		Content:         args.Content,
		Importance:      args.Importance,
		Tags:            args.Tags,
		RelatedFiles:    args.RelatedFiles,
		RelatedEntities: args.RelatedEntities,
	})
	if err != nil {
		return nil, err
	}
	return &UpdateResult{ID: args.ID, Updated: true}, nil
}

// handleDelete implements the "delete" method: soft archive.
func (s *Server) handleDelete(ctx context.Context, params interface{}) (*DeleteResult, error) {
	var args DeleteArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(args.ID)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindInvalidParams, "invalid memory id", err)
	}
	if err := s.memories.Archive(ctx, id); err != nil {
		return nil, err
	}
	return &DeleteResult{ID: args.ID, Deleted: true}, nil
}

// handleConsolidate implements the "consolidate" method: with two explicit
// ids, judge and apply that pair; with none, return discovered candidates
// in Namespace without applying anything.
func (s *Server) handleConsolidate(ctx context.Context, params interface{}) (*ConsolidateResult, error) {
	if s.consolidator == nil {
		return nil, merrors.New(merrors.KindInternalError, "consolidation is not configured")
	}
	var args ConsolidateArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}

	if len(args.IDs) == 2 {
		aID, err := uuid.Parse(args.IDs[0])
		if err != nil {
			return nil, merrors.Wrap(merrors.KindInvalidParams, "invalid id", err)
		}
		bID, err := uuid.Parse(args.IDs[1])
		if err != nil {
			return nil, merrors.Wrap(merrors.KindInvalidParams, "invalid id", err)
		}
		a, err := s.memories.Get(ctx, aID, false)
		if err != nil {
			return nil, err
		}
		b, err := s.memories.Get(ctx, bID, false)
		if err != nil {
			return nil, err
		}
		verdict, applied, err := s.consolidator.Consolidate(ctx, a, b)
		if err != nil {
			return nil, merrors.Wrap(merrors.KindEnrichmentFailed, "consolidation judge call failed", err)
		}
		return &ConsolidateResult{
			Decision:        string(verdict.Decision),
			Applied:         applied,
			CombinedContent: verdict.CombinedContent,
		}, nil
	}

	if len(args.IDs) != 0 {
		return nil, merrors.New(merrors.KindInvalidParams, "ids must be empty (discovery mode) or contain exactly 2 entries (pairwise mode)")
	}

	pairs, err := s.consolidator.FindCandidates(ctx, types.ParseNamespace(args.Namespace))
	if err != nil {
		return nil, err
	}
	candidates := make([]ConsolidationPair, 0, len(pairs))
	for _, p := range pairs {
		candidates = append(candidates, ConsolidationPair{A: p[0].ID.String(), B: p[1].ID.String()})
	}
	return &ConsolidateResult{Candidates: candidates}, nil
}

// handleGraph implements the "graph" method: bounded traversal from a seed.
func (s *Server) handleGraph(ctx context.Context, params interface{}) (*GraphResult, error) {
	if s.graph == nil {
		return nil, merrors.New(merrors.KindInternalError, "graph traversal is not configured")
	}
	var args GraphArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	seedID, err := uuid.Parse(args.ID)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindInvalidParams, "invalid memory id", err)
	}

	bounds := storage.GraphBounds{MaxHops: args.MaxHops, Limit: args.Limit}
	results, err := s.graph.Traverse(ctx, seedID, bounds)
	if err != nil {
		return nil, err
	}

	nodes := make([]GraphNode, 0, len(results))
	for _, r := range results {
		nodes = append(nodes, GraphNode{
			MemoryView:  toMemoryView(r.Memory),
			HopDistance: r.HopDistance,
			LinkType:    string(r.ViaLinkType),
			Strength:    r.Strength,
		})
	}
	return &GraphResult{SeedID: args.ID, Nodes: nodes}, nil
}

// contextImportantLimit and contextRecentLimit are the default fan-out per
// bucket when ContextArgs.Limit isn't set.
const (
	contextImportantLimit = 10
	contextRecentLimit    = 10
	contextActiveLimit    = 20
)

// handleContext implements the "context" method: assembles a namespace's
// current state as three views over the same store — important, recent,
// active — rather than one ranked list, since each answers a different
// question ("what matters", "what's new", "what's still open").
func (s *Server) handleContext(ctx context.Context, params interface{}) (*ContextResult, error) {
	var args ContextArgs
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	limit := args.Limit
	if limit < 1 {
		limit = contextImportantLimit
	}
	ns := types.ParseNamespace(args.Namespace)

	important, err := s.memories.List(ctx, storage.ListOptions{Namespace: ns, Limit: limit, SortBy: "importance", SortOrder: "desc"})
	if err != nil {
		return nil, err
	}
	recent, err := s.memories.List(ctx, storage.ListOptions{Namespace: ns, Limit: limit, SortBy: "created_at", SortOrder: "desc"})
	if err != nil {
		return nil, err
	}
	active, err := s.memories.List(ctx, storage.ListOptions{Namespace: ns, Limit: contextActiveLimit, SortBy: "updated_at", SortOrder: "desc", IncludeArchived: false})
	if err != nil {
		return nil, err
	}

	return &ContextResult{
		Important: memoryViews(important.Items),
		Recent:    memoryViews(recent.Items),
		Active:    memoryViews(active.Items),
	}, nil
}

func memoryViews(memories []types.Memory) []MemoryView {
	out := make([]MemoryView, 0, len(memories))
	for i := range memories {
		out = append(out, toMemoryView(&memories[i]))
	}
	return out
}

// protocolVersion is the MCP protocol version this server implements.
const protocolVersion = "2024-11-05"

func (s *Server) handleInitialize(params interface{}) (*MCPInitializeResult, error) {
	var p MCPInitializeParams
	_ = decodeParams(params, &p) // clientInfo is informational only; never reject on a malformed initialize

	return &MCPInitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: MCPServerCapabilities{
			Tools: &MCPToolsCapability{},
		},
		ServerInfo: MCPServerInfo{
			Name:    "mnemosyne",
			Version: "1.0.0",
		},
	}, nil
}

// toolTable describes the 8 tools for "tools/list". handleToolsCall does not
// consult it; it dispatches on the tool name with its own switch.
func toolTable() []MCPTool {
	obj := func(props map[string]interface{}, required ...string) map[string]interface{} {
		schema := map[string]interface{}{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	}
	str := map[string]interface{}{"type": "string"}
	num := map[string]interface{}{"type": "number"}
	boolean := map[string]interface{}{"type": "boolean"}
	strArr := map[string]interface{}{"type": "array", "items": str}

	return []MCPTool{
		{
			Name:        "remember",
			Description: "Capture a new memory in a namespace, enriching it inline before returning.",
			InputSchema: obj(map[string]interface{}{
				"content": str, "namespace": str, "importance": num, "type": str, "tags": strArr,
			}, "content", "namespace"),
		},
		{
			Name:        "recall",
			Description: "Hybrid ranked search over memories in a namespace.",
			InputSchema: obj(map[string]interface{}{
				"query": str, "namespace": str, "limit": num, "min_importance": num, "include_archived": boolean,
			}, "query", "namespace"),
		},
		{
			Name:        "list",
			Description: "Non-ranked, filtered, paginated enumeration of memories in a namespace.",
			InputSchema: obj(map[string]interface{}{
				"namespace": str, "page": num, "limit": num, "sort_by": str, "sort_order": str,
				"min_importance": num, "memory_type": str, "include_archived": boolean,
			}, "namespace"),
		},
		{
			Name:        "update",
			Description: "Mutate the directly-editable fields of an existing memory.",
			InputSchema: obj(map[string]interface{}{
				"id": str, "content": str, "importance": num, "tags": strArr,
				"related_files": strArr, "related_entities": strArr,
			}, "id"),
		},
		{
			Name:        "delete",
			Description: "Soft-archive a memory.",
			InputSchema: obj(map[string]interface{}{"id": str}, "id"),
		},
		{
			Name:        "consolidate",
			Description: "Judge an explicit pair of near-duplicate memories, or discover candidate pairs in a namespace.",
			InputSchema: obj(map[string]interface{}{"namespace": str, "ids": strArr}),
		},
		{
			Name:        "graph",
			Description: "Bounded BFS traversal of the link graph from a seed memory.",
			InputSchema: obj(map[string]interface{}{"id": str, "max_hops": num, "limit": num}, "id"),
		},
		{
			Name:        "context",
			Description: "Assemble a namespace's current state: most important, most recent, and active memories.",
			InputSchema: obj(map[string]interface{}{"namespace": str, "limit": num}, "namespace"),
		},
	}
}

func (s *Server) handleToolsList() (*MCPToolsListResult, error) {
	return &MCPToolsListResult{Tools: toolTable()}, nil
}

// handleToolsCall dispatches a tools/call request to the same handler the
// native JSON-RPC method would use, wrapping the result as MCP tool-call
// content per the protocol's envelope.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (*MCPToolCallResult, error) {
	var p MCPToolCallParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	var result interface{}
	var err error
	switch p.Name {
	case "remember":
		result, err = s.handleRemember(ctx, p.Arguments)
	case "recall":
		result, err = s.handleRecall(ctx, p.Arguments)
	case "list":
		result, err = s.handleList(ctx, p.Arguments)
	case "update":
		result, err = s.handleUpdate(ctx, p.Arguments)
	case "delete":
		result, err = s.handleDelete(ctx, p.Arguments)
	case "consolidate":
		result, err = s.handleConsolidate(ctx, p.Arguments)
	case "graph":
		result, err = s.handleGraph(ctx, p.Arguments)
	case "context":
		result, err = s.handleContext(ctx, p.Arguments)
	default:
		return nil, merrors.New(merrors.KindInvalidParams, fmt.Sprintf("unknown tool: %s", p.Name))
	}

	if err != nil {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	data, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return nil, merrors.Wrap(merrors.KindInternalError, "failed to marshal tool result", marshalErr)
	}
	return &MCPToolCallResult{Content: []MCPToolCallContent{{Type: "text", Text: string(data)}}}, nil
}
