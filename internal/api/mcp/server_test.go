package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rand/mnemosyne/internal/api/mcp"
	"github.com/rand/mnemosyne/internal/engine"
	"github.com/rand/mnemosyne/internal/enricher"
	"github.com/rand/mnemosyne/internal/evolution"
	"github.com/rand/mnemosyne/internal/linker"
	"github.com/rand/mnemosyne/internal/retriever"
	"github.com/rand/mnemosyne/internal/storage/sqlite"
)

func newTestServer(t *testing.T) (*mcp.Server, *sqlite.MemoryStore) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	recall := retriever.New(store, store, store, store, nil)
	eng, err := engine.New(engine.DefaultConfig(), store, store, store, enricher.NewMock(), linker.NewMock(), recall)
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	consolidator := evolution.NewConsolidationJob(store, store, evolution.NewMockConsolidator())
	srv := mcp.NewServer(eng, store, store, store, consolidator, enricher.NewMock())
	return srv, store
}

func call(t *testing.T, srv *mcp.Server, method string, params interface{}) JSONRPCResult {
	t.Helper()
	reqBody, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	respBody, err := srv.HandleRequest(context.Background(), reqBody)
	require.NoError(t, err)

	var resp JSONRPCResult
	require.NoError(t, json.Unmarshal(respBody, &resp))
	return resp
}

// JSONRPCResult mirrors mcp.JSONRPCResponse with a raw Result so tests can
// unmarshal into whatever shape they need.
type JSONRPCResult struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ID interface{} `json:"id"`
}

func TestRemember_StoresAndEnrichesInline(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := call(t, srv, "remember", map[string]interface{}{
		"content":   "always cancel contexts on the error path",
		"namespace": "project:demo",
	})
	require.Nil(t, resp.Error)

	var result struct {
		ID         string `json:"id"`
		Enrichment *struct {
			Summary string `json:"summary"`
		} `json:"enrichment"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.NotEmpty(t, result.ID)
	require.NotNil(t, result.Enrichment)
}

func TestRemember_RejectsEmptyContent(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := call(t, srv, "remember", map[string]interface{}{
		"content":   "",
		"namespace": "project:demo",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, -32602, resp.Error.Code)
}

func TestRecall_FindsRememberedMemory(t *testing.T) {
	srv, _ := newTestServer(t)
	call(t, srv, "remember", map[string]interface{}{
		"content":   "exponential backoff retry pattern for flaky network calls",
		"namespace": "project:demo",
	})

	require.Eventually(t, func() bool {
		resp := call(t, srv, "recall", map[string]interface{}{
			"query":     "backoff",
			"namespace": "project:demo",
		})
		if resp.Error != nil {
			return false
		}
		var result struct {
			Memories []struct{ ID string } `json:"memories"`
		}
		_ = json.Unmarshal(resp.Result, &result)
		return len(result.Memories) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestList_ReturnsStoredMemories(t *testing.T) {
	srv, _ := newTestServer(t)
	call(t, srv, "remember", map[string]interface{}{"content": "memory one", "namespace": "project:demo"})
	call(t, srv, "remember", map[string]interface{}{"content": "memory two", "namespace": "project:demo"})

	resp := call(t, srv, "list", map[string]interface{}{"namespace": "project:demo"})
	require.Nil(t, resp.Error)

	var result struct {
		Memories []struct{ ID string } `json:"memories"`
		Total    int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Equal(t, 2, result.Total)
}

func TestUpdate_ChangesContent(t *testing.T) {
	srv, store := newTestServer(t)
	rememberResp := call(t, srv, "remember", map[string]interface{}{"content": "original", "namespace": "project:demo"})
	var remembered struct{ ID string }
	require.NoError(t, json.Unmarshal(rememberResp.Result, &remembered))

	resp := call(t, srv, "update", map[string]interface{}{"id": remembered.ID, "content": "revised"})
	require.Nil(t, resp.Error)

	id := mustParseUUID(t, remembered.ID)
	mem, err := store.Get(context.Background(), id, false)
	require.NoError(t, err)
	require.Equal(t, "revised", mem.Content)
}

func TestDelete_ArchivesMemory(t *testing.T) {
	srv, store := newTestServer(t)
	rememberResp := call(t, srv, "remember", map[string]interface{}{"content": "to be archived", "namespace": "project:demo"})
	var remembered struct{ ID string }
	require.NoError(t, json.Unmarshal(rememberResp.Result, &remembered))

	resp := call(t, srv, "delete", map[string]interface{}{"id": remembered.ID})
	require.Nil(t, resp.Error)

	id := mustParseUUID(t, remembered.ID)
	_, err := store.Get(context.Background(), id, false)
	require.Error(t, err)
}

func TestContext_AssemblesThreeViews(t *testing.T) {
	srv, _ := newTestServer(t)
	call(t, srv, "remember", map[string]interface{}{"content": "first memory", "namespace": "project:demo"})

	resp := call(t, srv, "context", map[string]interface{}{"namespace": "project:demo"})
	require.Nil(t, resp.Error)

	var result struct {
		Important []struct{ ID string } `json:"important"`
		Recent    []struct{ ID string } `json:"recent"`
		Active    []struct{ ID string } `json:"active"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Important, 1)
	require.Len(t, result.Recent, 1)
	require.Len(t, result.Active, 1)
}

func TestGraph_TraversesFromSeed(t *testing.T) {
	srv, _ := newTestServer(t)
	rememberResp := call(t, srv, "remember", map[string]interface{}{"content": "seed memory", "namespace": "project:demo"})
	var remembered struct{ ID string }
	require.NoError(t, json.Unmarshal(rememberResp.Result, &remembered))

	resp := call(t, srv, "graph", map[string]interface{}{"id": remembered.ID})
	require.Nil(t, resp.Error)

	var result struct {
		SeedID string `json:"seed_id"`
		Nodes  []struct{ ID string } `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Equal(t, remembered.ID, result.SeedID)
}

func TestConsolidate_DiscoveryModeWithNoIDs(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := call(t, srv, "consolidate", map[string]interface{}{"namespace": "project:demo"})
	require.Nil(t, resp.Error)

	var result struct {
		Candidates []struct{ A, B string } `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
}

func TestUnknownMethod_ReturnsMethodNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := call(t, srv, "nonexistent", map[string]interface{}{})
	require.NotNil(t, resp.Error)
	require.Equal(t, -32601, resp.Error.Code)
}

func TestDelete_InvalidIDReturnsInvalidParams(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := call(t, srv, "delete", map[string]interface{}{"id": "not-a-uuid"})
	require.NotNil(t, resp.Error)
	require.Equal(t, -32602, resp.Error.Code)
}

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
