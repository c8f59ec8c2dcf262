package storage

import (
	"time"

	"github.com/rand/mnemosyne/pkg/types"
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
	HasMore  bool
}

// ListOptions provides pagination and filtering options for the "list" RPC
// method — non-ranked filtered enumeration, distinct from Retriever search
// options.
type ListOptions struct {
	Namespace       types.Namespace
	Page            int
	Limit           int
	SortBy          string
	SortOrder       string
	MinImportance   int
	MemoryType      string
	IncludeArchived bool
}

var allowedSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"importance": true,
	"id":         true,
}

// Normalize applies defaults and whitelists SortBy to prevent SQL injection
// via a dynamically-built ORDER BY clause.
func (o *ListOptions) Normalize() {
	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}
	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.MinImportance < 1 {
		o.MinImportance = 1
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// SearchOptions configures a single search-provider call. The Retriever
// (internal/retriever) is the only caller that combines FullTextSearch,
// VectorSearch, and GraphProvider results into the weighted hybrid score of
// SPEC_FULL.md §4.4; SearchOptions itself carries no weighting.
type SearchOptions struct {
	Namespace       types.Namespace
	WidenNamespace  bool
	Limit           int
	MinImportance   int
	IncludeArchived bool
}

// Normalize applies defaults to SearchOptions.
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
	if o.MinImportance < 1 {
		o.MinImportance = 1
	}
}

// GraphBounds prevents combinatorial explosion during graph traversal.
type GraphBounds struct {
	MaxHops  int
	Limit    int
	Timeout  time.Duration
}

// Normalize applies defaults and caps to GraphBounds.
func (g *GraphBounds) Normalize() {
	if g.MaxHops < 1 {
		g.MaxHops = 2
	}
	if g.MaxHops > 10 {
		g.MaxHops = 10
	}
	if g.Limit < 1 {
		g.Limit = 50
	}
	if g.Limit > 1000 {
		g.Limit = 1000
	}
	if g.Timeout == 0 {
		g.Timeout = 30 * time.Second
	}
	if g.Timeout > 5*time.Minute {
		g.Timeout = 5 * time.Minute
	}
}

// TraversalResult is a memory found via bounded BFS over the link graph.
type TraversalResult struct {
	Memory      *types.Memory
	HopDistance int
	ViaLinkType types.LinkType
	Strength    float64
}
