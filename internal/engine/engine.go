// Package engine invokes the query optimization model.
//
// The engine is the expensive collaborator the rest of the service
// tries to avoid calling: it is only consulted when no trusted past
// request matches the incoming query. The OpenAI implementation asks a
// chat model for a structured JSON verdict on the query and normalizes
// the reply into an Optimization.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/queryopt/queryopt-mcp/pkg/types"
)

// Common errors. The failure sentinels wrap types.ErrCollaborator so
// callers can classify them against the shared taxonomy.
var (
	ErrNoAPIKey      = errors.New("engine API key not configured")
	ErrEngineFailed  = fmt.Errorf("%w: optimization engine", types.ErrCollaborator)
	ErrBadEngineJSON = fmt.Errorf("%w: engine returned unparseable response", types.ErrCollaborator)
)

// Optimization is the engine's verdict on a single query.
type Optimization struct {
	OptimizedQuery       string
	Explanation          string
	EstimatedImprovement float64 // percent, 0 when the engine gave none
	IndexSuggestions     []string
	SchemaSuggestions    []string
	ServerSuggestions    []string
	CostMetric           float64 // total tokens consumed by the call
	Model                string
}

// Details carries the optional request context that sharpens the
// engine's analysis. All fields may be empty.
type Details struct {
	TableStructure   string
	ExistingIndexes  string
	PerformanceIssue string
	ExplainResults   string
	ServerInfo       string
}

// Engine produces optimizations for SQL queries
type Engine interface {
	// Optimize analyzes queryText and returns an optimization verdict
	Optimize(ctx context.Context, queryText string, details *Details) (*Optimization, error)

	// Model returns the model name used by this engine
	Model() string

	// Close releases any resources held by the engine
	Close() error
}
