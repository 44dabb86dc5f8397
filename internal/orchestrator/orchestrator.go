// Package orchestrator drives a request through resolve-or-delegate.
//
// Every incoming query follows the same path: persist the request, try
// to answer it from trusted history, and only when that fails invoke
// the optimization engine. The caller always receives a Response of
// the same shape; the Source field says whether it came from history,
// a fresh engine call, or a failure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/queryopt/queryopt-mcp/internal/engine"
	"github.com/queryopt/queryopt-mcp/internal/index"
	"github.com/queryopt/queryopt-mcp/internal/resolver"
	"github.com/queryopt/queryopt-mcp/internal/storage"
	"github.com/queryopt/queryopt-mcp/pkg/types"
)

// Orchestrator wires the resolver, engine, index, and store together.
type Orchestrator struct {
	store    storage.Storage
	resolver *resolver.Resolver
	engine   engine.Engine
	index    *index.Index

	// Background embedding work. Failures are logged, never surfaced.
	bg *errgroup.Group
}

// New creates an orchestrator over the given collaborators
func New(store storage.Storage, res *resolver.Resolver, eng engine.Engine, ix *index.Index) *Orchestrator {
	bg := &errgroup.Group{}
	bg.SetLimit(4)
	return &Orchestrator{
		store:    store,
		resolver: res,
		engine:   eng,
		index:    ix,
		bg:       bg,
	}
}

// Close waits for background embedding work to drain
func (o *Orchestrator) Close() error {
	return o.bg.Wait()
}

// Handle processes one optimization request end to end. It never
// returns an error: every outcome, including failure, is expressed as
// a Response so callers see a single contract.
func (o *Orchestrator) Handle(ctx context.Context, queryText string, reqCtx *types.RequestContext) *types.Response {
	if strings.TrimSpace(queryText) == "" {
		return errorResponse(0, "missing required field: query text")
	}
	if reqCtx == nil {
		reqCtx = &types.RequestContext{}
	}

	// RECEIVED: the request is persisted before anything else so that
	// feedback and similarity links always have a row to reference.
	req := &storage.Request{
		QueryText:        queryText,
		TableStructure:   reqCtx.TableStructure,
		ExistingIndexes:  reqCtx.ExistingIndexes,
		PerformanceIssue: reqCtx.PerformanceIssue,
		ExplainResults:   reqCtx.ExplainResults,
		ServerInfo:       reqCtx.ServerInfo,
	}
	if err := o.store.CreateRequest(ctx, req); err != nil {
		log.Printf("orchestrator: persist request: %v", err)
		return errorResponse(0, "failed to persist request")
	}

	// RESOLVING: a nil candidate means miss, by degradation or
	// genuinely empty history; either way the engine takes over.
	if candidate := o.resolver.Resolve(ctx, queryText, req.ID); candidate != nil {
		if resp := o.respondFromHistory(ctx, req.ID, candidate); resp != nil {
			return resp
		}
	}

	return o.respondFromEngine(ctx, req, queryText, reqCtx)
}

// respondFromHistory builds a history-sourced response from the
// candidate's latest trusted result. Returns nil when the result has
// vanished or cannot be read, which sends the request to the engine.
func (o *Orchestrator) respondFromHistory(ctx context.Context, requestID int64, candidate *resolver.ReuseCandidate) *types.Response {
	result, err := o.store.LatestTrustedResult(ctx, candidate.RequestID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("orchestrator: read trusted result for request %d: %v", candidate.RequestID, err)
		}
		return nil
	}

	// The link is bookkeeping, not part of the answer.
	link := &storage.SimilarityLink{
		RequestID:        requestID,
		MatchedRequestID: candidate.RequestID,
		Score:            candidate.Score,
		Method:           candidate.Method,
	}
	if err := o.store.CreateSimilarityLink(ctx, link); err != nil {
		log.Printf("orchestrator: persist similarity link: %v", err)
	}

	score := candidate.Score
	return &types.Response{
		Source:               types.SourceHistory,
		RequestID:            requestID,
		ResultID:             result.ID,
		OptimizedQuery:       result.OptimizedQuery,
		Explanation:          result.Explanation,
		EstimatedImprovement: result.EstimatedImprovement,
		IndexSuggestions:     result.IndexSuggestions,
		SchemaSuggestions:    result.SchemaSuggestions,
		ServerSuggestions:    result.ServerSuggestions,
		CostMetric:           result.CostMetric,
		Model:                result.Model,
		OriginatingScore:     &score,
	}
}

func (o *Orchestrator) respondFromEngine(ctx context.Context, req *storage.Request, queryText string, reqCtx *types.RequestContext) *types.Response {
	// ENGINE_INVOKED
	opt, err := o.engine.Optimize(ctx, queryText, &engine.Details{
		TableStructure:   reqCtx.TableStructure,
		ExistingIndexes:  reqCtx.ExistingIndexes,
		PerformanceIssue: reqCtx.PerformanceIssue,
		ExplainResults:   reqCtx.ExplainResults,
		ServerInfo:       reqCtx.ServerInfo,
	})
	if err != nil {
		log.Printf("orchestrator: engine failed for request %d: %v", req.ID, err)
		return errorResponse(req.ID, fmt.Sprintf("optimization engine failed: %v", err))
	}

	// PERSISTING
	result := &storage.Result{
		RequestID:            req.ID,
		OptimizedQuery:       opt.OptimizedQuery,
		Explanation:          opt.Explanation,
		EstimatedImprovement: opt.EstimatedImprovement,
		IndexSuggestions:     opt.IndexSuggestions,
		SchemaSuggestions:    opt.SchemaSuggestions,
		ServerSuggestions:    opt.ServerSuggestions,
		CostMetric:           opt.CostMetric,
		Model:                opt.Model,
	}
	if err := o.store.CreateResult(ctx, result); err != nil {
		log.Printf("orchestrator: persist result for request %d: %v", req.ID, err)
		return errorResponse(req.ID, "failed to persist optimization result")
	}

	// EMBEDDING: decoupled from the response; the caller shouldn't
	// wait on an embedding provider.
	o.scheduleEmbedding(req.ID, queryText)

	return &types.Response{
		Source:               types.SourceEngine,
		RequestID:            req.ID,
		ResultID:             result.ID,
		OptimizedQuery:       opt.OptimizedQuery,
		Explanation:          opt.Explanation,
		EstimatedImprovement: opt.EstimatedImprovement,
		IndexSuggestions:     opt.IndexSuggestions,
		SchemaSuggestions:    opt.SchemaSuggestions,
		ServerSuggestions:    opt.ServerSuggestions,
		CostMetric:           opt.CostMetric,
		Model:                opt.Model,
	}
}

func (o *Orchestrator) scheduleEmbedding(requestID int64, queryText string) {
	// TryGo keeps the caller off the embedding path: when all workers
	// are busy the embed is dropped and logged, never waited on.
	started := o.bg.TryGo(func() error {
		// Detached from the request context: the response has already
		// been delivered by the time this runs.
		if err := o.index.Upsert(context.Background(), requestID, queryText); err != nil {
			log.Printf("orchestrator: embed request %d: %v", requestID, err)
		}
		return nil
	})
	if !started {
		log.Printf("orchestrator: embed workers saturated, skipping embed for request %d", requestID)
	}
}

// RecordFeedback appends a feedback entry for resultID. Returns the
// new feedback id, or a NotFound error when the result is unknown.
func (o *Orchestrator) RecordFeedback(ctx context.Context, resultID int64, useful bool) (int64, error) {
	if resultID <= 0 {
		return 0, fmt.Errorf("%w: result id must be positive", types.ErrValidation)
	}

	fb := &storage.Feedback{ResultID: resultID, Useful: useful}
	if err := o.store.CreateFeedback(ctx, fb); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("%w: result %d", types.ErrNotFound, resultID)
		}
		return 0, fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}
	return fb.ID, nil
}

// Status reports storage counts plus runtime configuration.
type Status struct {
	Stats             *storage.Stats
	EmbeddingProvider string
	EngineModel       string
	BuildMode         string
}

// GetStatus returns a snapshot of the service's state
func (o *Orchestrator) GetStatus(ctx context.Context) (*Status, error) {
	stats, err := o.store.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPersistence, err)
	}
	return &Status{
		Stats:             stats,
		EmbeddingProvider: o.index.Provider(),
		EngineModel:       o.engine.Model(),
		BuildMode:         storage.BuildMode,
	}, nil
}

// errorResponse builds the degraded response used for every failure.
// Same shape as success, empty suggestion lists, source=error.
func errorResponse(requestID int64, message string) *types.Response {
	return &types.Response{
		Source:            types.SourceError,
		RequestID:         requestID,
		Explanation:       message,
		IndexSuggestions:  []string{},
		SchemaSuggestions: []string{},
		ServerSuggestions: []string{},
	}
}
