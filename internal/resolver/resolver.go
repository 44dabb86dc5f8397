// Package resolver finds reusable past requests for incoming query text.
//
// Resolution runs two passes. The lexical pass compares normalized
// query text by edit distance and is cheap enough to scan every stored
// request. The vector pass runs only when the lexical pass finds
// nothing, and searches the embedding index for semantic neighbors.
// In both passes a candidate only wins if its request is trusted, so
// untrusted history can never short-circuit a fresh optimization.
//
// The resolver is deliberately failure-tolerant: a broken embedding
// provider or storage hiccup degrades to "no match found", which the
// caller handles by invoking the optimization engine as if the history
// were empty.
package resolver

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/queryopt/queryopt-mcp/internal/index"
	"github.com/queryopt/queryopt-mcp/internal/storage"
	"github.com/queryopt/queryopt-mcp/internal/trust"
)

// Match methods recorded on similarity links
const (
	MethodLexical = "lexical"
	MethodVector  = "vector"
)

// Default thresholds and search width
const (
	DefaultLexicalThreshold = 0.7
	DefaultVectorThreshold  = 0.7
	DefaultNeighborK        = 5
)

// Options tunes resolution behavior. The two thresholds are
// independent: lexical and vector scores live on different scales and
// tightening one should not tighten the other.
type Options struct {
	LexicalThreshold float64
	VectorThreshold  float64
	NeighborK        int
}

// DefaultOptions returns the standard resolution thresholds
func DefaultOptions() Options {
	return Options{
		LexicalThreshold: DefaultLexicalThreshold,
		VectorThreshold:  DefaultVectorThreshold,
		NeighborK:        DefaultNeighborK,
	}
}

// ReuseCandidate is a trusted past request whose results can answer an
// incoming request without invoking the engine.
type ReuseCandidate struct {
	RequestID int64
	Score     float64
	Method    string
}

// Resolver performs two-pass similarity resolution
type Resolver struct {
	store storage.Storage
	index *index.Index
	gate  *trust.Gate
	opts  Options
}

// New creates a resolver with the given collaborators
func New(store storage.Storage, ix *index.Index, gate *trust.Gate, opts Options) *Resolver {
	if opts.NeighborK <= 0 {
		opts.NeighborK = DefaultNeighborK
	}
	return &Resolver{store: store, index: ix, gate: gate, opts: opts}
}

// Resolve returns the best trusted match for queryText, or nil when no
// trusted request scores above threshold. excludeRequestID is never
// returned as a match; pass 0 to exclude nothing. Collaborator
// failures degrade to a nil match, so there is no error to return.
func (r *Resolver) Resolve(ctx context.Context, queryText string, excludeRequestID int64) *ReuseCandidate {
	if candidate := r.lexicalPass(ctx, queryText, excludeRequestID); candidate != nil {
		return candidate
	}
	return r.vectorPass(ctx, queryText, excludeRequestID)
}

type scored struct {
	requestID int64
	score     float64
}

func (r *Resolver) lexicalPass(ctx context.Context, queryText string, excludeRequestID int64) *ReuseCandidate {
	requests, err := r.store.ListRequests(ctx)
	if err != nil {
		log.Printf("resolver: lexical pass degraded: %v", err)
		return nil
	}

	candidates := make([]scored, 0)
	for _, req := range requests {
		if req.ID == excludeRequestID {
			continue
		}
		score := lexicalSimilarity(queryText, req.QueryText)
		if score >= r.opts.LexicalThreshold {
			candidates = append(candidates, scored{requestID: req.ID, score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		// Equal scores: prefer the older request for stable results.
		return candidates[i].requestID < candidates[j].requestID
	})

	return r.firstTrusted(ctx, candidates, MethodLexical)
}

func (r *Resolver) vectorPass(ctx context.Context, queryText string, excludeRequestID int64) *ReuseCandidate {
	neighbors, err := r.index.Nearest(ctx, queryText, r.opts.NeighborK, excludeRequestID)
	if err != nil {
		log.Printf("resolver: vector pass degraded: %v", err)
		return nil
	}

	candidates := make([]scored, 0, len(neighbors))
	for _, n := range neighbors {
		score := 1 - n.Distance
		if score < r.opts.VectorThreshold {
			// Neighbors arrive ordered by distance ascending, so
			// everything after this one scores lower too.
			break
		}
		candidates = append(candidates, scored{requestID: n.RequestID, score: score})
	}

	return r.firstTrusted(ctx, candidates, MethodVector)
}

// firstTrusted walks candidates in score order and returns the first
// one whose request passes the trust gate.
func (r *Resolver) firstTrusted(ctx context.Context, candidates []scored, method string) *ReuseCandidate {
	for _, c := range candidates {
		trusted, err := r.gate.IsTrusted(ctx, c.requestID)
		if err != nil {
			log.Printf("resolver: trust check failed for request %d: %v", c.requestID, err)
			continue
		}
		if trusted {
			return &ReuseCandidate{
				RequestID: c.requestID,
				Score:     c.score,
				Method:    method,
			}
		}
	}
	return nil
}

// lexicalSimilarity scores two SQL texts on [0, 1] using normalized
// edit distance. Identical text scores 1.0 and the function is
// symmetric in its arguments.
func lexicalSimilarity(a, b string) float64 {
	na := normalizeQuery(a)
	nb := normalizeQuery(b)

	if na == nb {
		return 1.0
	}

	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(na, nb)
	return 1.0 - float64(dist)/float64(maxLen)
}

// normalizeQuery lowercases and collapses all whitespace runs to a
// single space, so formatting differences don't count as edits.
func normalizeQuery(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
