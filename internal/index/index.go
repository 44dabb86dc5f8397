// Package index maintains the vector index over request query text.
//
// It owns the coupling between the embedder and the embeddings table:
// callers hand it request IDs and raw query text, and it handles
// embedding, serialization, and neighbor search. Distances are cosine,
// fixed at construction; mixing distance functions across an index
// would make stored neighbors incomparable.
package index

import (
	"context"
	"fmt"

	"github.com/queryopt/queryopt-mcp/internal/embedder"
	"github.com/queryopt/queryopt-mcp/internal/storage"
)

// Index provides vector upsert and nearest-neighbor search for requests.
type Index struct {
	store storage.Storage
	emb   embedder.Embedder
}

// New creates an index over the given storage and embedder
func New(store storage.Storage, emb embedder.Embedder) *Index {
	return &Index{store: store, emb: emb}
}

// Upsert embeds queryText and stores the vector for requestID,
// replacing any previous vector for the same request.
func (ix *Index) Upsert(ctx context.Context, requestID int64, queryText string) error {
	emb, err := ix.emb.Embed(ctx, queryText)
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}

	record := &storage.Embedding{
		RequestID: requestID,
		Vector:    storage.SerializeVector(emb.Vector),
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
	}
	if err := ix.store.UpsertEmbedding(ctx, record); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	return nil
}

// Nearest embeds queryText and returns up to k stored neighbors ordered
// by cosine distance ascending. excludeRequestID is omitted from the
// results; pass 0 to exclude nothing. An empty index yields an empty
// slice, not an error.
func (ix *Index) Nearest(ctx context.Context, queryText string, k int, excludeRequestID int64) ([]storage.Neighbor, error) {
	emb, err := ix.emb.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	neighbors, err := ix.store.NearestEmbeddings(ctx, emb.Vector, k, excludeRequestID)
	if err != nil {
		return nil, fmt.Errorf("nearest embeddings: %w", err)
	}
	return neighbors, nil
}

// Provider returns the provider name of the underlying embedder
func (ix *Index) Provider() string {
	return ix.emb.Provider()
}
