// Package trust decides whether a past request's results may be reused.
package trust

import (
	"context"
	"fmt"

	"github.com/queryopt/queryopt-mcp/internal/storage"
)

// Gate answers trust questions about stored requests. A request is
// trusted once any of its results has received at least one positive
// feedback entry; trust is derived from feedback rows on every call
// and never cached, so it always reflects the current feedback log.
type Gate struct {
	store storage.Storage
}

// NewGate creates a trust gate over the given storage
func NewGate(store storage.Storage) *Gate {
	return &Gate{store: store}
}

// IsTrusted reports whether requestID has at least one result with
// positive feedback. A request with no results, or with only negative
// feedback, is not trusted.
func (g *Gate) IsTrusted(ctx context.Context, requestID int64) (bool, error) {
	trusted, err := g.store.HasPositiveFeedback(ctx, requestID)
	if err != nil {
		return false, fmt.Errorf("check feedback for request %d: %w", requestID, err)
	}
	return trusted, nil
}
