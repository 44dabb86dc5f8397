package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting and querying optimization
// history. Implementations must provide single-row write atomicity; no
// method requires a multi-row transaction.
type Storage interface {
	// Request operations
	CreateRequest(ctx context.Context, req *Request) error
	GetRequest(ctx context.Context, requestID int64) (*Request, error)
	ListRequests(ctx context.Context) ([]*Request, error)

	// Result operations
	CreateResult(ctx context.Context, res *Result) error
	GetResult(ctx context.Context, resultID int64) (*Result, error)
	LatestTrustedResult(ctx context.Context, requestID int64) (*Result, error)

	// Feedback operations
	CreateFeedback(ctx context.Context, fb *Feedback) error
	HasPositiveFeedback(ctx context.Context, requestID int64) (bool, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, emb *Embedding) error
	GetEmbedding(ctx context.Context, requestID int64) (*Embedding, error)
	NearestEmbeddings(ctx context.Context, vector []float32, k int, excludeRequestID int64) ([]Neighbor, error)

	// Similarity link operations
	CreateSimilarityLink(ctx context.Context, link *SimilarityLink) error
	ListSimilarityLinks(ctx context.Context, requestID int64) ([]*SimilarityLink, error)

	// Status operations
	GetStats(ctx context.Context) (*Stats, error)

	Close() error
}

// Request is a submitted optimization task. Immutable after creation.
type Request struct {
	ID               int64
	QueryText        string
	TableStructure   string
	ExistingIndexes  string
	PerformanceIssue string
	ExplainResults   string
	ServerInfo       string
	CreatedAt        time.Time
}

// Result is a produced optimization tied to a Request. A request may own
// any number of results; the most recent one is "latest".
type Result struct {
	ID                   int64
	RequestID            int64
	OptimizedQuery       string
	Explanation          string
	EstimatedImprovement float64
	IndexSuggestions     []string
	SchemaSuggestions    []string
	ServerSuggestions    []string
	CostMetric           float64
	Model                string
	CreatedAt            time.Time
}

// Feedback is a human usefulness signal on a Result. Append-only.
type Feedback struct {
	ID        int64
	ResultID  int64
	Useful    bool
	CreatedAt time.Time
}

// Embedding is a vector representation of a Request's query text. At most
// one embedding exists per request; re-embedding replaces the vector.
type Embedding struct {
	ID        int64
	RequestID int64
	Vector    []byte // Serialized float32 array, little-endian
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// SimilarityLink is an audit record of a reuse decision. Append-only.
type SimilarityLink struct {
	ID               int64
	RequestID        int64
	MatchedRequestID int64
	Score            float64
	Method           string // "lexical" or "vector"
	CreatedAt        time.Time
}

// Neighbor is a nearest-neighbor search hit, ordered by distance ascending.
type Neighbor struct {
	RequestID int64
	Distance  float64
}

// Stats contains row counts for the status surface.
type Stats struct {
	Requests        int
	Results         int
	Feedback        int
	PositiveCount   int
	Embeddings      int
	SimilarityLinks int
	DatabaseSizeMB  float64
}
