package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func createTestRequest(t *testing.T, s *SQLiteStorage, queryText string) *Request {
	t.Helper()
	req := &Request{
		QueryText:        queryText,
		TableStructure:   "CREATE TABLE users (id INT PRIMARY KEY, name TEXT)",
		PerformanceIssue: "slow full scan",
	}
	require.NoError(t, s.CreateRequest(context.Background(), req))
	return req
}

func createTestResult(t *testing.T, s *SQLiteStorage, requestID int64) *Result {
	t.Helper()
	res := &Result{
		RequestID:            requestID,
		OptimizedQuery:       "SELECT id, name FROM users WHERE id = ?",
		Explanation:          "replaced SELECT * with explicit columns",
		EstimatedImprovement: 40,
		IndexSuggestions:     []string{"CREATE INDEX idx_users_name ON users(name)"},
		SchemaSuggestions:    []string{},
		ServerSuggestions:    []string{},
		CostMetric:           812,
		Model:                "gpt-4o",
	}
	require.NoError(t, s.CreateResult(context.Background(), res))
	return res
}

func TestCreateAndGetRequest(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	req := createTestRequest(t, s, "SELECT * FROM users WHERE name = 'bob'")
	assert.Greater(t, req.ID, int64(0))
	assert.False(t, req.CreatedAt.IsZero())

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.QueryText, got.QueryText)
	assert.Equal(t, req.TableStructure, got.TableStructure)
	assert.Equal(t, req.PerformanceIssue, got.PerformanceIssue)
}

func TestGetRequestNotFound(t *testing.T) {
	s := setupTestStorage(t)

	_, err := s.GetRequest(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRequests(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	list, err := s.ListRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	createTestRequest(t, s, "SELECT 1")
	createTestRequest(t, s, "SELECT 2")

	list, err = s.ListRequests(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "SELECT 1", list[0].QueryText)
	assert.Equal(t, "SELECT 2", list[1].QueryText)
}

func TestCreateAndGetResult(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	req := createTestRequest(t, s, "SELECT * FROM users")
	res := createTestResult(t, s, req.ID)
	assert.Greater(t, res.ID, int64(0))

	got, err := s.GetResult(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.OptimizedQuery, got.OptimizedQuery)
	assert.Equal(t, res.EstimatedImprovement, got.EstimatedImprovement)
	assert.Equal(t, []string{"CREATE INDEX idx_users_name ON users(name)"}, got.IndexSuggestions)
	assert.Equal(t, []string{}, got.SchemaSuggestions)
	assert.Equal(t, "gpt-4o", got.Model)
}

func TestLatestTrustedResult(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	req := createTestRequest(t, s, "SELECT * FROM users")
	first := createTestResult(t, s, req.ID)
	second := createTestResult(t, s, req.ID)

	// No feedback yet: nothing is trusted.
	_, err := s.LatestTrustedResult(ctx, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Negative feedback alone does not make a result trusted.
	require.NoError(t, s.CreateFeedback(ctx, &Feedback{ResultID: second.ID, Useful: false}))
	_, err = s.LatestTrustedResult(ctx, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateFeedback(ctx, &Feedback{ResultID: first.ID, Useful: true}))
	got, err := s.LatestTrustedResult(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// Once the newer result earns positive feedback, it wins.
	require.NoError(t, s.CreateFeedback(ctx, &Feedback{ResultID: second.ID, Useful: true}))
	got, err = s.LatestTrustedResult(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestCreateFeedbackUnknownResult(t *testing.T) {
	s := setupTestStorage(t)

	err := s.CreateFeedback(context.Background(), &Feedback{ResultID: 42, Useful: true})
	assert.ErrorIs(t, err, ErrNotFound)

	stats, err := s.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Feedback)
}

func TestHasPositiveFeedback(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	req := createTestRequest(t, s, "SELECT * FROM orders")
	res := createTestResult(t, s, req.ID)

	trusted, err := s.HasPositiveFeedback(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, trusted)

	require.NoError(t, s.CreateFeedback(ctx, &Feedback{ResultID: res.ID, Useful: false}))
	trusted, err = s.HasPositiveFeedback(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, trusted)

	require.NoError(t, s.CreateFeedback(ctx, &Feedback{ResultID: res.ID, Useful: true}))
	trusted, err = s.HasPositiveFeedback(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, trusted)
}

func TestUpsertEmbedding(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	req := createTestRequest(t, s, "SELECT * FROM users")

	emb := &Embedding{
		RequestID: req.ID,
		Vector:    SerializeVector([]float32{0.1, 0.2, 0.3}),
		Dimension: 3,
		Provider:  "openai",
		Model:     "text-embedding-3-small",
	}
	require.NoError(t, s.UpsertEmbedding(ctx, emb))

	got, err := s.GetEmbedding(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Dimension)
	assert.Equal(t, "openai", got.Provider)

	// Upserting again replaces the vector instead of erroring.
	emb2 := &Embedding{
		RequestID: req.ID,
		Vector:    SerializeVector([]float32{0.9, 0.8}),
		Dimension: 2,
		Provider:  "jina",
		Model:     "jina-embeddings-v3",
	}
	require.NoError(t, s.UpsertEmbedding(ctx, emb2))

	got, err = s.GetEmbedding(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Dimension)
	assert.Equal(t, "jina", got.Provider)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Embeddings)
}

func TestGetEmbeddingNotFound(t *testing.T) {
	s := setupTestStorage(t)

	_, err := s.GetEmbedding(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSimilarityLinks(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	a := createTestRequest(t, s, "SELECT * FROM users")
	b := createTestRequest(t, s, "select * from users")

	link := &SimilarityLink{
		RequestID:        b.ID,
		MatchedRequestID: a.ID,
		Score:            0.95,
		Method:           "lexical",
	}
	require.NoError(t, s.CreateSimilarityLink(ctx, link))
	assert.Greater(t, link.ID, int64(0))

	links, err := s.ListSimilarityLinks(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, a.ID, links[0].MatchedRequestID)
	assert.Equal(t, "lexical", links[0].Method)
	assert.InDelta(t, 0.95, links[0].Score, 1e-9)
}

func TestGetStats(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	req := createTestRequest(t, s, "SELECT * FROM users")
	res := createTestResult(t, s, req.ID)
	require.NoError(t, s.CreateFeedback(ctx, &Feedback{ResultID: res.ID, Useful: true}))
	require.NoError(t, s.CreateFeedback(ctx, &Feedback{ResultID: res.ID, Useful: false}))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Requests)
	assert.Equal(t, 1, stats.Results)
	assert.Equal(t, 2, stats.Feedback)
	assert.Equal(t, 1, stats.PositiveCount)
}
