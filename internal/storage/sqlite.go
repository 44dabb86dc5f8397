package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Request operations

func (s *SQLiteStorage) CreateRequest(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO requests (query_text, table_structure, existing_indexes, performance_issue, explain_results, server_info, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		req.QueryText, req.TableStructure, req.ExistingIndexes,
		req.PerformanceIssue, req.ExplainResults, req.ServerInfo, now)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	req.ID = id
	req.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) GetRequest(ctx context.Context, requestID int64) (*Request, error) {
	query := `
		SELECT id, query_text, table_structure, existing_indexes, performance_issue,
		       explain_results, server_info, created_at
		FROM requests
		WHERE id = ?
	`
	var req Request
	err := s.db.QueryRowContext(ctx, query, requestID).Scan(
		&req.ID, &req.QueryText, &req.TableStructure, &req.ExistingIndexes,
		&req.PerformanceIssue, &req.ExplainResults, &req.ServerInfo, &req.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *SQLiteStorage) ListRequests(ctx context.Context) ([]*Request, error) {
	query := `
		SELECT id, query_text, table_structure, existing_indexes, performance_issue,
		       explain_results, server_info, created_at
		FROM requests
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	requests := make([]*Request, 0)
	for rows.Next() {
		var req Request
		err := rows.Scan(
			&req.ID, &req.QueryText, &req.TableStructure, &req.ExistingIndexes,
			&req.PerformanceIssue, &req.ExplainResults, &req.ServerInfo, &req.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		requests = append(requests, &req)
	}
	return requests, rows.Err()
}

// Result operations

func (s *SQLiteStorage) CreateResult(ctx context.Context, res *Result) error {
	indexJSON, err := marshalSuggestions(res.IndexSuggestions)
	if err != nil {
		return err
	}
	schemaJSON, err := marshalSuggestions(res.SchemaSuggestions)
	if err != nil {
		return err
	}
	serverJSON, err := marshalSuggestions(res.ServerSuggestions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO results (request_id, optimized_query, explanation, estimated_improvement,
		                     index_suggestions, schema_suggestions, server_suggestions,
		                     cost_metric, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		res.RequestID, res.OptimizedQuery, res.Explanation, res.EstimatedImprovement,
		indexJSON, schemaJSON, serverJSON, res.CostMetric, res.Model, now)
	if err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = id
	res.CreatedAt = now
	return nil
}

const resultColumns = `id, request_id, optimized_query, explanation, estimated_improvement,
	       index_suggestions, schema_suggestions, server_suggestions, cost_metric, model, created_at`

func (s *SQLiteStorage) GetResult(ctx context.Context, resultID int64) (*Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE id = ?`
	return s.scanResult(s.db.QueryRowContext(ctx, query, resultID))
}

// LatestTrustedResult returns the most recent result for requestID that has
// at least one positive feedback entry.
func (s *SQLiteStorage) LatestTrustedResult(ctx context.Context, requestID int64) (*Result, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM results
		WHERE request_id = ?
		  AND EXISTS (SELECT 1 FROM feedback WHERE feedback.result_id = results.id AND feedback.useful = 1)
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return s.scanResult(s.db.QueryRowContext(ctx, query, requestID))
}

func (s *SQLiteStorage) scanResult(row *sql.Row) (*Result, error) {
	var res Result
	var indexJSON, schemaJSON, serverJSON string
	var model sql.NullString
	err := row.Scan(
		&res.ID, &res.RequestID, &res.OptimizedQuery, &res.Explanation,
		&res.EstimatedImprovement, &indexJSON, &schemaJSON, &serverJSON,
		&res.CostMetric, &model, &res.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if model.Valid {
		res.Model = model.String
	}
	if res.IndexSuggestions, err = unmarshalSuggestions(indexJSON); err != nil {
		return nil, err
	}
	if res.SchemaSuggestions, err = unmarshalSuggestions(schemaJSON); err != nil {
		return nil, err
	}
	if res.ServerSuggestions, err = unmarshalSuggestions(serverJSON); err != nil {
		return nil, err
	}
	return &res, nil
}

// Feedback operations

// CreateFeedback inserts a feedback row. Returns ErrNotFound without
// writing anything when the referenced result does not exist.
func (s *SQLiteStorage) CreateFeedback(ctx context.Context, fb *Feedback) error {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM results WHERE id = ?", fb.ResultID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	query := `INSERT INTO feedback (result_id, useful, created_at) VALUES (?, ?, ?)`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query, fb.ResultID, fb.Useful, now)
	if err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	fb.ID = id
	fb.CreatedAt = now
	return nil
}

// HasPositiveFeedback reports whether any result owned by requestID has at
// least one feedback entry with useful=true.
func (s *SQLiteStorage) HasPositiveFeedback(ctx context.Context, requestID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM results r
			JOIN feedback f ON f.result_id = r.id
			WHERE r.request_id = ? AND f.useful = 1
		)
	`
	var trusted bool
	if err := s.db.QueryRowContext(ctx, query, requestID).Scan(&trusted); err != nil {
		return false, err
	}
	return trusted, nil
}

// Embedding operations

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, emb *Embedding) error {
	query := `
		INSERT INTO embeddings (request_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		emb.RequestID, emb.Vector, emb.Dimension, emb.Provider, emb.Model, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	if emb.ID == 0 {
		id, err := result.LastInsertId()
		if err == nil {
			emb.ID = id
		}
	}
	emb.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, requestID int64) (*Embedding, error) {
	query := `
		SELECT id, request_id, vector, dimension, provider, model, created_at
		FROM embeddings
		WHERE request_id = ?
	`
	var emb Embedding
	err := s.db.QueryRowContext(ctx, query, requestID).Scan(
		&emb.ID, &emb.RequestID, &emb.Vector, &emb.Dimension,
		&emb.Provider, &emb.Model, &emb.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &emb, nil
}

// NearestEmbeddings returns up to k neighbors ordered by distance ascending.
// Implementation lives in vector_ops.go.
func (s *SQLiteStorage) NearestEmbeddings(ctx context.Context, vector []float32, k int, excludeRequestID int64) ([]Neighbor, error) {
	return nearestEmbeddings(ctx, s.db, vector, k, excludeRequestID)
}

// Similarity link operations

func (s *SQLiteStorage) CreateSimilarityLink(ctx context.Context, link *SimilarityLink) error {
	query := `
		INSERT INTO similarity_links (request_id, matched_request_id, score, method, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		link.RequestID, link.MatchedRequestID, link.Score, link.Method, now)
	if err != nil {
		return fmt.Errorf("failed to create similarity link: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	link.ID = id
	link.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) ListSimilarityLinks(ctx context.Context, requestID int64) ([]*SimilarityLink, error) {
	query := `
		SELECT id, request_id, matched_request_id, score, method, created_at
		FROM similarity_links
		WHERE request_id = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	links := make([]*SimilarityLink, 0)
	for rows.Next() {
		var link SimilarityLink
		err := rows.Scan(&link.ID, &link.RequestID, &link.MatchedRequestID,
			&link.Score, &link.Method, &link.CreatedAt)
		if err != nil {
			return nil, err
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

// Status operations

func (s *SQLiteStorage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM requests", &stats.Requests},
		{"SELECT COUNT(*) FROM results", &stats.Results},
		{"SELECT COUNT(*) FROM feedback", &stats.Feedback},
		{"SELECT COUNT(*) FROM feedback WHERE useful = 1", &stats.PositiveCount},
		{"SELECT COUNT(*) FROM embeddings", &stats.Embeddings},
		{"SELECT COUNT(*) FROM similarity_links", &stats.SimilarityLinks},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	var pageCount, pageSize int
	err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return stats, nil
}

// Suggestion lists are stored as JSON arrays in TEXT columns.

func marshalSuggestions(suggestions []string) (string, error) {
	if suggestions == nil {
		suggestions = []string{}
	}
	b, err := json.Marshal(suggestions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal suggestions: %w", err)
	}
	return string(b), nil
}

func unmarshalSuggestions(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var suggestions []string
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suggestions: %w", err)
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	return suggestions, nil
}
