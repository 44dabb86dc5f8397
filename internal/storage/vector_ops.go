package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// SerializeVector converts a float32 slice to bytes for BLOB storage
// using little-endian encoding.
func SerializeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DeserializeVector converts bytes back to a float32 slice
func DeserializeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data length: %d", len(data))
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector, nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 for mismatched dimensions or zero-magnitude vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// nearestEmbeddings returns up to k neighbors ordered by cosine
// distance ascending. Embeddings with a dimension different from the
// query vector are skipped: they were produced by a different provider
// or model and are not comparable.
func nearestEmbeddings(ctx context.Context, db *sql.DB, vector []float32, k int, excludeRequestID int64) ([]Neighbor, error) {
	if k <= 0 {
		return []Neighbor{}, nil
	}

	// Compute distances at the database layer when sqlite-vec is
	// available, otherwise scan in Go.
	if VectorExtensionAvailable {
		return nearestEmbeddingsOptimized(ctx, db, vector, k, excludeRequestID)
	}
	return nearestEmbeddingsFallback(ctx, db, vector, k, excludeRequestID)
}

// nearestEmbeddingsOptimized uses the sqlite-vec extension so sorting
// and limiting happen in SQL.
func nearestEmbeddingsOptimized(ctx context.Context, db *sql.DB, vector []float32, k int, excludeRequestID int64) ([]Neighbor, error) {
	query := `
		SELECT request_id, vec_distance_cosine(vector, ?) AS distance
		FROM embeddings
		WHERE request_id != ? AND dimension = ?
		ORDER BY distance ASC, request_id ASC
		LIMIT ?
	`
	rows, err := db.QueryContext(ctx, query,
		SerializeVector(vector), excludeRequestID, len(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	neighbors := make([]Neighbor, 0, k)
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.RequestID, &n.Distance); err != nil {
			return nil, err
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

// nearestEmbeddingsFallback deserializes every stored vector and ranks
// in Go. Fine at this table's scale; the store holds one vector per
// optimization request, not per document chunk.
func nearestEmbeddingsFallback(ctx context.Context, db *sql.DB, vector []float32, k int, excludeRequestID int64) ([]Neighbor, error) {
	query := `SELECT request_id, vector FROM embeddings WHERE request_id != ?`
	rows, err := db.QueryContext(ctx, query, excludeRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	neighbors := make([]Neighbor, 0)
	for rows.Next() {
		var requestID int64
		var blob []byte
		if err := rows.Scan(&requestID, &blob); err != nil {
			return nil, err
		}

		stored, err := DeserializeVector(blob)
		if err != nil {
			continue
		}
		if len(stored) != len(vector) {
			continue
		}

		similarity := CosineSimilarity(vector, stored)
		neighbors = append(neighbors, Neighbor{
			RequestID: requestID,
			Distance:  1 - similarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].RequestID < neighbors[j].RequestID
	})

	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}
