// Package storage provides SQLite-based persistence for optimization
// requests and the records that back reuse decisions.
//
// The storage layer manages five entities:
//   - requests: submitted queries with their structured context (immutable)
//   - results: produced optimizations, many per request
//   - feedback: human usefulness signals on results (append-only)
//   - embeddings: one vector per request, little-endian float32 blobs
//   - similarity_links: append-only audit trail of reuse decisions
//
// Only single-row write atomicity is required; no operation spans tables
// in a transaction. The schema is created and upgraded through
// semver-tracked migrations (see migrations.go).
//
// Vector similarity search uses the sqlite-vec extension when built with
// CGO (sqlite_vec tag) and a pure Go cosine scan otherwise. See
// build_cgo.go and build_purego.go.
package storage
