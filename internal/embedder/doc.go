// Package embedder generates vector embeddings for SQL query text.
//
// Three providers are supported: OpenAI, Jina AI, and a local
// deterministic fallback that needs no API key. Provider selection is
// environment-driven (see NewFromEnv). All providers share an LRU cache
// keyed by content hash, so embedding the same query text twice costs
// one API call.
//
// Embedding is a best-effort concern: callers are expected to treat any
// error from Embed as "no vector available" rather than a hard failure.
package embedder
