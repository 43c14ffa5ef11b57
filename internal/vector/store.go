// Package vector owns the chunk collection lifecycle against an external
// vector-search service.
package vector

import "context"

// EmbedDimension is the vector size for text-embedding-3-small. The
// collection is created with this dimensionality and never altered.
const EmbedDimension = 1536

// Chunk is a contiguous slice of a source document's text with provenance
// metadata. Chunks are immutable once created.
type Chunk struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Source returns the source filename from metadata, or "".
func (c Chunk) Source() string {
	s, _ := c.Metadata["source"].(string)
	return s
}

// ScoredChunk pairs a chunk with its similarity score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// CollectionInfo describes the state of the backing collection.
type CollectionInfo struct {
	Name                string `json:"name"`
	PointsCount         uint64 `json:"points_count"`
	IndexedVectorsCount uint64 `json:"indexed_vectors_count"`
	Status              string `json:"status"` // "green", "yellow", "red", "not_found"
}

// StatusNotFound is reported by CollectionInfo when the collection does not
// exist.
const StatusNotFound = "not_found"

// Store provides chunk storage and similarity search. All operations are
// idempotent and safe to retry unless noted.
type Store interface {
	// EnsureCollection creates the collection if absent. Calling it twice is
	// never an error; a dimensionality mismatch on an existing collection is.
	EnsureCollection(ctx context.Context) error
	// Add embeds and upserts chunks, returning one fresh id per chunk.
	// Empty input is a no-op returning an empty slice.
	Add(ctx context.Context, chunks []Chunk) ([]string, error)
	// Search returns the top-k most similar chunks for the query.
	Search(ctx context.Context, query string, k int) ([]Chunk, error)
	// SearchWithScores is Search with similarity scores attached.
	SearchWithScores(ctx context.Context, query string, k int) ([]ScoredChunk, error)
	// ScanAll materializes up to limit chunks, unordered. Administrative
	// listing only; too slow for request-hot paths.
	ScanAll(ctx context.Context, limit int) ([]Chunk, error)
	// UniqueSources returns the deduplicated, lexicographically sorted set
	// of source names across all chunks.
	UniqueSources(ctx context.Context) ([]string, error)
	// ChunksBySource returns all chunks whose source metadata matches.
	ChunksBySource(ctx context.Context, source string) ([]Chunk, error)
	// CollectionInfo reports collection statistics; a missing collection
	// yields status "not_found" with zero counts, not an error.
	CollectionInfo(ctx context.Context) (*CollectionInfo, error)
	// DeleteCollection irreversibly drops the collection. Subsequent
	// operations re-create it lazily.
	DeleteCollection(ctx context.Context) error
	// HealthCheck probes connectivity. Never returns an error; false on any
	// failure.
	HealthCheck(ctx context.Context) bool
	// Close releases the underlying connection.
	Close() error
}
