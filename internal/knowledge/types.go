// Package knowledge stores FAQ knowledge units with vector search.
//
// Two implementations of Index exist: Store (PostgreSQL + pgvector, the
// production backend) and Memory (in-process, used by tests and zero-infra
// runs). Both order search results by descending cosine similarity with
// insertion order as the tie-break.
package knowledge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding dimension used across the system.
// text-embedding-3-small outputs 1536 dimensions; the pgvector column and
// the Google provider's OutputDimensionality are pinned to the same value.
const VectorDimension = 1536

var (
	// ErrLengthMismatch indicates an Add call where the number of units
	// and vectors differ. The batch is rejected as a whole.
	ErrLengthMismatch = errors.New("units and vectors length mismatch")

	// ErrInvalidTopK indicates a Search call with a non-positive top-k.
	ErrInvalidTopK = errors.New("top-k must be positive")
)

// Kind distinguishes the origin of a knowledge unit.
type Kind string

const (
	// KindText is a chunk built from an Excel FAQ row.
	KindText Kind = "text"

	// KindImage is a caption generated from an image asset.
	KindImage Kind = "image"
)

// Unit is one indexed piece of knowledge.
// IDs are assigned once at creation and never reused; re-ingesting the
// same source produces new units.
type Unit struct {
	ID        uuid.UUID
	Kind      Kind
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Metadata keys written by the ingestion pipeline.
const (
	MetaOriginFile     = "origin_file"
	MetaOriginSheet    = "origin_sheet"
	MetaRowIndex       = "row_index"
	MetaParentCategory = "parent_category"
	MetaChildCategory  = "child_category"
	MetaTitle          = "title"
	MetaImagePath      = "image_path"
)

// SearchResult is one search hit. Score is cosine similarity clipped to
// [0, 1]; a negative cosine reports as 0.
type SearchResult struct {
	Content  string
	Score    float64
	Metadata map[string]string
	Kind     Kind
}

// Index is the vector index the rest of the application depends on.
type Index interface {
	// Add stores a batch of units with their embedding vectors.
	// len(units) must equal len(vectors) or the whole batch is rejected
	// with ErrLengthMismatch; nothing is partially committed.
	Add(ctx context.Context, units []Unit, vectors [][]float32) error

	// Search returns up to topK units most similar to the query vector,
	// ordered by descending score. An empty index yields an empty slice.
	Search(ctx context.Context, query []float32, topK int) ([]SearchResult, error)

	// IsEmpty reports whether the index holds no units.
	IsEmpty(ctx context.Context) (bool, error)

	// Count returns the number of stored units.
	Count(ctx context.Context) (int, error)
}

// clampScore clips a raw cosine similarity into the reported [0, 1] range.
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
