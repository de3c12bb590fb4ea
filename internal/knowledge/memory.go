package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Index implementation.
// It mirrors Store's semantics (atomic batch add, descending-score search
// with insertion-order tie-break) without requiring PostgreSQL, which makes
// it the backend for unit tests and quick local experiments.
//
// Memory is safe for concurrent use by multiple goroutines.
type Memory struct {
	mu      sync.RWMutex
	units   []Unit
	vectors [][]float32
}

// NewMemory creates an empty in-memory Index.
func NewMemory() *Memory {
	return &Memory{}
}

var _ Index = (*Memory)(nil)

// Add implements Index. The batch is validated before any unit is stored.
func (m *Memory) Add(_ context.Context, units []Unit, vectors [][]float32) error {
	if len(units) != len(vectors) {
		return fmt.Errorf("%w: %d units, %d vectors", ErrLengthMismatch, len(units), len(vectors))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range units {
		// Copy the metadata map so later caller mutations don't leak in.
		meta := make(map[string]string, len(units[i].Metadata))
		for k, v := range units[i].Metadata {
			meta[k] = v
		}
		unit := units[i]
		unit.Metadata = meta

		vector := make([]float32, len(vectors[i]))
		copy(vector, vectors[i])

		m.units = append(m.units, unit)
		m.vectors = append(m.vectors, vector)
	}
	return nil
}

// Search implements Index with a full scan.
// SliceStable keeps insertion order for equal scores.
func (m *Memory) Search(_ context.Context, query []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		index int
		score float64
	}

	hits := make([]scored, len(m.units))
	for i, vector := range m.vectors {
		hits[i] = scored{index: i, score: clampScore(cosineSimilarity(query, vector))}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})

	if topK > len(hits) {
		topK = len(hits)
	}

	results := make([]SearchResult, 0, topK)
	for _, hit := range hits[:topK] {
		unit := m.units[hit.index]
		meta := make(map[string]string, len(unit.Metadata))
		for k, v := range unit.Metadata {
			meta[k] = v
		}
		results = append(results, SearchResult{
			Content:  unit.Content,
			Score:    hit.score,
			Metadata: meta,
			Kind:     unit.Kind,
		})
	}
	return results, nil
}

// IsEmpty implements Index.
func (m *Memory) IsEmpty(context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.units) == 0, nil
}

// Count implements Index.
func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.units), nil
}

// cosineSimilarity computes the cosine of the angle between two vectors
// with float64 accumulation. Zero vectors and dimension mismatches score 0.
func cosineSimilarity(a, b []float32) float64 {
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
