package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
)

// DB is the subset of pgxpool.Pool the store depends on.
// Following Go best practices: interfaces are defined by the consumer, not
// the provider.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store manages knowledge units in PostgreSQL with pgvector similarity
// search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a PostgreSQL-backed Index.
func NewStore(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

var _ Index = (*Store)(nil)

// Add inserts the whole batch inside one transaction so a mid-batch
// failure leaves the index unchanged.
func (s *Store) Add(ctx context.Context, units []Unit, vectors [][]float32) error {
	if len(units) != len(vectors) {
		return fmt.Errorf("%w: %d units, %d vectors", ErrLengthMismatch, len(units), len(vectors))
	}
	if len(units) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	for i, unit := range units {
		metadataJSON, err := json.Marshal(unit.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for unit %s: %w", unit.ID, err)
		}

		createdAt := pgtype.Timestamptz{Time: unit.CreatedAt, Valid: !unit.CreatedAt.IsZero()}
		embedding := pgvector.NewVector(vectors[i])

		_, err = tx.Exec(ctx, `
			INSERT INTO knowledge_units (id, kind, content, metadata, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))`,
			unit.ID, string(unit.Kind), unit.Content, metadataJSON, embedding, createdAt,
		)
		if err != nil {
			return fmt.Errorf("insert unit %s: %w", unit.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("added knowledge units", "count", len(units))
	return nil
}

// Search runs a cosine similarity query.
// The seq column breaks score ties by insertion order so results are
// deterministic.
func (s *Store) Search(ctx context.Context, query []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}

	rows, err := s.db.Query(ctx, `
		SELECT kind, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM knowledge_units
		ORDER BY embedding <=> $1, seq
		LIMIT $2`,
		pgvector.NewVector(query), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0, topK)
	for rows.Next() {
		var (
			kind         string
			content      string
			metadataJSON []byte
			similarity   float64
		)
		if err := rows.Scan(&kind, &content, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}

		var metadata map[string]string
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			s.logger.Warn("failed to parse unit metadata", "error", err)
			metadata = make(map[string]string)
		}

		results = append(results, SearchResult{
			Content:  content,
			Score:    clampScore(similarity),
			Metadata: metadata,
			Kind:     Kind(kind),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}

	return results, nil
}

// IsEmpty implements Index.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Count implements Index.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM knowledge_units`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}

	// Overflow protection for 32-bit platforms.
	if count > math.MaxInt {
		return 0, fmt.Errorf("unit count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}
