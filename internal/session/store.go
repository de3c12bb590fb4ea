package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

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

// Postgres manages session persistence with a PostgreSQL backend.
//
// Postgres is safe for concurrent use by multiple goroutines. Appends to
// the same session serialize on a row lock so sequence numbers never
// collide.
type Postgres struct {
	db     DB
	logger log.Logger
}

// NewPostgres creates a PostgreSQL-backed Store.
func NewPostgres(db DB, logger log.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

var _ Store = (*Postgres)(nil)

// Create implements Store.
func (s *Postgres) Create(ctx context.Context) (*Session, error) {
	id := uuid.New()

	var session Session
	err := s.db.QueryRow(ctx, `
		INSERT INTO sessions (id) VALUES ($1)
		RETURNING id, created_at`,
		id,
	).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Debug("created session", "id", session.ID)
	return &session, nil
}

// Append implements Store.
// The session row is locked with SELECT ... FOR UPDATE so concurrent
// appends to the same session get distinct sequence numbers.
func (s *Postgres) Append(ctx context.Context, id uuid.UUID, msg Message) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("lock session: %w", err)
	}

	var maxSeq int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0)
		FROM session_messages WHERE session_id = $1`,
		id,
	).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("max sequence number: %w", err)
	}

	sourcesJSON, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO session_messages
			(session_id, question, answer, sources, sequence_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, msg.Question, msg.Answer, sourcesJSON, maxSeq+1, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("appended message", "session_id", id, "sequence", maxSeq+1)
	return nil
}

// Recent implements Store. Unknown sessions yield an empty slice.
func (s *Postgres) Recent(ctx context.Context, id uuid.UUID, n int) ([]Message, error) {
	if n <= 0 {
		return []Message{}, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT question, answer, sources, created_at
		FROM session_messages
		WHERE session_id = $1
		ORDER BY sequence_number DESC
		LIMIT $2`,
		id, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	messages, err := s.scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// The query returns newest-first; prompts need chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// History implements Store.
func (s *Postgres) History(ctx context.Context, id uuid.UUID) ([]Message, error) {
	exists, err := s.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rows, err := s.db.Query(ctx, `
		SELECT question, answer, sources, created_at
		FROM session_messages
		WHERE session_id = $1
		ORDER BY sequence_number`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	return s.scanMessages(rows)
}

// List implements Store. Sessions are ordered newest-first.
func (s *Postgres) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.created_at,
			COUNT(m.session_id) AS message_count,
			COALESCE((
				SELECT question FROM session_messages
				WHERE session_id = s.id
				ORDER BY sequence_number DESC LIMIT 1
			), '') AS last_question
		FROM sessions s
		LEFT JOIN session_messages m ON m.session_id = s.id
		GROUP BY s.id, s.created_at
		ORDER BY s.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		var sum Summary
		var lastQuestion string
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &sum.MessageCount, &lastQuestion); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if lastQuestion == "" {
			sum.LastQuestion = emptySessionLabel
		} else {
			sum.LastQuestion = truncateQuestion(lastQuestion)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	return summaries, nil
}

// Delete implements Store. Messages go with the session via ON DELETE CASCADE.
func (s *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.logger.Debug("deleted session", "id", id)
	return nil
}

// Exists implements Store.
func (s *Postgres) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check session exists: %w", err)
	}
	return exists, nil
}

// scanMessages reads message rows in query order.
func (s *Postgres) scanMessages(rows pgx.Rows) ([]Message, error) {
	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		var sourcesJSON []byte
		if err := rows.Scan(&msg.Question, &msg.Answer, &sourcesJSON, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &msg.Sources); err != nil {
				s.logger.Warn("failed to parse message sources", "error", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}
