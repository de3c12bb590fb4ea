// Package session persists conversation history per chat session.
//
// Two implementations of Store exist: Postgres (production) and Memory
// (tests, zero-infra runs). Messages are complete exchanges: a user
// question paired with the generated answer and the source snapshot used
// to produce it.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates an operation on a session id that does not exist.
var ErrNotFound = errors.New("session not found")

// emptySessionLabel is shown for sessions that have no messages yet.
const emptySessionLabel = "新しいチャット"

// lastQuestionMaxRunes bounds the preview text in session listings.
const lastQuestionMaxRunes = 50

// SourceInfo is a snapshot of one retrieved knowledge unit at answer time.
// It is persisted with the message and stays valid even if the live index
// is later re-ingested.
type SourceInfo struct {
	Content    string  `json:"content"`
	OriginFile string  `json:"origin_file,omitempty"`
	Kind       string  `json:"kind"`
	Score      float64 `json:"score"`
	ImagePath  string  `json:"image_path,omitempty"`
}

// Message is one complete question/answer exchange.
type Message struct {
	Question  string       `json:"question"`
	Answer    string       `json:"answer"`
	Sources   []SourceInfo `json:"sources,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Session is a conversation with its ordered history.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Messages  []Message
}

// Summary is the listing shape for a session: identity plus enough
// context to pick it from a list.
type Summary struct {
	ID           uuid.UUID `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	LastQuestion string    `json:"last_question"`
}

// Store is the conversation persistence interface the application
// depends on.
type Store interface {
	// Create starts a new empty session with a fresh unique id.
	Create(ctx context.Context) (*Session, error)

	// Append adds one exchange to the session's history.
	// Returns ErrNotFound for unknown sessions.
	Append(ctx context.Context, id uuid.UUID, msg Message) error

	// Recent returns the last min(n, len) messages in chronological
	// order. Unknown sessions and empty histories yield an empty slice,
	// not an error; prompt building tolerates both.
	Recent(ctx context.Context, id uuid.UUID, n int) ([]Message, error)

	// History returns the full history in chronological order.
	// Returns ErrNotFound for unknown sessions.
	History(ctx context.Context, id uuid.UUID) ([]Message, error)

	// List returns summaries of all sessions, most recent first.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes a session and its messages.
	// Returns ErrNotFound for unknown sessions.
	Delete(ctx context.Context, id uuid.UUID) error

	// Exists reports whether the session id is known.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// truncateQuestion shortens a question for listing previews.
func truncateQuestion(q string) string {
	runes := []rune(q)
	if len(runes) <= lastQuestionMaxRunes {
		return q
	}
	return string(runes[:lastQuestionMaxRunes]) + "..."
}
