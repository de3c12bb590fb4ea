package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store implementation mirroring Postgres
// semantics. Used by unit tests and zero-infra runs.
//
// Memory is safe for concurrent use by multiple goroutines.
type Memory struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*memorySession
}

type memorySession struct {
	createdAt time.Time
	messages  []Message
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[uuid.UUID]*memorySession)}
}

var _ Store = (*Memory)(nil)

// Create implements Store.
func (m *Memory) Create(context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	now := time.Now()
	m.sessions[id] = &memorySession{createdAt: now}

	return &Session{ID: id, CreatedAt: now}, nil
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, id uuid.UUID, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	msg.Sources = append([]SourceInfo(nil), msg.Sources...)
	sess.messages = append(sess.messages, msg)
	return nil
}

// Recent implements Store. Unknown sessions yield an empty slice.
func (m *Memory) Recent(_ context.Context, id uuid.UUID, n int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok || n <= 0 {
		return []Message{}, nil
	}

	start := len(sess.messages) - n
	if start < 0 {
		start = 0
	}
	return append([]Message(nil), sess.messages[start:]...), nil
}

// History implements Store.
func (m *Memory) History(_ context.Context, id uuid.UUID) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return append([]Message(nil), sess.messages...), nil
}

// List implements Store. Sessions are ordered newest-first.
func (m *Memory) List(context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]Summary, 0, len(m.sessions))
	for id, sess := range m.sessions {
		sum := Summary{
			ID:           id,
			CreatedAt:    sess.createdAt,
			MessageCount: len(sess.messages),
			LastQuestion: emptySessionLabel,
		}
		if len(sess.messages) > 0 {
			sum.LastQuestion = truncateQuestion(sess.messages[len(sess.messages)-1].Question)
		}
		summaries = append(summaries, sum)
	}

	sort.Slice(summaries, func(a, b int) bool {
		return summaries[a].CreatedAt.After(summaries[b].CreatedAt)
	})
	return summaries, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

// Exists implements Store.
func (m *Memory) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sessions[id]
	return ok, nil
}
