// Package chat orchestrates the retrieval-augmented answer flow: embed
// the question, search the knowledge index, fetch recent history, build
// the prompt, generate a completion and persist the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/llm"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/session"
)

var (
	// ErrEmptyQuestion indicates a blank question.
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrEmptySession indicates a blank session id.
	ErrEmptySession = errors.New("session id must not be empty")
)

// Fixed user-facing answers. These are returned verbatim so the UI never
// shows a raw error to the end user.
const (
	// EmptyIndexAnswer is returned when the knowledge index has no units.
	EmptyIndexAnswer = "ナレッジベースが未構築です。先にデータの取り込みを実行してください。"

	// GenerationFailedAnswer is returned when answer generation fails
	// after retries.
	GenerationFailedAnswer = "回答の生成に失敗しました。しばらくしてから再度お試しください。"
)

// Answer is the orchestrator's result: the generated text plus the
// source snapshot it was grounded in.
type Answer struct {
	Text      string               `json:"answer"`
	Sources   []session.SourceInfo `json:"sources"`
	SessionID string               `json:"session_id"`
}

// Service runs the retrieval-augmented answer flow.
type Service struct {
	gateway  llm.Client
	index    knowledge.Index
	sessions session.Store
	locks    sessionLocks
	topK     int
	history  int
	logger   log.Logger
}

// NewService creates the orchestrator. topK bounds retrieval, historyLimit
// bounds how many past exchanges enter the prompt.
func NewService(gateway llm.Client, index knowledge.Index, sessions session.Store, topK, historyLimit int, logger log.Logger) *Service {
	return &Service{
		gateway:  gateway,
		index:    index,
		sessions: sessions,
		topK:     topK,
		history:  historyLimit,
		logger:   logger,
	}
}

// Answer generates a grounded answer for the question within the given
// session.
//
// Validation failures return before any gateway or index call. Requests
// for the same session are serialized so history stays strictly ordered;
// different sessions proceed in parallel. When generation fails the
// fixed failure text is returned alongside the error and nothing is
// appended to the session.
func (s *Service) Answer(ctx context.Context, question, sessionID string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrEmptySession
	}

	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", session.ErrNotFound, sessionID)
	}
	exists, err := s.sessions.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("checking session: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}

	unlock := s.locks.acquire(id)
	defer unlock()

	empty, err := s.index.IsEmpty(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking index: %w", err)
	}
	if empty {
		return s.persistAnswer(ctx, id, question, EmptyIndexAnswer, buildSources(nil))
	}

	vector, err := s.gateway.Embed(ctx, question)
	if err != nil {
		s.logger.Error("question embedding failed", "session_id", id, "error", err)
		return &Answer{Text: GenerationFailedAnswer, SessionID: sessionID}, err
	}

	results, err := s.index.Search(ctx, vector, s.topK)
	if err != nil {
		s.logger.Error("knowledge search failed", "session_id", id, "error", err)
		return &Answer{Text: GenerationFailedAnswer, SessionID: sessionID}, err
	}

	history, err := s.sessions.Recent(ctx, id, s.history)
	if err != nil {
		s.logger.Error("history fetch failed", "session_id", id, "error", err)
		return &Answer{Text: GenerationFailedAnswer, SessionID: sessionID}, err
	}

	response, err := s.gateway.Complete(ctx, BuildPrompt(question, results, history))
	if err != nil {
		s.logger.Error("completion failed", "session_id", id, "error", err)
		return &Answer{Text: GenerationFailedAnswer, SessionID: sessionID}, err
	}

	s.logger.Debug("answer generated",
		"session_id", id,
		"model", response.Model,
		"sources", len(results),
		"total_tokens", response.Usage.TotalTokens,
	)
	return s.persistAnswer(ctx, id, question, response.Content, buildSources(results))
}

// persistAnswer appends the exchange and returns the final answer shape.
func (s *Service) persistAnswer(ctx context.Context, id uuid.UUID, question, answer string, sources []session.SourceInfo) (*Answer, error) {
	msg := session.Message{
		Question:  question,
		Answer:    answer,
		Sources:   sources,
		Timestamp: time.Now(),
	}
	if err := s.sessions.Append(ctx, id, msg); err != nil {
		return nil, fmt.Errorf("persisting exchange: %w", err)
	}

	return &Answer{
		Text:      answer,
		Sources:   sources,
		SessionID: id.String(),
	}, nil
}

// sessionLocks serializes answer generation per session id. Entries are
// reference counted so the registry does not grow with session churn.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// acquire locks the per-session mutex and returns its release func.
func (r *sessionLocks) acquire(id uuid.UUID) func() {
	r.mu.Lock()
	if r.locks == nil {
		r.locks = make(map[uuid.UUID]*sessionLock)
	}
	l, ok := r.locks[id]
	if !ok {
		l = &sessionLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}
