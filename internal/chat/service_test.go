package chat

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/session"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	gateway  *testutil.MockGateway
	index    *knowledge.Memory
	sessions *session.Memory
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gateway := testutil.NewMockGateway("モックの回答です。", 8)
	index := knowledge.NewMemory()
	sessions := session.NewMemory()
	return &fixture{
		gateway:  gateway,
		index:    index,
		sessions: sessions,
		service:  NewService(gateway, index, sessions, 3, 5, log.NewNop()),
	}
}

// ingest embeds the given contents through the mock gateway and stores
// them in the index.
func (f *fixture) ingest(t *testing.T, contents ...string) {
	t.Helper()
	units := make([]knowledge.Unit, len(contents))
	vectors := make([][]float32, len(contents))
	for i, c := range contents {
		vec, err := f.gateway.Embed(t.Context(), c)
		require.NoError(t, err)
		units[i] = knowledge.Unit{
			ID:      uuid.New(),
			Kind:    knowledge.KindText,
			Content: c,
			Metadata: map[string]string{
				knowledge.MetaOriginFile: "faq.xlsx",
			},
		}
		vectors[i] = vec
	}
	require.NoError(t, f.index.Add(t.Context(), units, vectors))
}

func (f *fixture) newSession(t *testing.T) string {
	t.Helper()
	s, err := f.sessions.Create(t.Context())
	require.NoError(t, err)
	return s.ID.String()
}

func TestAnswerValidation(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "登録方法\nメールアドレスで登録できます。")
	id := f.newSession(t)

	tests := []struct {
		name      string
		question  string
		sessionID string
		wantErr   error
	}{
		{"empty question", "", id, ErrEmptyQuestion},
		{"whitespace question", "   \n\t", id, ErrEmptyQuestion},
		{"empty session", "質問", "", ErrEmptySession},
		{"malformed session id", "質問", "not-a-uuid", session.ErrNotFound},
		{"unknown session", "質問", uuid.NewString(), session.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Answer(t.Context(), tt.question, tt.sessionID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Validation failures never reach the gateway or the index.
	assert.Empty(t, f.gateway.CompleteCalls())
	assert.Len(t, f.gateway.EmbedCalls(), 1) // the ingest call only
}

func TestAnswerEmptyIndex(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)

	answer, err := f.service.Answer(t.Context(), "登録方法は?", id)
	require.NoError(t, err)

	assert.Equal(t, EmptyIndexAnswer, answer.Text)
	// Non-nil so the answer serializes with "sources": [].
	require.NotNil(t, answer.Sources)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, id, answer.SessionID)

	// No embedding, no completion; the exchange is still recorded.
	assert.Empty(t, f.gateway.EmbedCalls())
	assert.Empty(t, f.gateway.CompleteCalls())

	history, err := f.sessions.History(t.Context(), uuid.MustParse(id))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, EmptyIndexAnswer, history[0].Answer)
}

func TestAnswerScenario(t *testing.T) {
	f := newFixture(t)

	// Two published chunks in the index; the draft never got ingested.
	f.ingest(t,
		"登録方法\nメールアドレスで登録できます。",
		"請求書の確認\nマイページから確認できます。",
	)
	f.gateway.AddResponse("登録", "メールアドレスで登録できます。")

	id := f.newSession(t)
	answer, err := f.service.Answer(t.Context(), "登録方法を教えてください", id)
	require.NoError(t, err)

	assert.Equal(t, "メールアドレスで登録できます。", answer.Text)
	require.NotEmpty(t, answer.Sources)
	assert.LessOrEqual(t, len(answer.Sources), 2)
	for i := 1; i < len(answer.Sources); i++ {
		assert.GreaterOrEqual(t, answer.Sources[i-1].Score, answer.Sources[i].Score)
	}
	assert.Equal(t, "faq.xlsx", answer.Sources[0].OriginFile)

	history, err := f.sessions.History(t.Context(), uuid.MustParse(id))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "登録方法を教えてください", history[0].Question)
	assert.Equal(t, answer.Text, history[0].Answer)
	assert.Equal(t, answer.Sources, history[0].Sources)
}

func TestAnswerHistoryEntersPrompt(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "登録方法\nメールアドレスで登録できます。")
	id := f.newSession(t)

	_, err := f.service.Answer(t.Context(), "一つ目の質問", id)
	require.NoError(t, err)
	_, err = f.service.Answer(t.Context(), "二つ目の質問", id)
	require.NoError(t, err)

	calls := f.gateway.CompleteCalls()
	require.Len(t, calls, 2)

	second := calls[1]
	var texts []string
	for _, m := range second {
		texts = append(texts, m.Content)
	}
	assert.Contains(t, texts, "一つ目の質問")
	assert.Contains(t, texts, "モックの回答です。")
	assert.Equal(t, "二つ目の質問", second[len(second)-1].Content)
}

func TestAnswerGenerationFailure(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "登録方法\nメールアドレスで登録できます。")
	id := f.newSession(t)

	f.gateway.QueueError(nil)            // consumed by Embed
	f.gateway.QueueError(assert.AnError) // fails Complete

	answer, err := f.service.Answer(t.Context(), "登録方法は?", id)
	require.ErrorIs(t, err, assert.AnError)
	require.NotNil(t, answer)
	assert.Equal(t, GenerationFailedAnswer, answer.Text)
	assert.Empty(t, answer.Sources)

	// Nothing appended: the session keeps its prior state.
	history, err := f.sessions.History(t.Context(), uuid.MustParse(id))
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAnswerEmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "登録方法\nメールアドレスで登録できます。")
	id := f.newSession(t)

	f.gateway.QueueError(assert.AnError)

	answer, err := f.service.Answer(t.Context(), "登録方法は?", id)
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, GenerationFailedAnswer, answer.Text)
	assert.Empty(t, f.gateway.CompleteCalls())
}

func TestAnswerConcurrentSameSession(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "登録方法\nメールアドレスで登録できます。")
	id := f.newSession(t)

	const n = 8
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Answer(t.Context(), "並行質問", id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := f.sessions.History(t.Context(), uuid.MustParse(id))
	require.NoError(t, err)
	assert.Len(t, history, n)
}
