package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/chat"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/session"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/testutil"
)

type serverFixture struct {
	gateway  *testutil.MockGateway
	index    *knowledge.Memory
	sessions *session.Memory
	handler  http.Handler
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	gateway := testutil.NewMockGateway("モックの回答です。", 8)
	index := knowledge.NewMemory()
	sessions := session.NewMemory()
	service := chat.NewService(gateway, index, sessions, 3, 5, log.NewNop())

	srv, err := NewServer(ServerConfig{
		Logger:   log.NewNop(),
		Chat:     service,
		Sessions: sessions,
	})
	require.NoError(t, err)

	return &serverFixture{
		gateway:  gateway,
		index:    index,
		sessions: sessions,
		handler:  srv.Handler(),
	}
}

func (f *serverFixture) seedIndex(t *testing.T, contents ...string) {
	t.Helper()
	units := make([]knowledge.Unit, len(contents))
	vectors := make([][]float32, len(contents))
	for i, c := range contents {
		vec, err := f.gateway.Embed(t.Context(), c)
		require.NoError(t, err)
		units[i] = knowledge.Unit{ID: uuid.New(), Kind: knowledge.KindText, Content: c}
		vectors[i] = vec
	}
	require.NoError(t, f.index.Add(t.Context(), units, vectors))
}

func (f *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) createSession(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/session", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["session_id"])
	return resp["session_id"]
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)

	_, err = NewServer(ServerConfig{Sessions: session.NewMemory()})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestChat(t *testing.T) {
	f := newServerFixture(t)
	f.seedIndex(t, "登録方法\nメールアドレスで登録できます。")
	f.gateway.AddResponse("登録", "メールアドレスで登録できます。")

	id := f.createSession(t)
	rec := f.do(t, http.MethodPost, "/api/chat", chatRequest{
		Question:  "登録方法を教えてください",
		SessionID: id,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chat.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "メールアドレスで登録できます。", resp.Text)
	assert.Equal(t, id, resp.SessionID)
	assert.NotEmpty(t, resp.Sources)
}

func TestChatValidation(t *testing.T) {
	f := newServerFixture(t)
	f.seedIndex(t, "登録方法\n本文")
	id := f.createSession(t)

	tests := []struct {
		name     string
		req      chatRequest
		wantCode int
	}{
		{"empty question", chatRequest{SessionID: id}, http.StatusUnprocessableEntity},
		{"empty session", chatRequest{Question: "質問"}, http.StatusUnprocessableEntity},
		{"unknown session", chatRequest{Question: "質問", SessionID: uuid.NewString()}, http.StatusNotFound},
		{"malformed session", chatRequest{Question: "質問", SessionID: "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/chat", tt.req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestChatInvalidBody(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEmptyIndex(t *testing.T) {
	f := newServerFixture(t)
	id := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/chat", chatRequest{Question: "質問", SessionID: id})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chat.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, chat.EmptyIndexAnswer, resp.Text)
	assert.Empty(t, resp.Sources)

	// Clients expect an empty array, never null.
	assert.Contains(t, rec.Body.String(), `"sources":[]`)
}

func TestSessionLifecycle(t *testing.T) {
	f := newServerFixture(t)
	f.seedIndex(t, "登録方法\n本文")

	id := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/chat", chatRequest{Question: "登録方法は?", SessionID: id})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Sessions []session.Summary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Sessions, 1)
	assert.Equal(t, 1, listResp.Sessions[0].MessageCount)
	assert.Equal(t, "登録方法は?", listResp.Sessions[0].LastQuestion)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%s/history", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var histResp struct {
		SessionID string            `json:"session_id"`
		Messages  []session.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &histResp))
	assert.Equal(t, id, histResp.SessionID)
	require.Len(t, histResp.Messages, 1)
	assert.Equal(t, "登録方法は?", histResp.Messages[0].Question)

	rec = f.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%s/history", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionNotFound(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/sessions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/sessions/not-a-uuid/history", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSessionsEmpty(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions":[]}`, rec.Body.String())
}

func TestIngestRouteDisabledWithoutPipeline(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/ingest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
