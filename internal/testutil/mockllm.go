package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/llm"
)

// MockGateway provides deterministic llm.Client behavior for testing.
// Completions match the last user message against registered patterns;
// embeddings are deterministic SHA-256 vectors with optional explicit
// overrides; captions come from a path-keyed map.
//
// Thread-safe for concurrent use.
type MockGateway struct {
	mu        sync.Mutex
	responses []mockRule
	fallback  string
	captions  map[string]string
	errs      []error // queued errors returned before any real behavior
	embedder  *MockEmbedder

	completeCalls [][]llm.Message
	embedCalls    [][]string
	captionCalls  []string
}

type mockRule struct {
	pattern  string // substring match in the last user message, lowercased
	response string
}

// NewMockGateway creates a mock gateway with the given fallback completion
// and embedding dimension.
func NewMockGateway(fallback string, dim int) *MockGateway {
	return &MockGateway{
		fallback: fallback,
		captions: make(map[string]string),
		embedder: NewMockEmbedder(dim),
	}
}

var _ llm.Client = (*MockGateway)(nil)

// AddResponse registers a pattern-response pair.
// When the last user message contains the pattern (case-insensitive), the
// response is returned. Patterns are checked in registration order.
func (m *MockGateway) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// SetCaption registers a caption for an image path.
func (m *MockGateway) SetCaption(imagePath, caption string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captions[imagePath] = caption
}

// SetVector registers an explicit embedding vector for a content string.
// Use this to control exact cosine similarity between test inputs.
func (m *MockGateway) SetVector(content string, vec []float32) {
	m.embedder.SetVector(content, vec)
}

// QueueError makes the next call (any method) fail with err.
// Queue several to script consecutive failures, e.g. transient errors for
// retry tests.
func (m *MockGateway) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

func (m *MockGateway) takeError() error {
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

// CompleteCalls returns a copy of the message lists passed to Complete.
func (m *MockGateway) CompleteCalls() [][]llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([][]llm.Message, len(m.completeCalls))
	copy(cp, m.completeCalls)
	return cp
}

// EmbedCalls returns a copy of the text batches passed to Embed/EmbedMany.
func (m *MockGateway) EmbedCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([][]string, len(m.embedCalls))
	copy(cp, m.embedCalls)
	return cp
}

// CaptionCalls returns a copy of the image paths passed to Caption.
func (m *MockGateway) CaptionCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(m.captionCalls))
	copy(cp, m.captionCalls)
	return cp
}

// Complete implements llm.Client.
func (m *MockGateway) Complete(_ context.Context, messages []llm.Message) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completeCalls = append(m.completeCalls, messages)
	if err := m.takeError(); err != nil {
		return nil, err
	}

	var userText string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			userText = messages[i].Content
			break
		}
	}

	response := m.fallback
	lower := strings.ToLower(userText)
	for _, rule := range m.responses {
		if strings.Contains(lower, rule.pattern) {
			response = rule.response
			break
		}
	}

	return &llm.Response{Content: response, Model: "mock/test-model"}, nil
}

// Embed implements llm.Client.
func (m *MockGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany implements llm.Client with order-preserving deterministic vectors.
func (m *MockGateway) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.embedCalls = append(m.embedCalls, texts)
	if err := m.takeError(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.embedder.VectorFor(text)
	}
	return vectors, nil
}

// Caption implements llm.Client.
func (m *MockGateway) Caption(_ context.Context, imagePath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.captionCalls = append(m.captionCalls, imagePath)
	if err := m.takeError(); err != nil {
		return "", err
	}

	if caption, ok := m.captions[imagePath]; ok {
		return caption, nil
	}
	return "caption of " + imagePath, nil
}

// MockEmbedder provides deterministic embedding vectors for testing.
//
// By default it generates a deterministic vector from content using
// SHA-256. Explicit mappings can be added for precise cosine similarity
// control.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int
}

// NewMockEmbedder creates a mock embedder with the given vector dimensions.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a given content string.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

// VectorFor returns the vector for a given content string.
// Uses the explicit mapping if available, otherwise generates
// deterministically from the content hash.
func (e *MockEmbedder) VectorFor(content string) []float32 {
	e.mu.Lock()
	if v, ok := e.vectors[content]; ok {
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()

	return deterministicVector(content, e.dim)
}

// deterministicVector generates a normalized vector from content using SHA-256.
// The same content always produces the same vector.
func deterministicVector(content string, dim int) []float32 {
	hash := sha256.Sum256([]byte(content))
	vec := make([]float32, dim)

	for i := range vec {
		// Cycle through hash bytes
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		// Map to [-1, 1] range
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	// Normalize to unit vector
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec
}
