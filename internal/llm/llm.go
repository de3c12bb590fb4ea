// Package llm provides a provider-agnostic gateway to language model
// capabilities: chat completion, text embedding and image captioning.
//
// Concrete providers (OpenAI-compatible REST, Google GenAI) are selected
// via New() based on configuration. Callers depend only on the Client
// interface, so the rest of the application never sees provider SDK types.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrUnknownProvider indicates the configured provider is not supported.
	ErrUnknownProvider = errors.New("unknown LLM provider")

	// ErrTransient marks provider failures that are worth retrying
	// (rate limits, 5xx responses, network timeouts).
	ErrTransient = errors.New("transient provider error")

	// ErrEmptyInput indicates an embed or completion call with no input.
	ErrEmptyInput = errors.New("empty input")

	// ErrVectorCount indicates a batch embedding response whose vector
	// count does not match the request.
	ErrVectorCount = errors.New("embedding count mismatch")
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a provider-agnostic completion result.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// Client is the capability surface the application depends on.
//
// EmbedMany is order-preserving: the i-th vector corresponds to the i-th
// input text, and implementations must return exactly len(texts) vectors
// or an error.
type Client interface {
	// Complete generates an assistant reply for the given conversation.
	Complete(ctx context.Context, messages []Message) (*Response, error)

	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedMany generates embedding vectors for a batch of texts.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Caption describes the image at the given path in natural language.
	Caption(ctx context.Context, imagePath string) (string, error)
}

// IsTransient reports whether err represents a transient provider failure
// that is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
