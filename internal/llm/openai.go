package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// captionPrompt asks the vision model for a self-contained description so
// the caption is useful as a standalone knowledge unit.
const captionPrompt = "この画像に含まれる情報を、検索用の説明文として日本語で詳しく記述してください。"

// imageMIMETypes maps supported image file extensions to MIME types.
var imageMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// OpenAIConfig configures the OpenAI-compatible REST client.
type OpenAIConfig struct {
	BaseURL       string
	APIKey        string
	ChatModel     string
	EmbedderModel string
	VisionModel   string
	Temperature   float32
	MaxTokens     int
	Timeout       time.Duration
}

// OpenAIClient talks to an OpenAI-compatible HTTP API
// (api.openai.com, Azure OpenAI, LM Studio, vLLM, ...).
type OpenAIClient struct {
	cfg  OpenAIConfig
	http *http.Client
}

// NewOpenAI creates an OpenAI-compatible client.
// The API key is read from OPENAI_API_KEY when cfg.APIKey is empty.
func NewOpenAI(cfg OpenAIConfig) *OpenAIClient {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// chatMessage is the wire shape of a chat message. Content is any to
// support both plain text and the multi-part vision format.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete implements Client via POST /chat/completions.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (*Response, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrEmptyInput)
	}

	wire := make([]chatMessage, len(messages))
	for i, m := range messages {
		wire[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}

	out, err := c.chat(ctx, c.cfg.ChatModel, wire)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Embed implements Client for a single text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany implements Client via POST /embeddings.
// The response is ordered by index, so vector i matches texts[i].
func (c *OpenAIClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts", ErrEmptyInput)
	}

	body, err := json.Marshal(map[string]any{
		"model": c.cfg.EmbedderModel,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embeddings request: %w", err)
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/embeddings", body, &out); err != nil {
		return nil, err
	}

	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d, got %d", ErrVectorCount, len(texts), len(out.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrVectorCount, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Caption implements Client by sending the image as a base64 data URL to
// the vision model.
func (c *OpenAIClient) Caption(ctx context.Context, imagePath string) (string, error) {
	mime, ok := imageMIMETypes[strings.ToLower(filepath.Ext(imagePath))]
	if !ok {
		return "", fmt.Errorf("%w: unsupported image type %q", ErrEmptyInput, filepath.Ext(imagePath))
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
	wire := []chatMessage{{
		Role: string(RoleUser),
		Content: []map[string]any{
			{"type": "text", "text": captionPrompt},
			{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
		},
	}}

	out, err := c.chat(ctx, c.cfg.VisionModel, wire)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// chat posts a chat/completions request and decodes the first choice.
func (c *OpenAIClient) chat(ctx context.Context, model string, messages []chatMessage) (*Response, error) {
	body, err := json.Marshal(map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	var out chatResponse
	if err := c.post(ctx, "/chat/completions", body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("chat response has no choices")
	}

	return &Response{
		Content: out.Choices[0].Message.Content,
		Model:   out.Model,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}

// post executes one JSON request and decodes the response into v.
// 429 and 5xx responses and network timeouts are wrapped with ErrTransient
// so the retry layer can classify them with errors.Is.
func (c *OpenAIClient) post(ctx context.Context, path string, body []byte, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %s: %v", ErrTransient, path, err)
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		// Cap the error body so a misbehaving server can't blow up logs.
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5 {
			return fmt.Errorf("%w: %s http %d: %s", ErrTransient, path, resp.StatusCode, string(data))
		}
		return fmt.Errorf("%s http %d: %s", path, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
