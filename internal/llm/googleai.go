package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"
)

// GoogleAIConfig configures the Google GenAI (Gemini API) client.
type GoogleAIConfig struct {
	APIKey        string
	ChatModel     string
	EmbedderModel string
	VisionModel   string
	Temperature   float32
	MaxTokens     int

	// Dimension truncates embedding output so it matches the vector schema.
	// gemini-embedding-001 supports Matryoshka truncation via
	// OutputDimensionality.
	Dimension int32
}

// GoogleAIClient implements Client on top of google.golang.org/genai.
type GoogleAIClient struct {
	cfg    GoogleAIConfig
	client *genai.Client
}

// NewGoogleAI creates a Gemini API client.
// The API key is read from GEMINI_API_KEY when cfg.APIKey is empty.
func NewGoogleAI(ctx context.Context, cfg GoogleAIConfig) (*GoogleAIClient, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GoogleAIClient{cfg: cfg, client: client}, nil
}

// Complete implements Client.
// System messages become the system instruction; assistant turns map to
// the "model" role.
func (c *GoogleAIClient) Complete(ctx context.Context, messages []Message) (*Response, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrEmptyInput)
	}

	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.cfg.Temperature),
		MaxOutputTokens: int32(c.cfg.MaxTokens),
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.ChatModel, contents, config)
	if err != nil {
		return nil, classifyGenAIError("generate content", err)
	}

	out := &Response{
		Content: resp.Text(),
		Model:   c.cfg.ChatModel,
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// Embed implements Client for a single text.
func (c *GoogleAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany implements Client with a single batch EmbedContent call.
func (c *GoogleAIClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts", ErrEmptyInput)
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	config := &genai.EmbedContentConfig{}
	if c.cfg.Dimension > 0 {
		dim := c.cfg.Dimension
		config.OutputDimensionality = &dim
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbedderModel, contents, config)
	if err != nil {
		return nil, classifyGenAIError("embed content", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d, got %d", ErrVectorCount, len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

// Caption implements Client by sending the raw image bytes inline.
func (c *GoogleAIClient) Caption(ctx context.Context, imagePath string) (string, error) {
	mime, ok := imageMIMETypes[strings.ToLower(filepath.Ext(imagePath))]
	if !ok {
		return "", fmt.Errorf("%w: unsupported image type %q", ErrEmptyInput, filepath.Ext(imagePath))
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}

	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(data, mime),
		genai.NewPartFromText(captionPrompt),
	}, genai.RoleUser)

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.VisionModel, []*genai.Content{content}, nil)
	if err != nil {
		return "", classifyGenAIError("caption image", err)
	}
	return resp.Text(), nil
}

// transientPatterns groups error substrings that indicate retryable failures.
// Matched case-insensitively; the genai SDK does not expose typed errors for
// rate limits or server-side failures.
var transientPatterns = []string{
	"rate limit", "quota exceeded", "429",
	"500", "502", "503", "504", "unavailable",
	"connection reset", "timeout", "temporary",
}

// classifyGenAIError wraps transient SDK failures with ErrTransient.
func classifyGenAIError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
