package llm

import (
	"context"
	"fmt"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/config"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
)

// New creates the configured provider client.
// Returns ErrUnknownProvider for unsupported provider names.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			BaseURL:       cfg.OpenAIBaseURL,
			ChatModel:     cfg.ChatModel,
			EmbedderModel: cfg.EmbedderModel,
			VisionModel:   cfg.VisionModel,
			Temperature:   cfg.Temperature,
			MaxTokens:     cfg.MaxTokens,
		}), nil
	case config.ProviderGoogleAI:
		client, err := NewGoogleAI(ctx, GoogleAIConfig{
			ChatModel:     cfg.ChatModel,
			EmbedderModel: cfg.EmbedderModel,
			VisionModel:   cfg.VisionModel,
			Temperature:   cfg.Temperature,
			MaxTokens:     cfg.MaxTokens,
			Dimension:     int32(knowledge.VectorDimension),
		})
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", cfg.Provider, err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
