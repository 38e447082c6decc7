package embedding

import (
	"context"
	"fmt"

	"docq/internal/config"
)

// Provider generates embedding vectors for text.
type Provider interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector length this provider produces.
	Dimension() int
	// Name returns the provider name.
	Name() string
	// ModelName returns the specific model identifier.
	ModelName() string
}

// NewProvider constructs the configured embedding provider.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.Embedding.OpenaiApiKey, cfg.Embedding.Model)
	case "gemini":
		return NewGeminiProvider(cfg.Embedding.GoogleApiKey, cfg.Embedding.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}
