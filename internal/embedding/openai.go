package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

// OpenAIProvider implements Provider using the OpenAI embeddings API.
type OpenAIProvider struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

// NewOpenAIProvider creates a new OpenAI embedding provider.
func NewOpenAIProvider(apiKey, modelID string) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("OpenAI API key not provided")
	}

	model := openai.EmbeddingModel(modelID)
	var dim int
	switch model {
	case openai.SmallEmbedding3:
		dim = 1536
	case openai.LargeEmbedding3:
		dim = 3072
	case openai.AdaEmbeddingV2:
		dim = 1536
	default:
		log.Warnf("Unknown OpenAI embedding model '%s', defaulting dimension to 1536 (AdaV2).", modelID)
		model = openai.AdaEmbeddingV2
		dim = 1536
	}

	log.Infof("OpenAI provider initialized with model %s (dimension %d)", model, dim)

	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
		dim:    dim,
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string { return "openai" }

// ModelName returns the specific model identifier.
func (p *OpenAIProvider) ModelName() string { return string(p.model) }

// Dimension returns the vector length this provider produces.
func (p *OpenAIProvider) Dimension() int { return p.dim }

// Embed generates an embedding for a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error generating embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("OpenAI API returned no embedding data")
	}
	return resp.Data[0].Embedding, nil
}
