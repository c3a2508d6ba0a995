package embedding

import (
	"context"
	"fmt"

	"github.com/everlong-ai/memoryd/pkg/ai"
)

// OpenAIProvider embeds text through an OpenAI-compatible API.
type OpenAIProvider struct {
	service   ai.Embedding
	model     string
	dimension int
}

// NewOpenAIProvider wraps the shared AI service for a specific model.
func NewOpenAIProvider(service ai.Embedding, model string, dimension int) (*OpenAIProvider, error) {
	if service == nil {
		return nil, fmt.Errorf("ai service cannot be nil")
	}
	if model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	return &OpenAIProvider{service: service, model: model, dimension: dimension}, nil
}

func (p *OpenAIProvider) ModelName() string { return p.model }

func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Embed implements Provider, converting the API's float64 vector to float32
// for pgvector.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := p.service.Embedding(ctx, text, p.model)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(v)
	}
	return out, nil
}
