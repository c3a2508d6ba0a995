package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaProvider embeds text through a local Ollama instance. No API key
// required; this is the default provider.
type OllamaProvider struct {
	client    *api.Client
	model     string
	dimension int
}

// NewOllamaProvider builds a provider for the given base URL and model.
func NewOllamaProvider(baseURL, model string, dimension int) (*OllamaProvider, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama base URL: %w", err)
	}
	return &OllamaProvider{
		client:    api.NewClient(parsed, http.DefaultClient),
		model:     model,
		dimension: dimension,
	}, nil
}

func (p *OllamaProvider) ModelName() string { return p.model }

func (p *OllamaProvider) Dimension() int { return p.dimension }

// Embed implements Provider.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: p.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embed returned no vectors")
	}
	return resp.Embeddings[0], nil
}
