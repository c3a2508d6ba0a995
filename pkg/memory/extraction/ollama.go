package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaProvider extracts through a local Ollama instance.
type OllamaProvider struct {
	client *api.Client
	model  string
}

// NewOllamaProvider builds a provider for the given base URL and model.
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama base URL: %w", err)
	}
	return &OllamaProvider{client: api.NewClient(parsed, http.DefaultClient), model: model}, nil
}

func (p *OllamaProvider) ModelName() string { return p.model }

// Extract implements Provider.
func (p *OllamaProvider) Extract(ctx context.Context, content string) (Result, error) {
	stream := false
	req := &api.ChatRequest{
		Model:  p.model,
		Stream: &stream,
		Format: json.RawMessage(`"json"`),
		Messages: []api.Message{
			{Role: "user", Content: BuildPrompt(content)},
		},
		Options: map[string]any{"temperature": 0.1},
	}

	var reply strings.Builder
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("ollama chat: %w", err)
	}
	return ParseResult([]byte(strings.TrimSpace(reply.String())))
}
