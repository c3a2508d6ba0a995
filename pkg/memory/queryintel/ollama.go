package queryintel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaProvider implements Provider against a local Ollama instance. This is
// the no-API-key default for query intelligence.
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
	return &OllamaProvider{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}, nil
}

func (p *OllamaProvider) ModelName() string { return p.model }

// Expand implements Provider.
func (p *OllamaProvider) Expand(ctx context.Context, query string) (ExpandedQuery, error) {
	prompt := BuildExpansionPrompt(query, time.Now().UTC().Format("2006-01-02"))
	raw, err := p.chatJSON(ctx, prompt)
	if err != nil {
		return ExpandedQuery{}, err
	}
	return parseExpansionReply(raw)
}

// Rerank implements Provider.
func (p *OllamaProvider) Rerank(ctx context.Context, query string, candidates []Candidate) ([]string, error) {
	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("marshaling candidates: %w", err)
	}
	prompt := BuildRerankingPrompt(query, string(candidatesJSON))
	raw, err := p.chatJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseRerankReply(raw)
}

func (p *OllamaProvider) chatJSON(ctx context.Context, prompt string) ([]byte, error) {
	stream := false
	req := &api.ChatRequest{
		Model:  p.model,
		Stream: &stream,
		Format: json.RawMessage(`"json"`),
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Options: map[string]any{"temperature": 0.1},
	}

	var content strings.Builder
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("ollama returned empty reply")
	}
	return []byte(stripCodeFences(content.String())), nil
}

// stripCodeFences removes a surrounding markdown code fence if the model
// wrapped its JSON despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
