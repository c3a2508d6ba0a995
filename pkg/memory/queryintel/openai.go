package queryintel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider against any OpenAI-compatible chat API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds a provider for the given endpoint and model.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (p *OpenAIProvider) ModelName() string { return p.model }

// Expand implements Provider.
func (p *OpenAIProvider) Expand(ctx context.Context, query string) (ExpandedQuery, error) {
	prompt := BuildExpansionPrompt(query, time.Now().UTC().Format("2006-01-02"))
	raw, err := p.completeJSON(ctx, prompt)
	if err != nil {
		return ExpandedQuery{}, err
	}
	return parseExpansionReply(raw)
}

// Rerank implements Provider.
func (p *OpenAIProvider) Rerank(ctx context.Context, query string, candidates []Candidate) ([]string, error) {
	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("marshaling candidates: %w", err)
	}
	prompt := BuildRerankingPrompt(query, string(candidatesJSON))
	raw, err := p.completeJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseRerankReply(raw)
}

func (p *OpenAIProvider) completeJSON(ctx context.Context, prompt string) ([]byte, error) {
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	return []byte(stripCodeFences(completion.Choices[0].Message.Content)), nil
}
