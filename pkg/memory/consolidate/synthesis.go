package consolidate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go"

	"github.com/everlong-ai/memoryd/pkg/ai"
)

// OllamaSynthesizer synthesizes consolidated memories on a local Ollama
// model. Free-form output — no JSON schema, a plain paragraph is wanted.
type OllamaSynthesizer struct {
	client *api.Client
	model  string
}

// NewOllamaSynthesizer builds a synthesizer for the given base URL and model.
func NewOllamaSynthesizer(baseURL, model string) (*OllamaSynthesizer, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama base URL: %w", err)
	}
	return &OllamaSynthesizer{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}, nil
}

// Synthesize implements Synthesizer.
func (s *OllamaSynthesizer) Synthesize(ctx context.Context, contents []string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:  s.model,
		Stream: &stream,
		Messages: []api.Message{
			{Role: "user", Content: BuildSynthesisPrompt(contents)},
		},
		Options: map[string]any{"temperature": 0.2},
	}

	var reply strings.Builder
	err := s.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama synthesis: %w", err)
	}
	text := strings.TrimSpace(reply.String())
	if text == "" {
		return "", fmt.Errorf("empty synthesis response")
	}
	return text, nil
}

// OpenAISynthesizer synthesizes consolidated memories through the shared
// OpenAI-compatible completion service.
type OpenAISynthesizer struct {
	service ai.Completion
	model   string
}

// NewOpenAISynthesizer wraps the completion service for a specific model.
func NewOpenAISynthesizer(service ai.Completion, model string) *OpenAISynthesizer {
	return &OpenAISynthesizer{service: service, model: model}
}

// Synthesize implements Synthesizer.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, contents []string) (string, error) {
	message, err := s.service.Completions(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(BuildSynthesisPrompt(contents)),
	}, s.model)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(message.Content)
	if text == "" {
		return "", fmt.Errorf("empty synthesis response")
	}
	return text, nil
}
