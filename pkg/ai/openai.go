package ai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// Service is an OpenAI-compatible API client covering completions and
// embeddings. Any endpoint speaking the OpenAI wire format works via BaseURL.
type Service struct {
	client *openai.Client
}

// NewOpenAIService builds a Service for the given key and base URL.
func NewOpenAIService(apiKey, baseURL string) *Service {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &Service{client: &client}
}

// Completions executes a chat completion and returns the first choice.
func (s *Service) Completions(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, model string) (openai.ChatCompletionMessage, error) {
	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    model,
	})
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	if len(completion.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errors.New("completion returned no choices")
	}
	return completion.Choices[0].Message, nil
}

// Embeddings returns one vector per input string.
func (s *Service) Embeddings(ctx context.Context, inputs []string, model string) ([][]float64, error) {
	embedding, err := s.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: inputs,
		},
	})
	if err != nil {
		return nil, err
	}
	var embeddings [][]float64
	for _, item := range embedding.Data {
		embeddings = append(embeddings, item.Embedding)
	}
	return embeddings, nil
}

// Embedding returns the vector for a single input string.
func (s *Service) Embedding(ctx context.Context, input string, model string) ([]float64, error) {
	embedding, err := s.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: param.Opt[string]{Value: input},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(embedding.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}
	return embedding.Data[0].Embedding, nil
}
