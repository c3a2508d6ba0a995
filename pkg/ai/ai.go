// Package ai wraps the OpenAI-compatible client behind small capability
// interfaces so the pipelines and query intelligence can swap providers.
package ai

import (
	"context"

	"github.com/openai/openai-go"
)

// Completion is the chat-completion capability.
type Completion interface {
	Completions(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, model string) (openai.ChatCompletionMessage, error)
}

// Embedding is the text-embedding capability.
type Embedding interface {
	Embedding(ctx context.Context, input string, model string) ([]float64, error)
	Embeddings(ctx context.Context, inputs []string, model string) ([][]float64, error)
}
