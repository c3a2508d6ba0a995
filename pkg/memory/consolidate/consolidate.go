// Package consolidate merges semantically near-duplicate memories into one
// searchable memory. Consolidation is non-destructive: originals stay
// retrievable by id but are suppressed from search.
package consolidate

import (
	"context"
	"fmt"
	"strings"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

// Job is a pending consolidation check, created by the embedding pipeline
// after a successful embedding so the vector is available for similarity
// search without another round-trip.
type Job struct {
	MemoryID string
	Vector   []float32
	Content  string
}

// Store is the slice of the storage layer the worker needs.
type Store interface {
	FindSimilarMemories(ctx context.Context, memoryID string, vector []float32, threshold float64, limit int) ([]memory.SimilarMemory, error)
	CreateConsolidatedMemory(ctx context.Context, content string, sourceIDs []string, similarities []float64) (string, error)
}

// Synthesizer produces one comprehensive memory from several near-duplicates.
type Synthesizer interface {
	Synthesize(ctx context.Context, contents []string) (string, error)
}

// Config bounds the candidate search.
type Config struct {
	Enabled               bool
	SimilarityThreshold   float64
	MaxConsolidationGroup int
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		SimilarityThreshold:   0.92,
		MaxConsolidationGroup: 5,
	}
}

// BuildSynthesisPrompt assembles the fixed low-temperature synthesis prompt.
func BuildSynthesisPrompt(contents []string) string {
	var b strings.Builder
	b.WriteString("Synthesize these related memories into one comprehensive memory. " +
		"Preserve all unique facts, preferences, and specific details. " +
		"Do not add information not present in the originals. " +
		"Write a single cohesive paragraph.\n\n")
	for i, content := range contents {
		fmt.Fprintf(&b, "Memory %d:\n%s\n\n", i+1, content)
	}
	b.WriteString("Synthesized memory:")
	return b.String()
}

// Concatenate is the deterministic fallback used when LLM synthesis fails.
func Concatenate(contents []string) string {
	parts := make([]string, len(contents))
	for i, c := range contents {
		parts[i] = fmt.Sprintf("Memory %d:\n%s", i+1, c)
	}
	return strings.Join(parts, "\n---\n")
}
