// Package extraction pulls entity and fact lists out of memory content via an
// LLM, through a background pipeline mirroring the embedding one.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
)

// Result is the strict JSON shape the model must reply with.
type Result struct {
	// Named entities: people, places, dates, tools, projects, concepts,
	// preferences.
	Entities []string `json:"entities"`
	// Key facts: specific assertions, preferences, relationships, or
	// instructions stated.
	Facts []string `json:"facts"`
}

// Provider extracts entities and facts from text. Implementations must be
// safe for concurrent use.
type Provider interface {
	Extract(ctx context.Context, content string) (Result, error)
	ModelName() string
}

// Job is a pending extraction for one memory.
type Job struct {
	MemoryID string
	Content  string
	Attempt  int
}

// BuildPrompt assembles the fixed extraction prompt.
func BuildPrompt(content string) string {
	return fmt.Sprintf(
		"Extract named entities and key facts from the following text.\n"+
			"Entities: people, places, dates, tools, projects, concepts, preferences.\n"+
			"Facts: specific assertions, preferences, relationships, or instructions stated.\n"+
			"Be comprehensive. Output only JSON matching the provided schema.\n\n"+
			"Text:\n%s",
		content)
}

// ParseResult decodes the model reply. Malformed JSON is a retryable error.
func ParseResult(raw []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Result{}, fmt.Errorf("parsing extraction reply: %w", err)
	}
	if result.Entities == nil {
		result.Entities = []string{}
	}
	if result.Facts == nil {
		result.Facts = []string{}
	}
	return result, nil
}

// Truncate caps content length before prompting; long memories carry most of
// their signal up front.
func Truncate(content string, maxChars int) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	return content[:maxChars]
}
