// Package embedding turns memory content into fixed-dimension vectors via a
// background pipeline that never blocks the write path.
package embedding

import (
	"context"
	"strings"
)

// Provider generates embeddings. Implementations must be safe for concurrent
// use; the local model serializes inference internally.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
	Dimension() int
}

// Job is a pending embedding for one memory.
type Job struct {
	MemoryID string
	Text     string
	Attempt  int
}

// BuildText concatenates content and tags with single spaces. The same
// function is used on write, on backfill, and nowhere else — query embeddings
// use the raw query text.
func BuildText(content string, tags []string) string {
	if len(tags) == 0 {
		return content
	}
	return content + " " + strings.Join(tags, " ")
}
