// Package memory defines the core domain types shared by the storage layer,
// the background pipelines, and the retrieval engine.
package memory

import (
	"strings"
	"time"
)

// Status of an asynchronously produced artifact (embedding or extraction).
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Memory is the primary entity. A memory is observable immediately after
// insert; its embedding and extractions appear later, tracked by the two
// status fields.
type Memory struct {
	ID                      string     `json:"id"`
	Content                 string     `json:"content"`
	TypeHint                string     `json:"type_hint"`
	Source                  string     `json:"source"`
	Tags                    []string   `json:"tags"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
	LastAccessedAt          *time.Time `json:"last_accessed_at,omitempty"`
	AccessCount             int64      `json:"access_count"`
	EmbeddingStatus         string     `json:"embedding_status"`
	ExtractionStatus        string     `json:"extraction_status"`
	ExtractedEntities       []string   `json:"extracted_entities"`
	ExtractedFacts          []string   `json:"extracted_facts"`
	IsConsolidatedOriginal  bool       `json:"is_consolidated_original"`
	ConsolidatedInto        *string    `json:"consolidated_into,omitempty"`
}

// CreateMemory is the input for storing a new memory. The store generates the
// id, timestamps, and counters; CreatedAt may be overridden for ingest jobs
// that replay historical data.
type CreateMemory struct {
	Content   string     `json:"content"`
	TypeHint  string     `json:"type_hint"`
	Source    string     `json:"source"`
	Tags      []string   `json:"tags"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Defaults applied by the store when optional fields are empty.
const (
	DefaultTypeHint = "fact"
	DefaultSource   = "default"

	// TypeHintConsolidated marks memories synthesized by the consolidation
	// worker.
	TypeHintConsolidated = "consolidated"
)

// Validate checks the required fields. Content must be non-empty after trim.
func (c *CreateMemory) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return NewValidation("content", "content is required and cannot be empty")
	}
	return nil
}

// UpdateMemory is a partial update; nil fields are left untouched. Tags, when
// present, replace the existing set.
type UpdateMemory struct {
	Content  *string   `json:"content,omitempty"`
	TypeHint *string   `json:"type_hint,omitempty"`
	Source   *string   `json:"source,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (u *UpdateMemory) Empty() bool {
	return u.Content == nil && u.TypeHint == nil && u.Source == nil && u.Tags == nil
}

// ListFilter selects memories for list, count, and bulk-delete operations.
type ListFilter struct {
	TypeHint      *string
	Source        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
	Limit         int64
	Cursor        *string
}

// ListResult carries one page of memories plus the cursor for the next page.
type ListResult struct {
	Memories   []Memory `json:"memories"`
	NextCursor *string  `json:"next_cursor,omitempty"`
}

// SalienceState is the 1:1 spaced-repetition state for a memory, created
// lazily on first reinforcement or touch.
type SalienceState struct {
	MemoryID           string     `json:"memory_id"`
	Stability          float64    `json:"stability"`
	Difficulty         float64    `json:"difficulty"`
	ReinforcementCount int64      `json:"reinforcement_count"`
	LastReinforcedAt   *time.Time `json:"last_reinforced_at,omitempty"`
}

// Salience defaults and clamps.
const (
	DefaultStability  = 1.0
	DefaultDifficulty = 5.0
	MinStability      = 0.1
	MaxStability      = 36500.0
)

// DefaultSalienceState returns the lazily-created row for a memory with no
// persisted salience yet.
func DefaultSalienceState(memoryID string) SalienceState {
	return SalienceState{
		MemoryID:   memoryID,
		Stability:  DefaultStability,
		Difficulty: DefaultDifficulty,
	}
}

// RankedHit is one leg's contribution to hybrid search: a memory id with its
// 1-based rank in that leg's ordering.
type RankedHit struct {
	ID   string
	Rank int64
}

// VectorHit is a vector-leg result with its cosine similarity in [0,1].
type VectorHit struct {
	ID         string
	Similarity float64
}

// EmbeddingRecord is one row of the memory_embeddings table. At most one row
// per memory has IsCurrent set.
type EmbeddingRecord struct {
	ID           string
	MemoryID     string
	ModelName    string
	ModelVersion string
	Dimension    int
	Vector       []float32
	IsCurrent    bool
}

// EmbeddingStats summarizes pipeline progress for the embed CLI.
type EmbeddingStats struct {
	ByStatus map[string]int64
	ByModel  map[string]int64 // key: "model/version current=bool"
}

// SimilarMemory is a consolidation candidate: an existing memory whose
// current embedding lies within the similarity threshold of a probe vector.
type SimilarMemory struct {
	MemoryID   string
	Content    string
	Similarity float64
}
