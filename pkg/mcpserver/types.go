package mcpserver

// Tool argument structs. The jsonschema tags become the MCP tool input
// schemas shown to agents.

// StoreMemoryArgs stores a new memory.
type StoreMemoryArgs struct {
	Content   string   `json:"content" jsonschema:"required,description=The memory content to store"`
	TypeHint  string   `json:"type_hint" jsonschema:"description=Classification hint: fact, preference, instruction, ... (default fact)"`
	Source    string   `json:"source" jsonschema:"description=Free-form origin tag (default 'default')"`
	Tags      []string `json:"tags" jsonschema:"description=Optional tags for categorization"`
	CreatedAt string   `json:"created_at" jsonschema:"description=Optional RFC3339 creation timestamp override"`
}

// GetMemoryArgs fetches one memory by id.
type GetMemoryArgs struct {
	ID string `json:"id" jsonschema:"required,description=Memory ID"`
}

// UpdateMemoryArgs partially updates a memory.
type UpdateMemoryArgs struct {
	ID       string    `json:"id" jsonschema:"required,description=Memory ID to update"`
	Content  *string   `json:"content,omitempty" jsonschema:"description=New content (triggers re-embedding and re-extraction)"`
	TypeHint *string   `json:"type_hint,omitempty" jsonschema:"description=New type hint"`
	Source   *string   `json:"source,omitempty" jsonschema:"description=New source"`
	Tags     *[]string `json:"tags,omitempty" jsonschema:"description=New tags, replacing the existing set (triggers re-embedding)"`
}

// DeleteMemoryArgs deletes one memory by id.
type DeleteMemoryArgs struct {
	ID string `json:"id" jsonschema:"required,description=Memory ID to delete"`
}

// BulkDeleteArgs deletes memories matching a filter; confirm=false only
// counts.
type BulkDeleteArgs struct {
	TypeHint      string `json:"type_hint" jsonschema:"description=Filter by type hint"`
	Source        string `json:"source" jsonschema:"description=Filter by source"`
	CreatedAfter  string `json:"created_after" jsonschema:"description=RFC3339 lower bound on created_at"`
	CreatedBefore string `json:"created_before" jsonschema:"description=RFC3339 upper bound on created_at"`
	UpdatedAfter  string `json:"updated_after" jsonschema:"description=RFC3339 lower bound on updated_at"`
	UpdatedBefore string `json:"updated_before" jsonschema:"description=RFC3339 upper bound on updated_at"`
	Confirm       bool   `json:"confirm" jsonschema:"description=false returns the count only; true performs the deletion"`
}

// ListMemoriesArgs pages memories newest-first.
type ListMemoriesArgs struct {
	TypeHint string `json:"type_hint" jsonschema:"description=Filter by type hint"`
	Source   string `json:"source" jsonschema:"description=Filter by source"`
	Limit    int    `json:"limit" jsonschema:"description=Page size, 1-100 (default 20)"`
	Cursor   string `json:"cursor" jsonschema:"description=Opaque cursor from a previous page"`
}

// SearchMemoryArgs runs the hybrid search.
type SearchMemoryArgs struct {
	Query          string   `json:"query" jsonschema:"required,description=Natural language search query"`
	Limit          int      `json:"limit" jsonschema:"description=Maximum results, 1-100 (default 10)"`
	TypeHint       string   `json:"type_hint" jsonschema:"description=Filter by type hint (applied to the vector leg only)"`
	Source         string   `json:"source" jsonschema:"description=Filter by source (applied to the vector leg only)"`
	BM25Weight     *float64 `json:"bm25_weight,omitempty" jsonschema:"description=Lexical leg weight (default 1.0, 0 disables)"`
	VectorWeight   *float64 `json:"vector_weight,omitempty" jsonschema:"description=Vector leg weight (default 1.0, 0 disables)"`
	SymbolicWeight *float64 `json:"symbolic_weight,omitempty" jsonschema:"description=Symbolic leg weight (default 1.0, 0 disables)"`
}

// ReinforceMemoryArgs applies an explicit spaced-repetition update.
type ReinforceMemoryArgs struct {
	ID     string `json:"id" jsonschema:"required,description=Memory ID to reinforce"`
	Rating string `json:"rating" jsonschema:"required,description=Reinforcement rating: good or easy"`
}

// HealthCheckArgs has no parameters.
type HealthCheckArgs struct{}
