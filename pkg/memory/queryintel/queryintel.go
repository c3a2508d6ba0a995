// Package queryintel provides optional LLM-backed query expansion and top-K
// re-ranking, bounded by a hard latency budget with graceful degradation. A
// deterministic temporal parser serves as the no-LLM fallback for time hints.
package queryintel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TimeRange is a soft time filter derived from temporal language in a query.
// Bounds are inclusive; either side may be open.
type TimeRange struct {
	After  *time.Time `json:"after,omitempty"`
	Before *time.Time `json:"before,omitempty"`
}

// Contains reports whether ts falls inside the range.
func (r *TimeRange) Contains(ts time.Time) bool {
	if r == nil {
		return false
	}
	if r.After != nil && ts.Before(*r.After) {
		return false
	}
	if r.Before != nil && ts.After(*r.Before) {
		return false
	}
	return true
}

// ExpandedQuery is the result of LLM query expansion.
type ExpandedQuery struct {
	// Up to 3 alternative phrasings; the first is used as the search query.
	Variants []string
	// Optional time range extracted from temporal hints.
	TimeRange *TimeRange
}

// Candidate is one memory offered to the re-ranker.
type Candidate struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	CurrentRank int    `json:"current_rank"`
}

// Provider is the LLM capability set for query intelligence. Implementations
// must be safe for concurrent use.
type Provider interface {
	Expand(ctx context.Context, query string) (ExpandedQuery, error)
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]string, error)
	ModelName() string
}

// BuildExpansionPrompt instructs the model to rephrase the query and pull out
// any temporal hint as an ISO-8601 range.
func BuildExpansionPrompt(query, currentDate string) string {
	return fmt.Sprintf(
		"You are helping an AI assistant search its own memory bank.\n"+
			"Today's date: %s\n\n"+
			"Given the search query below, do two things:\n"+
			"1. Generate 2-3 alternative phrasings that would help retrieve relevant memories "+
			"(you may discard the original if a variant is clearly better).\n"+
			"2. If the query contains a temporal hint (e.g. 'last week', 'yesterday', "+
			"'after 2024-01-01'), extract it as a time range with ISO-8601 after/before fields.\n\n"+
			"Output only valid JSON matching the provided schema. Do not add commentary.\n\n"+
			"Query: %s",
		currentDate, query)
}

// BuildRerankingPrompt instructs the model to reorder candidates by relevance.
func BuildRerankingPrompt(query, candidatesJSON string) string {
	return fmt.Sprintf(
		"You are helping an AI assistant search its own memory bank.\n"+
			"Given the search query and a list of candidate memories below, "+
			"re-order the candidates from most relevant to least relevant.\n\n"+
			"Output only valid JSON matching the provided schema: "+
			`{"ranked_ids": ["id1", "id2", ...]}. `+
			"Include ALL candidate IDs. Do not add commentary.\n\n"+
			"Query: %s\n\nCandidates:\n%s",
		query, candidatesJSON)
}

// expansionReply is the wire shape both providers parse.
type expansionReply struct {
	Variants  []string `json:"variants"`
	TimeRange *struct {
		After  string `json:"after,omitempty"`
		Before string `json:"before,omitempty"`
	} `json:"time_range,omitempty"`
}

// rerankReply is the wire shape of the re-ranking response.
type rerankReply struct {
	RankedIDs []string `json:"ranked_ids"`
}

// parseExpansionReply decodes the LLM JSON and converts timestamps. A
// malformed time bound drops that bound rather than the whole expansion.
func parseExpansionReply(raw []byte) (ExpandedQuery, error) {
	var reply expansionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return ExpandedQuery{}, fmt.Errorf("parsing expansion reply: %w", err)
	}
	out := ExpandedQuery{Variants: reply.Variants}
	if reply.TimeRange != nil {
		tr := &TimeRange{}
		if ts, err := time.Parse(time.RFC3339, reply.TimeRange.After); err == nil {
			tr.After = &ts
		}
		if ts, err := time.Parse(time.RFC3339, reply.TimeRange.Before); err == nil {
			tr.Before = &ts
		}
		if tr.After != nil || tr.Before != nil {
			out.TimeRange = tr
		}
	}
	return out, nil
}

// parseRerankReply decodes the LLM JSON ranked id list.
func parseRerankReply(raw []byte) ([]string, error) {
	var reply rerankReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("parsing rerank reply: %w", err)
	}
	return reply.RankedIDs, nil
}
