// Package mcpserver exposes the memory service as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	mcp_golang "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"

	"github.com/everlong-ai/memoryd/pkg/memory"
	"github.com/everlong-ai/memoryd/pkg/memory/salience"
	"github.com/everlong-ai/memoryd/pkg/memory/search"
	"github.com/everlong-ai/memoryd/pkg/memory/storage"
	"github.com/everlong-ai/memoryd/pkg/service"
)

// Server registers the memory tools on an MCP stdio server.
type Server struct {
	mcp       *mcp_golang.Server
	svc       *service.Service
	logger    *log.Logger
	startTime time.Time
	version   string
}

// New builds the Server and registers every tool.
func New(svc *service.Service, logger *log.Logger, version string) (*Server, error) {
	s := &Server{
		mcp: mcp_golang.NewServer(stdio.NewStdioServerTransport(),
			mcp_golang.WithName("memoryd"),
			mcp_golang.WithVersion(version)),
		svc:       svc,
		logger:    logger,
		startTime: time.Now(),
		version:   version,
	}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

// Serve blocks serving the stdio transport.
func (s *Server) Serve() error {
	s.logger.Info("MCP server listening on stdio")
	return s.mcp.Serve()
}

func (s *Server) registerTools() error {
	type registration struct {
		name string
		err  error
	}
	regs := []registration{
		{"store_memory", s.mcp.RegisterTool("store_memory",
			"Store a new memory. Returns the memory with its pipeline statuses.", s.storeMemory)},
		{"get_memory", s.mcp.RegisterTool("get_memory",
			"Get a memory by ID. Counts as an access and reinforces the memory slightly.", s.getMemory)},
		{"update_memory", s.mcp.RegisterTool("update_memory",
			"Update a memory's content, type hint, source, or tags.", s.updateMemory)},
		{"delete_memory", s.mcp.RegisterTool("delete_memory",
			"Delete a memory by ID.", s.deleteMemory)},
		{"bulk_delete_memories", s.mcp.RegisterTool("bulk_delete_memories",
			"Delete memories matching a filter. With confirm=false, returns the count only.", s.bulkDelete)},
		{"list_memories", s.mcp.RegisterTool("list_memories",
			"List memories newest-first with cursor pagination.", s.listMemories)},
		{"search_memory", s.mcp.RegisterTool("search_memory",
			"Search memories by natural language query. Returns results ranked by salience.", s.searchMemory)},
		{"reinforce_memory", s.mcp.RegisterTool("reinforce_memory",
			"Reinforce a memory (spaced repetition). Rating: good or easy.", s.reinforceMemory)},
		{"health_check", s.mcp.RegisterTool("health_check",
			"Check server health and status.", s.healthCheck)},
	}
	for _, r := range regs {
		if r.err != nil {
			return fmt.Errorf("registering %s: %w", r.name, r.err)
		}
	}
	return nil
}

// jsonResponse marshals payload into a single text content block.
func jsonResponse(payload any) (*mcp_golang.ToolResponse, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp_golang.NewToolResponse(mcp_golang.NewTextContent(string(data))), nil
}

// errorResponse maps domain errors onto the structured error shape agents can
// self-correct from.
func errorResponse(err error) (*mcp_golang.ToolResponse, error) {
	body := map[string]string{"error": err.Error()}
	var v *memory.ValidationError
	var n *memory.NotFoundError
	switch {
	case errors.As(err, &v):
		if v.Field != "" {
			body["field"] = v.Field
		}
		body["hint"] = "fix the named field and retry"
	case errors.As(err, &n):
		body["hint"] = "the memory may have been deleted; list or search to find current IDs"
	}
	return jsonResponse(body)
}

func (s *Server) storeMemory(ctx context.Context, args StoreMemoryArgs) (*mcp_golang.ToolResponse, error) {
	s.logger.Info("Tool called", "tool", "store_memory", "type_hint", args.TypeHint, "tags", len(args.Tags))

	input := memory.CreateMemory{
		Content:  args.Content,
		TypeHint: args.TypeHint,
		Source:   args.Source,
		Tags:     args.Tags,
	}
	if args.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339, args.CreatedAt)
		if err != nil {
			return errorResponse(memory.NewValidation("created_at", "must be a RFC3339 timestamp"))
		}
		input.CreatedAt = &ts
	}

	mem, err := s.svc.Store(ctx, input)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(mem)
}

func (s *Server) getMemory(ctx context.Context, args GetMemoryArgs) (*mcp_golang.ToolResponse, error) {
	s.logger.Info("Tool called", "tool", "get_memory", "id", args.ID)
	mem, err := s.svc.Get(ctx, args.ID)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(mem)
}

func (s *Server) updateMemory(ctx context.Context, args UpdateMemoryArgs) (*mcp_golang.ToolResponse, error) {
	s.logger.Info("Tool called", "tool", "update_memory", "id", args.ID)

	patch := memory.UpdateMemory{
		Content:  args.Content,
		TypeHint: args.TypeHint,
		Source:   args.Source,
		Tags:     args.Tags,
	}
	if patch.Empty() {
		return errorResponse(memory.NewValidation("patch",
			"at least one of content, type_hint, source, or tags must be provided"))
	}

	mem, err := s.svc.Update(ctx, args.ID, patch)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(mem)
}

func (s *Server) deleteMemory(ctx context.Context, args DeleteMemoryArgs) (*mcp_golang.ToolResponse, error) {
	s.logger.Info("Tool called", "tool", "delete_memory", "id", args.ID)
	if err := s.svc.Delete(ctx, args.ID); err != nil {
		return errorResponse(err)
	}
	return jsonResponse(map[string]any{"deleted": true, "id": args.ID})
}

func (s *Server) bulkDelete(ctx context.Context, args BulkDeleteArgs) (*mcp_golang.ToolResponse, error) {
	s.logger.Info("Tool called", "tool", "bulk_delete_memories", "confirm", args.Confirm)

	filter := memory.ListFilter{}
	if args.TypeHint != "" {
		filter.TypeHint = &args.TypeHint
	}
	if args.Source != "" {
		filter.Source = &args.Source
	}
	var parseErr error
	filter.CreatedAfter, parseErr = parseOptionalTime(args.CreatedAfter, "created_after", parseErr)
	filter.CreatedBefore, parseErr = parseOptionalTime(args.CreatedBefore, "created_before", parseErr)
	filter.UpdatedAfter, parseErr = parseOptionalTime(args.UpdatedAfter, "updated_after", parseErr)
	filter.UpdatedBefore, parseErr = parseOptionalTime(args.UpdatedBefore, "updated_before", parseErr)
	if parseErr != nil {
		return errorResponse(parseErr)
	}

	count, err := s.svc.BulkDelete(ctx, filter, args.Confirm)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(map[string]any{"count": count, "deleted": args.Confirm})
}

func (s *Server) listMemories(ctx context.Context, args ListMemoriesArgs) (*mcp_golang.ToolResponse, error) {
	s.logger.Info("Tool called", "tool", "list_memories", "limit", args.Limit)

	filter := memory.ListFilter{Limit: int64(args.Limit)}
	if args.TypeHint != "" {
		filter.TypeHint = &args.TypeHint
	}
	if args.Source != "" {
		filter.Source = &args.Source
	}
	if args.Cursor != "" {
		filter.Cursor = &args.Cursor
	}

	result, err := s.svc.List(ctx, filter)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(result)
}

// searchResult is the per-hit wire shape for search_memory.
type searchResult struct {
	Memory         memory.Memory       `json:"memory"`
	RelevanceScore float64             `json:"relevance_score"`
	MatchSource    string              `json:"match_source"`
	ScoreBreakdown *salience.Breakdown `json:"score_breakdown,omitempty"`
}

func (s *Server) searchMemory(ctx context.Context, args SearchMemoryArgs) (*mcp_golang.ToolResponse, error) {
	s.logger.Info("Tool called", "tool", "search_memory", "query", args.Query, "limit", args.Limit)

	req := search.Request{
		Query:          args.Query,
		Limit:          args.Limit,
		BM25Weight:     weightOrDefault(args.BM25Weight),
		VectorWeight:   weightOrDefault(args.VectorWeight),
		SymbolicWeight: weightOrDefault(args.SymbolicWeight),
	}
	if args.TypeHint != "" || args.Source != "" {
		req.Filter = &storage.SearchFilter{}
		if args.TypeHint != "" {
			req.Filter.TypeHint = &args.TypeHint
		}
		if args.Source != "" {
			req.Filter.Source = &args.Source
		}
	}

	hits, err := s.svc.Search(ctx, req)
	if err != nil {
		return errorResponse(err)
	}

	results := make([]searchResult, len(hits))
	for i, h := range hits {
		results[i] = searchResult{
			Memory:         h.Memory,
			RelevanceScore: clamp01(h.SalienceScore),
			MatchSource:    h.MatchSource,
			ScoreBreakdown: h.Breakdown,
		}
	}
	return jsonResponse(map[string]any{
		"results": results,
		"count":   len(results),
		"query":   args.Query,
	})
}

func (s *Server) reinforceMemory(ctx context.Context, args ReinforceMemoryArgs) (*mcp_golang.ToolResponse, error) {
	s.logger.Info("Tool called", "tool", "reinforce_memory", "id", args.ID, "rating", args.Rating)
	state, err := s.svc.Reinforce(ctx, args.ID, args.Rating)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(state)
}

func (s *Server) healthCheck(ctx context.Context, args HealthCheckArgs) (*mcp_golang.ToolResponse, error) {
	return jsonResponse(map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

func parseOptionalTime(value, field string, prior error) (*time.Time, error) {
	if prior != nil || value == "" {
		return nil, prior
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, memory.NewValidation(field, "must be a RFC3339 timestamp")
	}
	return &ts, nil
}

func weightOrDefault(w *float64) float64 {
	if w == nil {
		return 1.0
	}
	return *w
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
