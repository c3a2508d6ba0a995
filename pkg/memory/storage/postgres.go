// Package storage is the PostgreSQL persistence layer. It exclusively owns
// all persistent rows; pipelines and the retrieval engine reach the database
// only through it. The database is the serialization point — no in-process
// locks guard persistent state.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

// BM25Backend selects the lexical search implementation.
type BM25Backend string

const (
	// BM25Native ranks with the built-in tsvector/ts_rank_cd machinery.
	BM25Native BM25Backend = "native"
	// BM25Extension ranks with the pg_search (ParadeDB) BM25 extension.
	BM25Extension BM25Backend = "extension"
)

// Storage is the pgx-backed store.
type Storage struct {
	pool               *pgxpool.Pool
	logger             *log.Logger
	bm25Backend        BM25Backend
	extensionAvailable bool
}

// New wraps a connected pool. The pg_search extension is probed once so the
// extension backend can be refused with a clear log line instead of failing
// every query.
func New(ctx context.Context, pool *pgxpool.Pool, bm25Backend BM25Backend, logger *log.Logger) (*Storage, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	s := &Storage{pool: pool, logger: logger, bm25Backend: bm25Backend}

	var available bool
	row := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'pg_search')")
	if err := row.Scan(&available); err != nil {
		return nil, memory.NewStorage("probing pg_search extension", err)
	}
	s.extensionAvailable = available
	logger.Info("Lexical search backend selected",
		"backend", bm25Backend, "pg_search_available", available)
	if bm25Backend == BM25Extension && !available {
		logger.Warn("pg_search extension not installed, falling back to native tsvector ranking")
		s.bm25Backend = BM25Native
	}
	return s, nil
}

// jsonArray encodes a string slice for a JSONB parameter. pgx would otherwise
// encode []string as text[], which does not cast to jsonb.
func jsonArray(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

const memoryColumns = `id, content, type_hint, source, tags, created_at, updated_at,
	last_accessed_at, access_count, embedding_status, extraction_status,
	extracted_entities, extracted_facts, is_consolidated_original, consolidated_into`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (memory.Memory, error) {
	var m memory.Memory
	err := row.Scan(
		&m.ID, &m.Content, &m.TypeHint, &m.Source, &m.Tags,
		&m.CreatedAt, &m.UpdatedAt, &m.LastAccessedAt, &m.AccessCount,
		&m.EmbeddingStatus, &m.ExtractionStatus,
		&m.ExtractedEntities, &m.ExtractedFacts,
		&m.IsConsolidatedOriginal, &m.ConsolidatedInto,
	)
	return m, err
}

// StoreMemory inserts a new memory with both pipeline statuses pending.
func (s *Storage) StoreMemory(ctx context.Context, input memory.CreateMemory) (memory.Memory, error) {
	if err := input.Validate(); err != nil {
		return memory.Memory{}, err
	}
	if input.TypeHint == "" {
		input.TypeHint = memory.DefaultTypeHint
	}
	if input.Source == "" {
		input.Source = memory.DefaultSource
	}
	if input.Tags == nil {
		input.Tags = []string{}
	}

	// A caller-supplied created_at (historical ingest) also anchors
	// updated_at so recency decay reflects the memory's real age.
	createdAt := time.Now().UTC()
	if input.CreatedAt != nil {
		createdAt = input.CreatedAt.UTC()
	}
	id := uuid.New().String()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO memories (id, content, type_hint, source, tags, created_at, updated_at,
			access_count, embedding_status, extraction_status, extracted_entities, extracted_facts)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $6, 0, $7, $7, '[]'::jsonb, '[]'::jsonb)`,
		id, input.Content, input.TypeHint, input.Source, jsonArray(input.Tags),
		createdAt, memory.StatusPending)
	if err != nil {
		return memory.Memory{}, memory.NewStorage("inserting memory", err)
	}

	return memory.Memory{
		ID:                id,
		Content:           input.Content,
		TypeHint:          input.TypeHint,
		Source:            input.Source,
		Tags:              input.Tags,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
		EmbeddingStatus:   memory.StatusPending,
		ExtractionStatus:  memory.StatusPending,
		ExtractedEntities: []string{},
		ExtractedFacts:    []string{},
	}, nil
}

// GetMemory fetches a memory by id. Touch side-effects are the caller's
// responsibility so reads stay read-only here.
func (s *Storage) GetMemory(ctx context.Context, id string) (memory.Memory, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+memoryColumns+" FROM memories WHERE id = $1", id)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Memory{}, memory.NewNotFound(id)
	}
	if err != nil {
		return memory.Memory{}, memory.NewStorage("fetching memory", err)
	}
	return m, nil
}

// UpdateMemory applies a partial patch. updated_at is bumped only when at
// least one field actually changes.
func (s *Storage) UpdateMemory(ctx context.Context, id string, patch memory.UpdateMemory) (memory.Memory, error) {
	if patch.Empty() {
		return s.GetMemory(ctx, id)
	}

	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	idx := 2
	// Comparisons against the stored values; updated_at moves only when one
	// of them holds.
	var changed []string

	if patch.Content != nil {
		if strings.TrimSpace(*patch.Content) == "" {
			return memory.Memory{}, memory.NewValidation("content", "content cannot be empty")
		}
		sets = append(sets, fmt.Sprintf("content = $%d", idx))
		changed = append(changed, fmt.Sprintf("content IS DISTINCT FROM $%d", idx))
		args = append(args, *patch.Content)
		idx++
	}
	if patch.TypeHint != nil {
		sets = append(sets, fmt.Sprintf("type_hint = $%d", idx))
		changed = append(changed, fmt.Sprintf("type_hint IS DISTINCT FROM $%d", idx))
		args = append(args, *patch.TypeHint)
		idx++
	}
	if patch.Source != nil {
		sets = append(sets, fmt.Sprintf("source = $%d", idx))
		changed = append(changed, fmt.Sprintf("source IS DISTINCT FROM $%d", idx))
		args = append(args, *patch.Source)
		idx++
	}
	if patch.Tags != nil {
		sets = append(sets, fmt.Sprintf("tags = $%d::jsonb", idx))
		changed = append(changed, fmt.Sprintf("tags IS DISTINCT FROM $%d::jsonb", idx))
		args = append(args, jsonArray(*patch.Tags))
		idx++
	}
	sets[0] = fmt.Sprintf("updated_at = CASE WHEN %s THEN $1 ELSE updated_at END",
		strings.Join(changed, " OR "))
	// A content change invalidates the derived extraction state; the caller
	// re-enqueues the pipelines.
	if patch.Content != nil {
		sets = append(sets, fmt.Sprintf("extraction_status = $%d", idx))
		args = append(args, memory.StatusPending)
		idx++
	}
	if patch.Content != nil || patch.Tags != nil {
		sets = append(sets, fmt.Sprintf("embedding_status = $%d", idx))
		args = append(args, memory.StatusPending)
		idx++
	}

	args = append(args, id)
	sql := fmt.Sprintf("UPDATE memories SET %s WHERE id = $%d RETURNING "+memoryColumns,
		strings.Join(sets, ", "), idx)

	row := s.pool.QueryRow(ctx, sql, args...)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Memory{}, memory.NewNotFound(id)
	}
	if err != nil {
		return memory.Memory{}, memory.NewStorage("updating memory", err)
	}
	return m, nil
}

// DeleteMemory removes a memory; NotFound when absent.
func (s *Storage) DeleteMemory(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM memories WHERE id = $1", id)
	if err != nil {
		return memory.NewStorage("deleting memory", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.NewNotFound(id)
	}
	return nil
}

// Touch atomically bumps access stats. Missing ids are a silent no-op.
func (s *Storage) Touch(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE memories SET last_accessed_at = $1, access_count = access_count + 1 WHERE id = $2",
		time.Now().UTC(), id)
	if err != nil {
		return memory.NewStorage("touching memory", err)
	}
	return nil
}

// filterClauses translates a ListFilter into WHERE fragments and args,
// continuing the numbering from startIdx.
func filterClauses(filter memory.ListFilter, startIdx int) ([]string, []any, int) {
	var conds []string
	var args []any
	idx := startIdx

	add := func(cond string, val any) {
		conds = append(conds, fmt.Sprintf(cond, idx))
		args = append(args, val)
		idx++
	}
	if filter.TypeHint != nil {
		add("type_hint = $%d", *filter.TypeHint)
	}
	if filter.Source != nil {
		add("source = $%d", *filter.Source)
	}
	if filter.CreatedAfter != nil {
		add("created_at > $%d", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		add("created_at < $%d", *filter.CreatedBefore)
	}
	if filter.UpdatedAfter != nil {
		add("updated_at > $%d", *filter.UpdatedAfter)
	}
	if filter.UpdatedBefore != nil {
		add("updated_at < $%d", *filter.UpdatedBefore)
	}
	return conds, args, idx
}

// ListMemories pages through memories ordered by (created_at DESC, id ASC)
// with keyset pagination.
func (s *Storage) ListMemories(ctx context.Context, filter memory.ListFilter) (memory.ListResult, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	conds, args, idx := filterClauses(filter, 1)
	if filter.Cursor != nil {
		ts, id, err := memory.DecodeCursor(*filter.Cursor)
		if err != nil {
			return memory.ListResult{}, err
		}
		conds = append(conds, fmt.Sprintf(
			"(created_at < $%d OR (created_at = $%d AND id > $%d))", idx, idx, idx+1))
		args = append(args, ts, id)
		idx += 2
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	// One extra row decides whether a next page exists.
	args = append(args, limit+1)
	sql := fmt.Sprintf(
		"SELECT "+memoryColumns+" FROM memories %s ORDER BY created_at DESC, id ASC LIMIT $%d",
		where, idx)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return memory.ListResult{}, memory.NewStorage("listing memories", err)
	}
	defer rows.Close()

	var memories []memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return memory.ListResult{}, memory.NewStorage("scanning memory row", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return memory.ListResult{}, memory.NewStorage("listing memories", err)
	}

	result := memory.ListResult{Memories: memories}
	if int64(len(memories)) > limit {
		result.Memories = memories[:limit]
		last := result.Memories[len(result.Memories)-1]
		cursor := memory.EncodeCursor(last.CreatedAt, last.ID)
		result.NextCursor = &cursor
	}
	return result, nil
}

// CountMatching returns how many memories a bulk delete would remove.
func (s *Storage) CountMatching(ctx context.Context, filter memory.ListFilter) (int64, error) {
	conds, args, _ := filterClauses(filter, 1)
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	var count int64
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM memories %s", where), args...)
	if err := row.Scan(&count); err != nil {
		return 0, memory.NewStorage("counting memories", err)
	}
	return count, nil
}

// BulkDelete removes all memories matching the filter and returns the count.
func (s *Storage) BulkDelete(ctx context.Context, filter memory.ListFilter) (int64, error) {
	conds, args, _ := filterClauses(filter, 1)
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM memories %s", where), args...)
	if err != nil {
		return 0, memory.NewStorage("bulk deleting memories", err)
	}
	return tag.RowsAffected(), nil
}

// GetMemoriesByIDs fetches a batch of memories keyed by id. Missing ids are
// simply absent from the map.
func (s *Storage) GetMemoriesByIDs(ctx context.Context, ids []string) (map[string]memory.Memory, error) {
	out := make(map[string]memory.Memory, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+memoryColumns+" FROM memories WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, memory.NewStorage("fetching memories by ids", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, memory.NewStorage("scanning memory row", err)
		}
		out[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, memory.NewStorage("fetching memories by ids", err)
	}
	return out, nil
}
