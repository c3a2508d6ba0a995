package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

// FindSimilarMemories returns consolidation candidates: memories whose
// current, complete embedding has cosine similarity of at least threshold to
// the probe vector, excluding the probe memory and anything already
// consolidated. Best matches first, at most limit rows.
func (s *Storage) FindSimilarMemories(ctx context.Context, memoryID string, vector []float32, threshold float64, limit int) ([]memory.SimilarMemory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.content, 1 - (e.embedding <=> $1) AS similarity
		FROM memory_embeddings e
		JOIN memories m ON m.id = e.memory_id
		WHERE e.is_current
		  AND m.embedding_status = 'complete'
		  AND NOT m.is_consolidated_original
		  AND m.id <> $2
		  AND 1 - (e.embedding <=> $1) >= $3
		ORDER BY similarity DESC
		LIMIT $4`,
		pgvector.NewVector(vector), memoryID, threshold, limit)
	if err != nil {
		return nil, memory.NewStorage("finding similar memories", err)
	}
	defer rows.Close()

	var out []memory.SimilarMemory
	for rows.Next() {
		var sm memory.SimilarMemory
		if err := rows.Scan(&sm.MemoryID, &sm.Content, &sm.Similarity); err != nil {
			return nil, memory.NewStorage("scanning similar memory", err)
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, memory.NewStorage("finding similar memories", err)
	}
	return out, nil
}

// CreateConsolidatedMemory atomically creates the consolidated memory, one
// link per source with its similarity, and flips each source's
// is_consolidated_original flag. The primary key on the link table is the
// idempotency guard: a concurrent worker touching any of the same sources
// gets ErrDuplicateConsolidation and the whole transaction rolls back.
func (s *Storage) CreateConsolidatedMemory(ctx context.Context, content string, sourceIDs []string, similarities []float64) (string, error) {
	if len(sourceIDs) == 0 || len(sourceIDs) != len(similarities) {
		return "", memory.NewValidation("source_ids", "source ids and similarities must be non-empty and parallel")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", memory.NewStorage("beginning consolidation", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	newID := uuid.New().String()

	_, err = tx.Exec(ctx, `
		INSERT INTO memories (id, content, type_hint, source, tags, created_at, updated_at,
			access_count, embedding_status, extraction_status, extracted_entities, extracted_facts)
		VALUES ($1, $2, $3, $4, '[]'::jsonb, $5, $5, 0, $6, $6, '[]'::jsonb, '[]'::jsonb)`,
		newID, content, memory.TypeHintConsolidated, "consolidation", now, memory.StatusPending)
	if err != nil {
		return "", memory.NewStorage("inserting consolidated memory", err)
	}

	for i, sourceID := range sourceIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO memory_consolidations (source_memory_id, consolidated_memory_id, similarity, created_at)
			VALUES ($1, $2, $3, $4)`,
			sourceID, newID, similarities[i], now)
		if err != nil {
			if isUniqueViolation(err) {
				return "", memory.ErrDuplicateConsolidation
			}
			return "", memory.NewStorage("inserting consolidation link", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE memories
		SET is_consolidated_original = TRUE, consolidated_into = $1, updated_at = $2
		WHERE id = ANY($3)`,
		newID, now, sourceIDs)
	if err != nil {
		return "", memory.NewStorage("marking consolidated originals", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", memory.NewStorage("committing consolidation", err)
	}
	return newID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
