package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

// InsertEmbedding stores a new embedding row. When the row is current, any
// previous current row for the memory is demoted first so the partial unique
// index holds.
func (s *Storage) InsertEmbedding(ctx context.Context, rec memory.EmbeddingRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return memory.NewStorage("beginning embedding insert", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if rec.IsCurrent {
		_, err = tx.Exec(ctx,
			"UPDATE memory_embeddings SET is_current = FALSE, updated_at = $1 WHERE memory_id = $2 AND is_current",
			time.Now().UTC(), rec.MemoryID)
		if err != nil {
			return memory.NewStorage("demoting previous embedding", err)
		}
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO memory_embeddings (id, memory_id, model_name, model_version, dimension,
			embedding, is_current, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		rec.ID, rec.MemoryID, rec.ModelName, rec.ModelVersion, rec.Dimension,
		pgvector.NewVector(rec.Vector), rec.IsCurrent, now)
	if err != nil {
		return memory.NewStorage("inserting embedding", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return memory.NewStorage("committing embedding insert", err)
	}
	return nil
}

// UpdateEmbeddingStatus moves a memory through the pipeline state machine.
func (s *Storage) UpdateEmbeddingStatus(ctx context.Context, memoryID, status string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE memories SET embedding_status = $1 WHERE id = $2",
		status, memoryID)
	if err != nil {
		return memory.NewStorage("updating embedding status", err)
	}
	return nil
}

// GetPendingMemories returns memories whose embedding is pending or failed,
// oldest first, for the backfill.
func (s *Storage) GetPendingMemories(ctx context.Context, limit int) ([]memory.Memory, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+memoryColumns+` FROM memories
		 WHERE embedding_status IN ('pending', 'failed')
		 ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, memory.NewStorage("fetching pending memories", err)
	}
	defer rows.Close()

	var out []memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, memory.NewStorage("scanning memory row", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, memory.NewStorage("fetching pending memories", err)
	}
	return out, nil
}

// GetPendingExtractionMemories mirrors GetPendingMemories for the extraction
// pipeline.
func (s *Storage) GetPendingExtractionMemories(ctx context.Context, limit int) ([]memory.Memory, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+memoryColumns+` FROM memories
		 WHERE extraction_status IN ('pending', 'failed')
		 ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, memory.NewStorage("fetching pending extractions", err)
	}
	defer rows.Close()

	var out []memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, memory.NewStorage("scanning memory row", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, memory.NewStorage("fetching pending extractions", err)
	}
	return out, nil
}

// UpdateExtraction stores the extracted entity and fact lists and marks the
// extraction complete.
func (s *Storage) UpdateExtraction(ctx context.Context, memoryID string, entities, facts []string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE memories
		SET extracted_entities = $1::jsonb, extracted_facts = $2::jsonb, extraction_status = $3
		WHERE id = $4`,
		jsonArray(entities), jsonArray(facts), memory.StatusComplete, memoryID)
	if err != nil {
		return memory.NewStorage("updating extraction", err)
	}
	return nil
}

// UpdateExtractionStatus moves a memory through the extraction state machine.
func (s *Storage) UpdateExtractionStatus(ctx context.Context, memoryID, status string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE memories SET extraction_status = $1 WHERE id = $2", status, memoryID)
	if err != nil {
		return memory.NewStorage("updating extraction status", err)
	}
	return nil
}

// MarkAllEmbeddingsStale demotes every current embedding and resets the
// affected memories to pending. Used when switching embedding models; the
// backfill then re-embeds everything.
func (s *Storage) MarkAllEmbeddingsStale(ctx context.Context) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, memory.NewStorage("beginning stale mark", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		"UPDATE memory_embeddings SET is_current = FALSE, updated_at = $1 WHERE is_current",
		time.Now().UTC())
	if err != nil {
		return 0, memory.NewStorage("demoting embeddings", err)
	}

	_, err = tx.Exec(ctx,
		"UPDATE memories SET embedding_status = 'pending' WHERE embedding_status = 'complete'")
	if err != nil {
		return 0, memory.NewStorage("resetting embedding statuses", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, memory.NewStorage("committing stale mark", err)
	}
	return tag.RowsAffected(), nil
}

// EmbeddingStats reports pipeline progress grouped by status and by model.
func (s *Storage) EmbeddingStats(ctx context.Context) (memory.EmbeddingStats, error) {
	stats := memory.EmbeddingStats{
		ByStatus: make(map[string]int64),
		ByModel:  make(map[string]int64),
	}

	rows, err := s.pool.Query(ctx,
		"SELECT embedding_status, COUNT(*) FROM memories GROUP BY embedding_status")
	if err != nil {
		return stats, memory.NewStorage("embedding status stats", err)
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, memory.NewStorage("scanning status stats", err)
		}
		stats.ByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, memory.NewStorage("embedding status stats", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT model_name, model_version, is_current, COUNT(*)
		FROM memory_embeddings GROUP BY model_name, model_version, is_current`)
	if err != nil {
		return stats, memory.NewStorage("embedding model stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var model, version string
		var current bool
		var count int64
		if err := rows.Scan(&model, &version, &current, &count); err != nil {
			return stats, memory.NewStorage("scanning model stats", err)
		}
		stats.ByModel[fmt.Sprintf("%s/%s current=%t", model, version, current)] = count
	}
	if err := rows.Err(); err != nil {
		return stats, memory.NewStorage("embedding model stats", err)
	}
	return stats, nil
}
