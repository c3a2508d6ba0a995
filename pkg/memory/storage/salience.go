package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/everlong-ai/memoryd/pkg/memory"
	"github.com/everlong-ai/memoryd/pkg/memory/salience"
)

// GetSalienceData batch-fetches salience rows for a result set. Memories with
// no row yet get the default state so scoring never special-cases absence.
func (s *Storage) GetSalienceData(ctx context.Context, ids []string) (map[string]memory.SalienceState, error) {
	out := make(map[string]memory.SalienceState, len(ids))
	for _, id := range ids {
		out[id] = memory.DefaultSalienceState(id)
	}
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT memory_id, stability, difficulty, reinforcement_count, last_reinforced_at
		FROM memory_salience WHERE memory_id = ANY($1)`, ids)
	if err != nil {
		return nil, memory.NewStorage("fetching salience data", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st memory.SalienceState
		if err := rows.Scan(&st.MemoryID, &st.Stability, &st.Difficulty,
			&st.ReinforcementCount, &st.LastReinforcedAt); err != nil {
			return nil, memory.NewStorage("scanning salience row", err)
		}
		out[st.MemoryID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, memory.NewStorage("fetching salience data", err)
	}
	return out, nil
}

// UpsertSalience writes the full salience state for a memory.
func (s *Storage) UpsertSalience(ctx context.Context, st memory.SalienceState) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memory_salience (memory_id, stability, difficulty, reinforcement_count,
			last_reinforced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (memory_id) DO UPDATE SET
			stability = EXCLUDED.stability,
			difficulty = EXCLUDED.difficulty,
			reinforcement_count = EXCLUDED.reinforcement_count,
			last_reinforced_at = EXCLUDED.last_reinforced_at,
			updated_at = EXCLUDED.updated_at`,
		st.MemoryID, st.Stability, st.Difficulty, st.ReinforcementCount,
		st.LastReinforcedAt, now)
	if err != nil {
		return memory.NewStorage("upserting salience", err)
	}
	return nil
}

// ReinforceSalience applies an explicit reinforcement atomically: the current
// row is locked, the FSRS update computed, and the result written back in one
// transaction. Fails with NotFound when the memory itself does not exist.
func (s *Storage) ReinforceSalience(ctx context.Context, memoryID, rating string) (memory.SalienceState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return memory.SalienceState{}, memory.NewStorage("beginning reinforcement", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM memories WHERE id = $1)", memoryID).Scan(&exists); err != nil {
		return memory.SalienceState{}, memory.NewStorage("checking memory", err)
	}
	if !exists {
		return memory.SalienceState{}, memory.NewNotFound(memoryID)
	}

	state := memory.DefaultSalienceState(memoryID)
	row := tx.QueryRow(ctx, `
		SELECT memory_id, stability, difficulty, reinforcement_count, last_reinforced_at
		FROM memory_salience WHERE memory_id = $1 FOR UPDATE`, memoryID)
	err = row.Scan(&state.MemoryID, &state.Stability, &state.Difficulty,
		&state.ReinforcementCount, &state.LastReinforcedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return memory.SalienceState{}, memory.NewStorage("locking salience row", err)
	}

	next, err := salience.Reinforce(state, rating, time.Now().UTC())
	if err != nil {
		return memory.SalienceState{}, err
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO memory_salience (memory_id, stability, difficulty, reinforcement_count,
			last_reinforced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (memory_id) DO UPDATE SET
			stability = EXCLUDED.stability,
			reinforcement_count = EXCLUDED.reinforcement_count,
			last_reinforced_at = EXCLUDED.last_reinforced_at,
			updated_at = EXCLUDED.updated_at`,
		next.MemoryID, next.Stability, next.Difficulty, next.ReinforcementCount,
		next.LastReinforcedAt, now)
	if err != nil {
		return memory.SalienceState{}, memory.NewStorage("writing reinforcement", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return memory.SalienceState{}, memory.NewStorage("committing reinforcement", err)
	}
	return next, nil
}

// TouchSalience applies the implicit stability bump for a direct get,
// lazily creating the row. Idempotent upsert; fire-and-forget at the caller.
func (s *Storage) TouchSalience(ctx context.Context, memoryID string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memory_salience (memory_id, stability, difficulty, reinforcement_count,
			created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
		ON CONFLICT (memory_id) DO UPDATE SET
			stability = LEAST(memory_salience.stability * 1.1, $5),
			updated_at = EXCLUDED.updated_at`,
		memoryID, memory.DefaultStability*1.1, memory.DefaultDifficulty, now,
		memory.MaxStability)
	if err != nil {
		return memory.NewStorage("touching salience", err)
	}
	return nil
}
