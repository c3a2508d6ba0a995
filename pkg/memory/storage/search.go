package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

// SearchFilter narrows the vector leg. Consolidated originals are always
// excluded from every leg.
type SearchFilter struct {
	TypeHint *string
	Source   *string
	After    *time.Time
	Before   *time.Time
}

func (f *SearchFilter) active() bool {
	return f != nil && (f.TypeHint != nil || f.Source != nil || f.After != nil || f.Before != nil)
}

// SearchBM25 runs the lexical leg and returns (id, rank) pairs, best first.
// The two backends share this contract; ranks are 1-based list positions.
func (s *Storage) SearchBM25(ctx context.Context, query string, limit int) ([]memory.RankedHit, error) {
	if s.bm25Backend == BM25Extension && s.extensionAvailable {
		return s.searchBM25Extension(ctx, query, limit)
	}
	return s.searchBM25Native(ctx, query, limit)
}

func (s *Storage) searchBM25Native(ctx context.Context, query string, limit int) ([]memory.RankedHit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM memories, websearch_to_tsquery('english', $1) AS q
		WHERE content_tsv @@ q AND NOT is_consolidated_original
		ORDER BY ts_rank_cd(content_tsv, q) DESC, id ASC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, memory.NewStorage("bm25 native search", err)
	}
	defer rows.Close()
	return collectRanked(rows)
}

func (s *Storage) searchBM25Extension(ctx context.Context, query string, limit int) ([]memory.RankedHit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM memories
		WHERE content @@@ $1 AND NOT is_consolidated_original
		ORDER BY paradedb.score(id) DESC, id ASC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, memory.NewStorage("bm25 extension search", err)
	}
	defer rows.Close()
	return collectRanked(rows)
}

func collectRanked(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]memory.RankedHit, error) {
	var hits []memory.RankedHit
	rank := int64(1)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, memory.NewStorage("scanning search row", err)
		}
		hits = append(hits, memory.RankedHit{ID: id, Rank: rank})
		rank++
	}
	if err := rows.Err(); err != nil {
		return nil, memory.NewStorage("iterating search rows", err)
	}
	return hits, nil
}

// SearchSimilar runs the vector leg: ANN over cosine distance on current,
// complete embeddings. Similarities are clamped into [0,1]. When a filter is
// active the session enables iterative ANN scanning so post-filtering does
// not collapse recall; if the server does not support the toggle the search
// proceeds with a logged warning.
func (s *Storage) SearchSimilar(ctx context.Context, queryVec []float32, filter *SearchFilter, limit, offset int) ([]memory.VectorHit, int64, error) {
	conds := []string{
		"e.is_current",
		"m.embedding_status = 'complete'",
		"NOT m.is_consolidated_original",
	}
	args := []any{pgvector.NewVector(queryVec)}
	idx := 2

	if filter != nil {
		if filter.TypeHint != nil {
			conds = append(conds, fmt.Sprintf("m.type_hint = $%d", idx))
			args = append(args, *filter.TypeHint)
			idx++
		}
		if filter.Source != nil {
			conds = append(conds, fmt.Sprintf("m.source = $%d", idx))
			args = append(args, *filter.Source)
			idx++
		}
		if filter.After != nil {
			conds = append(conds, fmt.Sprintf("m.created_at >= $%d", idx))
			args = append(args, *filter.After)
			idx++
		}
		if filter.Before != nil {
			conds = append(conds, fmt.Sprintf("m.created_at <= $%d", idx))
			args = append(args, *filter.Before)
			idx++
		}
	}

	sql := fmt.Sprintf(`
		SELECT m.id, 1 - (e.embedding <=> $1) AS similarity, COUNT(*) OVER () AS total
		FROM memory_embeddings e
		JOIN memories m ON m.id = e.memory_id
		WHERE %s
		ORDER BY e.embedding <=> $1, m.id ASC
		LIMIT $%d OFFSET $%d`, strings.Join(conds, " AND "), idx, idx+1)
	args = append(args, limit, offset)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, 0, memory.NewStorage("beginning vector search transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if filter.active() {
		// The toggle runs inside a savepoint: a rejected SET would otherwise
		// abort the transaction and fail the search query below.
		sp, err := tx.Begin(ctx)
		if err == nil {
			if _, err = sp.Exec(ctx, "SET LOCAL hnsw.iterative_scan = 'relaxed_order'"); err == nil {
				err = sp.Commit(ctx)
			} else {
				_ = sp.Rollback(ctx)
			}
		}
		if err != nil {
			s.logger.Warn("Iterative ANN scan unavailable, filtered recall may suffer", "error", err)
		}
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, memory.NewStorage("vector search", err)
	}
	defer rows.Close()

	var hits []memory.VectorHit
	var total int64
	for rows.Next() {
		var hit memory.VectorHit
		if err := rows.Scan(&hit.ID, &hit.Similarity, &total); err != nil {
			return nil, 0, memory.NewStorage("scanning vector row", err)
		}
		if hit.Similarity < 0 {
			hit.Similarity = 0
		}
		if hit.Similarity > 1 {
			hit.Similarity = 1
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, memory.NewStorage("iterating vector rows", err)
	}
	rows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, memory.NewStorage("committing vector search", err)
	}
	return hits, total, nil
}

// SearchSimilarRanked adapts the vector leg to (id, rank) pairs for fusion.
func (s *Storage) SearchSimilarRanked(ctx context.Context, queryVec []float32, filter *SearchFilter, limit int) ([]memory.RankedHit, error) {
	hits, _, err := s.SearchSimilar(ctx, queryVec, filter, limit, 0)
	if err != nil {
		return nil, err
	}
	ranked := make([]memory.RankedHit, len(hits))
	for i, h := range hits {
		ranked[i] = memory.RankedHit{ID: h.ID, Rank: int64(i + 1)}
	}
	return ranked, nil
}

// SearchSymbolic runs the symbolic leg: weighted matches of the whole query
// string against tags (3), extracted entities (2), extracted facts (2),
// type_hint (1), and source (1). Zero-score rows are omitted. Multi-word
// queries typically miss here — containment treats the query as one token.
func (s *Storage) SearchSymbolic(ctx context.Context, query string, limit int) ([]memory.RankedHit, error) {
	needle := jsonArray([]string{query})
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM (
			SELECT id,
				(CASE WHEN tags @> $1::jsonb THEN 3 ELSE 0 END +
				 CASE WHEN extracted_entities @> $1::jsonb THEN 2 ELSE 0 END +
				 CASE WHEN extracted_facts @> $1::jsonb THEN 2 ELSE 0 END +
				 CASE WHEN type_hint = $2 THEN 1 ELSE 0 END +
				 CASE WHEN source = $2 THEN 1 ELSE 0 END) AS score
			FROM memories
			WHERE NOT is_consolidated_original
		) scored
		WHERE score > 0
		ORDER BY score DESC, id ASC
		LIMIT $3`, needle, query, limit)
	if err != nil {
		return nil, memory.NewStorage("symbolic search", err)
	}
	defer rows.Close()
	return collectRanked(rows)
}
