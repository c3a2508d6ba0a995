package search

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"

	"github.com/everlong-ai/memoryd/pkg/memory"
	"github.com/everlong-ai/memoryd/pkg/memory/queryintel"
	"github.com/everlong-ai/memoryd/pkg/memory/salience"
	"github.com/everlong-ai/memoryd/pkg/memory/storage"
)

// Store is the slice of the storage layer the engine needs.
type Store interface {
	SearchBM25(ctx context.Context, query string, limit int) ([]memory.RankedHit, error)
	SearchSimilarRanked(ctx context.Context, queryVec []float32, filter *storage.SearchFilter, limit int) ([]memory.RankedHit, error)
	SearchSymbolic(ctx context.Context, query string, limit int) ([]memory.RankedHit, error)
	GetMemoriesByIDs(ctx context.Context, ids []string) (map[string]memory.Memory, error)
	GetSalienceData(ctx context.Context, ids []string) (map[string]memory.SalienceState, error)
}

// Embedder produces the query vector for the dense leg.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Per-leg candidate pool before fusion.
const candidatePool = 40

// Default and maximum result counts.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Soft boost applied to hits inside a derived time range. A multiplier, not
// a filter: LLM-inferred ranges can be wrong.
const timeBoost = 2.0

// Elapsed days assumed when a memory has never been reinforced.
const defaultReinforceElapsedDays = 365.0

// Request is one hybrid search invocation.
type Request struct {
	Query          string
	Limit          int
	Filter         *storage.SearchFilter
	BM25Weight     float64
	VectorWeight   float64
	SymbolicWeight float64
}

// Engine runs the three legs concurrently, fuses by rank, re-ranks by
// salience, and optionally applies query intelligence. The retrieval path
// never fails open: legs degrade individually and QI failures are soft.
type Engine struct {
	store    Store
	embedder Embedder
	scorer   *salience.Scorer
	enhancer *queryintel.Enhancer
	logger   *log.Logger
}

// NewEngine builds an Engine. embedder may be nil to disable the vector leg
// entirely; enhancer is required (construct it with QI disabled rather than
// passing nil).
func NewEngine(store Store, embedder Embedder, scorer *salience.Scorer, enhancer *queryintel.Enhancer, logger *log.Logger) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		scorer:   scorer,
		enhancer: enhancer,
		logger:   logger,
	}
}

// Search executes the full retrieval flow and returns ranked hits.
func (e *Engine) Search(ctx context.Context, req Request) ([]salience.Hit, error) {
	if req.Query == "" {
		return nil, memory.NewValidation("query", "query is required and cannot be empty")
	}
	if req.BM25Weight <= 0 && req.VectorWeight <= 0 && req.SymbolicWeight <= 0 {
		return nil, memory.NewValidation("weights", "at least one search path must be enabled")
	}
	limit := req.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	now := time.Now().UTC()
	session := e.enhancer.Begin(now)
	searchQuery, timeRange := session.ExpandQuery(ctx, req.Query)

	var (
		wg           sync.WaitGroup
		bm25Hits     []memory.RankedHit
		vectorHits   []memory.RankedHit
		symbolicHits []memory.RankedHit
	)

	if req.BM25Weight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := e.store.SearchBM25(ctx, searchQuery, candidatePool)
			if err != nil {
				e.logger.Warn("BM25 leg failed, continuing without it", "error", err)
				return
			}
			bm25Hits = hits
		}()
	}

	if req.VectorWeight > 0 && e.embedder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := e.embedder.Embed(ctx, searchQuery)
			if err != nil {
				e.logger.Warn("Query embedding failed, continuing without vector leg", "error", err)
				return
			}
			hits, err := e.store.SearchSimilarRanked(ctx, vec, req.Filter, candidatePool)
			if err != nil {
				e.logger.Warn("Vector leg failed, continuing without it", "error", err)
				return
			}
			vectorHits = hits
		}()
	}

	if req.SymbolicWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := e.store.SearchSymbolic(ctx, searchQuery, candidatePool)
			if err != nil {
				e.logger.Warn("Symbolic leg failed, continuing without it", "error", err)
				return
			}
			symbolicHits = hits
		}()
	}

	wg.Wait()

	fused := Fuse(bm25Hits, vectorHits, symbolicHits,
		effectiveK(BaseKBM25, req.BM25Weight),
		effectiveK(BaseKVector, req.VectorWeight),
		effectiveK(BaseKSymbolic, req.SymbolicWeight))
	if len(fused) > limit {
		fused = fused[:limit]
	}
	if len(fused) == 0 {
		return nil, nil
	}

	ids := lo.Map(fused, func(f FusedHit, _ int) string { return f.ID })

	memories, err := e.store.GetMemoriesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	salienceData, err := e.store.GetSalienceData(ctx, ids)
	if err != nil {
		return nil, err
	}

	hits := make([]salience.Hit, 0, len(fused))
	inputs := make([]salience.Input, 0, len(fused))
	for _, f := range fused {
		mem, ok := memories[f.ID]
		if !ok {
			continue
		}
		hits = append(hits, salience.Hit{
			Memory:      mem,
			RRFScore:    f.Score,
			MatchSource: f.MatchSource,
		})
		state := salienceData[f.ID]
		elapsed := defaultReinforceElapsedDays
		if state.LastReinforcedAt != nil {
			elapsed = now.Sub(*state.LastReinforcedAt).Seconds() / 86400.0
			if elapsed < 0 {
				elapsed = 0
			}
		}
		inputs = append(inputs, salience.Input{
			Stability:           state.Stability,
			DaysSinceReinforced: elapsed,
		})
	}

	hits = e.scorer.Rank(hits, inputs, now)

	if timeRange != nil {
		boosted := false
		for i := range hits {
			if timeRange.Contains(hits[i].Memory.CreatedAt) {
				hits[i].SalienceScore *= timeBoost
				boosted = true
			}
		}
		if boosted {
			sortHitsBySalience(hits)
		}
	}

	hits = session.RerankTop(ctx, req.Query, hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func effectiveK(baseK, weight float64) float64 {
	if weight <= 0 {
		return baseK
	}
	return baseK / weight
}

func sortHitsBySalience(hits []salience.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].SalienceScore > hits[j].SalienceScore
	})
}
