// Package search implements hybrid three-leg retrieval: lexical (BM25),
// dense-vector, and symbolic searches fused by Reciprocal Rank Fusion and
// re-ranked by salience.
package search

import (
	"sort"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

// Leg bit flags tracking which searches contributed a result.
const (
	legBM25 uint8 = 1 << iota
	legVector
	legSymbolic
)

// Base RRF k constants per leg. The effective k is base_k / weight, so a
// heavier weight lowers k and lets that leg's top ranks dominate the fusion.
const (
	BaseKBM25     = 60.0
	BaseKVector   = 60.0
	BaseKSymbolic = 40.0
)

// FusedHit is one document after rank fusion.
type FusedHit struct {
	ID          string
	Score       float64
	MatchSource string
}

// matchSourceLabel projects the contributing-legs bitset to a stable label.
func matchSourceLabel(bits uint8) string {
	switch bits {
	case legBM25 | legVector | legSymbolic:
		return "all_three"
	case legBM25 | legVector:
		return "bm25_vector"
	case legBM25 | legSymbolic:
		return "bm25_symbolic"
	case legVector | legSymbolic:
		return "vector_symbolic"
	case legBM25:
		return "bm25_only"
	case legVector:
		return "vector_only"
	case legSymbolic:
		return "symbolic_only"
	default:
		return "unknown"
	}
}

// Fuse combines the three ranked lists via RRF: each document scores
// sum(1/(k_leg + rank_leg)) over the legs it appears in. Results are sorted
// by fused score descending; ties break on id for determinism.
func Fuse(bm25, vector, symbolic []memory.RankedHit, kBM25, kVector, kSymbolic float64) []FusedHit {
	scores := make(map[string]float64)
	sources := make(map[string]uint8)

	accumulate := func(hits []memory.RankedHit, k float64, bit uint8) {
		for _, h := range hits {
			scores[h.ID] += 1.0 / (k + float64(h.Rank))
			sources[h.ID] |= bit
		}
	}
	accumulate(bm25, kBM25, legBM25)
	accumulate(vector, kVector, legVector)
	accumulate(symbolic, kSymbolic, legSymbolic)

	fused := make([]FusedHit, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, FusedHit{
			ID:          id,
			Score:       score,
			MatchSource: matchSourceLabel(sources[id]),
		})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})
	return fused
}
