package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

func ranked(pairs ...any) []memory.RankedHit {
	var hits []memory.RankedHit
	for i := 0; i < len(pairs); i += 2 {
		hits = append(hits, memory.RankedHit{ID: pairs[i].(string), Rank: int64(pairs[i+1].(int))})
	}
	return hits
}

func TestFuseAllThreeLegsOutranksSingles(t *testing.T) {
	fused := Fuse(
		ranked("a", 1, "b", 2),
		ranked("a", 1, "c", 2),
		ranked("a", 1),
		BaseKBM25, BaseKVector, BaseKSymbolic)

	require.NotEmpty(t, fused)
	assert.Equal(t, "a", fused[0].ID)
	assert.Equal(t, "all_three", fused[0].MatchSource)
}

func TestFuseMonotonicity(t *testing.T) {
	// Two documents tied in the vector leg; the one with the better BM25 rank
	// must score strictly higher.
	fused := Fuse(
		ranked("x", 1, "y", 2),
		ranked("x", 3, "y", 3),
		nil,
		BaseKBM25, BaseKVector, BaseKSymbolic)

	require.Len(t, fused, 2)
	assert.Equal(t, "x", fused[0].ID)
	assert.Greater(t, fused[0].Score, fused[1].Score)
}

func TestFuseMatchSourceLabels(t *testing.T) {
	fused := Fuse(
		ranked("bm", 1, "bv", 2, "bs", 3),
		ranked("v", 1, "bv", 2, "vs", 3),
		ranked("s", 1, "bs", 2, "vs", 3),
		BaseKBM25, BaseKVector, BaseKSymbolic)

	labels := map[string]string{}
	for _, f := range fused {
		labels[f.ID] = f.MatchSource
	}
	assert.Equal(t, "bm25_only", labels["bm"])
	assert.Equal(t, "vector_only", labels["v"])
	assert.Equal(t, "symbolic_only", labels["s"])
	assert.Equal(t, "bm25_vector", labels["bv"])
	assert.Equal(t, "bm25_symbolic", labels["bs"])
	assert.Equal(t, "vector_symbolic", labels["vs"])
}

func TestFuseScoreFormula(t *testing.T) {
	fused := Fuse(ranked("a", 1), ranked("a", 2), nil, 60, 60, 40)
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0/61.0+1.0/62.0, fused[0].Score, 1e-12)
}

func TestFuseDeterministicTieBreak(t *testing.T) {
	// Equal scores fall back to id order.
	fused := Fuse(ranked("b", 1), ranked("a", 1), nil, 60, 60, 40)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ID)
}

func TestEffectiveK(t *testing.T) {
	assert.Equal(t, 60.0, effectiveK(60, 1.0))
	assert.Equal(t, 30.0, effectiveK(60, 2.0))
	assert.Equal(t, 120.0, effectiveK(60, 0.5))
	// Disabled legs never reach fusion, the base constant is returned.
	assert.Equal(t, 60.0, effectiveK(60, 0))
}
