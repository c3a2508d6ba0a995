package salience

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

func TestRecencyScoreAtZero(t *testing.T) {
	assert.InDelta(t, 1.0, RecencyScore(0, 0.01), 1e-10)
}

func TestRecencyScoreHalfLife(t *testing.T) {
	// lambda=0.01 puts the half-life at ln(2)/0.01 ≈ 69.3 days.
	assert.InDelta(t, 0.5, RecencyScore(69.3, 0.01), 0.01)
}

func TestAccessFrequencyScore(t *testing.T) {
	assert.Equal(t, 0.0, AccessFrequencyScore(0))
	assert.InDelta(t, 0.693, AccessFrequencyScore(1), 0.001)
	assert.InDelta(t, 2.303, AccessFrequencyScore(9), 0.001)

	s1 := AccessFrequencyScore(1)
	s10 := AccessFrequencyScore(10)
	s100 := AccessFrequencyScore(100)
	assert.Less(t, s1, s10)
	assert.Less(t, s10, s100)
}

func TestRetrievability(t *testing.T) {
	assert.InDelta(t, 1.0, Retrievability(7, 0), 1e-10)

	r := Retrievability(1, 1_000_000)
	assert.GreaterOrEqual(t, r, 0.0)
	assert.LessOrEqual(t, r, 1.0)

	assert.Equal(t, 0.0, Retrievability(0, 5))
	assert.Equal(t, 0.0, Retrievability(-1, 5))
}

func TestRetrievabilityNeverReinforcedDefaults(t *testing.T) {
	// Stability 1.0 at 365 days elapsed: R = (1 + 19/81*365)^-0.5 ≈ 0.1075.
	r := Retrievability(1.0, 365)
	expected := math.Pow(1.0+19.0/81.0*365.0, -0.5)
	assert.InDelta(t, expected, r, 1e-12)
	assert.InDelta(t, 0.107, r, 0.01)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		input  []float64
		expect []float64
	}{
		{"empty", nil, nil},
		{"single element", []float64{42}, []float64{1}},
		{"all equal", []float64{5, 5, 5}, []float64{1, 1, 1}},
		{"range", []float64{0, 5, 10}, []float64{0, 0.5, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			require.Len(t, got, len(tt.expect))
			for i := range tt.expect {
				assert.InDelta(t, tt.expect[i], got[i], 1e-10)
			}
		})
	}
}

func testHit(id string, updatedAt time.Time, accessCount int64, rrf float64) Hit {
	return Hit{
		Memory: memory.Memory{
			ID:          id,
			UpdatedAt:   updatedAt,
			AccessCount: accessCount,
		},
		RRFScore: rrf,
	}
}

func TestRankOrdersBySalience(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	scorer := NewScorer(DefaultConfig())

	// One fresh, frequently accessed, highly relevant hit against one stale,
	// untouched, barely relevant hit.
	hits := []Hit{
		testHit("stale", now.AddDate(0, -6, 0), 0, 0.01),
		testHit("fresh", now.Add(-time.Hour), 10, 0.05),
	}
	inputs := []Input{
		{Stability: 1, DaysSinceReinforced: 365},
		{Stability: 10, DaysSinceReinforced: 1},
	}

	ranked := scorer.Rank(hits, inputs, now)
	require.Len(t, ranked, 2)
	assert.Equal(t, "fresh", ranked[0].Memory.ID)
	assert.Greater(t, ranked[0].SalienceScore, ranked[1].SalienceScore)
}

func TestRankSingleHitIsFullySalient(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	scorer := NewScorer(DefaultConfig())

	hits := []Hit{testHit("only", now.AddDate(-1, 0, 0), 3, 0.02)}
	inputs := []Input{{Stability: 1, DaysSinceReinforced: 200}}

	ranked := scorer.Rank(hits, inputs, now)
	require.Len(t, ranked, 1)
	// Every dimension normalizes to 1.0, so the score is the weight sum.
	assert.InDelta(t, 1.0, ranked[0].SalienceScore, 1e-9)
}

func TestRankDebugBreakdown(t *testing.T) {
	now := time.Now().UTC()
	cfg := DefaultConfig()
	cfg.DebugScoring = true
	scorer := NewScorer(cfg)

	hits := []Hit{
		testHit("a", now, 1, 0.05),
		testHit("b", now.AddDate(0, 0, -30), 0, 0.01),
	}
	inputs := []Input{
		{Stability: 5, DaysSinceReinforced: 2},
		{Stability: 1, DaysSinceReinforced: 365},
	}

	ranked := scorer.Rank(hits, inputs, now)
	for _, h := range ranked {
		require.NotNil(t, h.Breakdown)
		assert.GreaterOrEqual(t, h.Breakdown.Recency, 0.0)
		assert.LessOrEqual(t, h.Breakdown.Recency, 1.0)
	}
}

func TestRankEmptyInput(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	assert.Empty(t, scorer.Rank(nil, nil, time.Now()))
}
