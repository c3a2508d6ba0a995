package salience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

func TestReinforceNeverReinforced(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	state := memory.DefaultSalienceState("m1")

	next, err := Reinforce(state, RatingGood, now)
	require.NoError(t, err)

	// Elapsed defaults to 365 days: R ≈ 0.103..0.108, so the new stability is
	// 1.0 * (1 + (1-R)*1.5) ≈ 2.34.
	assert.InDelta(t, 2.34, next.Stability, 0.02)
	assert.Equal(t, int64(1), next.ReinforcementCount)
	require.NotNil(t, next.LastReinforcedAt)
	assert.Equal(t, now, *next.LastReinforcedAt)
}

func TestReinforceEasyBoostsMore(t *testing.T) {
	now := time.Now().UTC()
	state := memory.DefaultSalienceState("m1")

	good, err := Reinforce(state, RatingGood, now)
	require.NoError(t, err)
	easy, err := Reinforce(state, RatingEasy, now)
	require.NoError(t, err)

	assert.Greater(t, easy.Stability, good.Stability)
}

func TestReinforceSpacingEffect(t *testing.T) {
	// Reinforcing after a longer gap must produce a larger stability delta:
	// low retrievability earns a bigger boost.
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reinforcedAt := base

	short := memory.SalienceState{MemoryID: "m", Stability: 5, Difficulty: 5, LastReinforcedAt: &reinforcedAt}
	long := memory.SalienceState{MemoryID: "m", Stability: 5, Difficulty: 5, LastReinforcedAt: &reinforcedAt}

	afterShort, err := Reinforce(short, RatingGood, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	afterLong, err := Reinforce(long, RatingGood, base.AddDate(0, 0, 60))
	require.NoError(t, err)

	deltaShort := afterShort.Stability - 5
	deltaLong := afterLong.Stability - 5
	assert.Greater(t, deltaLong, deltaShort)
}

func TestReinforceClampsStability(t *testing.T) {
	now := time.Now().UTC()
	state := memory.SalienceState{MemoryID: "m", Stability: memory.MaxStability}

	next, err := Reinforce(state, RatingEasy, now)
	require.NoError(t, err)
	assert.Equal(t, memory.MaxStability, next.Stability)
}

func TestReinforceInvalidRating(t *testing.T) {
	_, err := Reinforce(memory.DefaultSalienceState("m"), "hard", time.Now())
	require.Error(t, err)
	assert.True(t, memory.IsValidation(err))
}

func TestTouchBumpsStability(t *testing.T) {
	state := memory.SalienceState{MemoryID: "m", Stability: 2.0, ReinforcementCount: 3}
	touched := Touch(state)
	assert.InDelta(t, 2.2, touched.Stability, 1e-9)
	// Touch is implicit: the reinforcement bookkeeping is untouched.
	assert.Equal(t, int64(3), touched.ReinforcementCount)
	assert.Nil(t, touched.LastReinforcedAt)
}

func TestValidRating(t *testing.T) {
	assert.True(t, ValidRating("good"))
	assert.True(t, ValidRating("easy"))
	assert.False(t, ValidRating("again"))
	assert.False(t, ValidRating(""))
}
