package salience

import (
	"time"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

// Rating for explicit reinforcement.
const (
	RatingGood = "good"
	RatingEasy = "easy"
)

// Stability multipliers per rating.
const (
	multiplierGood = 1.5
	multiplierEasy = 2.0

	// Elapsed time assumed for a memory that has never been reinforced.
	defaultElapsedDays = 365.0

	// Implicit stability bump applied on get().
	touchMultiplier = 1.1
)

// ValidRating reports whether rating is one of the accepted values.
func ValidRating(rating string) bool {
	return rating == RatingGood || rating == RatingEasy
}

// Reinforce computes the post-reinforcement state from the current one.
//
// New stability = stability * (1 + (1-R) * m), where R is the current
// retrievability at the elapsed time since last reinforcement. A faded memory
// (low R) receives a larger absolute boost than a fresh one — the spacing
// effect. The result is clamped to [MinStability, MaxStability].
func Reinforce(state memory.SalienceState, rating string, now time.Time) (memory.SalienceState, error) {
	if !ValidRating(rating) {
		return state, memory.NewValidation("rating", "rating must be 'good' or 'easy'")
	}

	elapsed := defaultElapsedDays
	if state.LastReinforcedAt != nil {
		elapsed = now.Sub(*state.LastReinforcedAt).Seconds() / 86400.0
		if elapsed < 0 {
			elapsed = 0
		}
	}

	r := Retrievability(state.Stability, elapsed)
	m := multiplierGood
	if rating == RatingEasy {
		m = multiplierEasy
	}

	next := state
	next.Stability = clampStability(state.Stability * (1 + (1-r)*m))
	next.ReinforcementCount++
	t := now
	next.LastReinforcedAt = &t
	return next, nil
}

// Touch applies the implicit stability bump for a direct get(). It does not
// update LastReinforcedAt or ReinforcementCount.
func Touch(state memory.SalienceState) memory.SalienceState {
	state.Stability = clampStability(state.Stability * touchMultiplier)
	return state
}

func clampStability(s float64) float64 {
	if s < memory.MinStability {
		return memory.MinStability
	}
	if s > memory.MaxStability {
		return memory.MaxStability
	}
	return s
}
