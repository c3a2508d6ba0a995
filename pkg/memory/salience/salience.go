// Package salience re-ranks search hits with a composite recall score:
// exponential recency decay, log-scale access frequency, fused semantic
// relevance, and FSRS-style spaced-repetition retrievability.
//
// Everything here is pure — no I/O, no clock reads beyond the caller-supplied
// reference time. Decay is computed at query time only and never written back.
package salience

import (
	"math"
	"sort"
	"time"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

// Config carries the dimension weights and decay constant. Weights are
// expected to sum to 1 but this is not enforced.
type Config struct {
	RecencyWeight       float64
	AccessWeight        float64
	SemanticWeight      float64
	ReinforcementWeight float64
	RecencyLambda       float64
	DebugScoring        bool
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return Config{
		RecencyWeight:       0.25,
		AccessWeight:        0.15,
		SemanticWeight:      0.45,
		ReinforcementWeight: 0.15,
		RecencyLambda:       0.01,
	}
}

// Breakdown holds the normalized per-dimension scores for one hit. Populated
// only when Config.DebugScoring is set.
type Breakdown struct {
	Recency       float64 `json:"recency"`
	Access        float64 `json:"access"`
	Semantic      float64 `json:"semantic"`
	Reinforcement float64 `json:"reinforcement"`
}

// Hit is a single search result moving through the re-ranking stages.
type Hit struct {
	Memory        memory.Memory
	RRFScore      float64
	SalienceScore float64
	MatchSource   string
	Breakdown     *Breakdown
}

// FSRS power-law constants (the standalone closed-form variant).
const (
	fsrsF = 19.0 / 81.0
	fsrsC = -0.5
)

// RecencyScore is exponential decay from the last update. lambda=0.01 gives
// a ~70-day half-life (ln(2)/0.01 ≈ 69.3 days).
func RecencyScore(daysSinceUpdated, lambda float64) float64 {
	return math.Exp(-lambda * daysSinceUpdated)
}

// AccessFrequencyScore is ln(1+count): diminishing returns, 0 for untouched.
func AccessFrequencyScore(accessCount int64) float64 {
	return math.Log(1.0 + float64(accessCount))
}

// Retrievability computes FSRS R(t,S) = (1 + F*t/S)^C clamped to [0,1].
// Non-positive stability yields 0.
func Retrievability(stabilityDays, daysElapsed float64) float64 {
	if stabilityDays <= 0 {
		return 0
	}
	r := math.Pow(1.0+fsrsF*daysElapsed/stabilityDays, fsrsC)
	return math.Min(1.0, math.Max(0.0, r))
}

// Normalize min-max normalizes values over the result set into a new slice,
// leaving the input unchanged. All-equal
// inputs (including a single element) normalize to 1.0 so that a lone hit is
// not penalized; empty input returns empty output.
func Normalize(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(values))
	if max-min < 1e-12 {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - min) / (max - min)
	}
	return out
}

// Input is the per-hit reinforcement state fetched from storage, ordered to
// match the hits slice passed to Rank.
type Input struct {
	Stability           float64
	DaysSinceReinforced float64
}

// Scorer re-ranks hits by composite salience.
type Scorer struct {
	cfg Config
}

// NewScorer builds a Scorer for the given config.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Rank computes the weighted salience score for each hit and sorts hits by it
// descending. inputs must parallel hits. now anchors recency computation.
func (s *Scorer) Rank(hits []Hit, inputs []Input, now time.Time) []Hit {
	if len(hits) == 0 {
		return hits
	}

	rawRecency := make([]float64, len(hits))
	rawAccess := make([]float64, len(hits))
	rawSemantic := make([]float64, len(hits))
	rawReinforce := make([]float64, len(hits))

	for i, h := range hits {
		days := daysSince(h.Memory.UpdatedAt, now)
		rawRecency[i] = RecencyScore(days, s.cfg.RecencyLambda)
		rawAccess[i] = AccessFrequencyScore(h.Memory.AccessCount)
		rawSemantic[i] = h.RRFScore
		rawReinforce[i] = Retrievability(inputs[i].Stability, inputs[i].DaysSinceReinforced)
	}

	normRecency := Normalize(rawRecency)
	normAccess := Normalize(rawAccess)
	normSemantic := Normalize(rawSemantic)
	normReinforce := Normalize(rawReinforce)

	for i := range hits {
		hits[i].SalienceScore = s.cfg.RecencyWeight*normRecency[i] +
			s.cfg.AccessWeight*normAccess[i] +
			s.cfg.SemanticWeight*normSemantic[i] +
			s.cfg.ReinforcementWeight*normReinforce[i]
		if s.cfg.DebugScoring {
			hits[i].Breakdown = &Breakdown{
				Recency:       normRecency[i],
				Access:        normAccess[i],
				Semantic:      normSemantic[i],
				Reinforcement: normReinforce[i],
			}
		} else {
			hits[i].Breakdown = nil
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].SalienceScore > hits[j].SalienceScore
	})
	return hits
}

func daysSince(ts, now time.Time) float64 {
	d := now.Sub(ts).Seconds() / 86400.0
	if d < 0 {
		return 0
	}
	return d
}
