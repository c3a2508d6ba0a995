package queryintel

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"

	"github.com/everlong-ai/memoryd/pkg/memory/salience"
)

// Config toggles the two QI steps and bounds their combined latency.
type Config struct {
	ExpansionEnabled   bool
	RerankingEnabled   bool
	LatencyBudgetMS    int
	RerankContentChars int
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return Config{
		LatencyBudgetMS:    2000,
		RerankContentChars: 300,
	}
}

// Expansion may consume at most this share of the total budget; re-ranking
// gets whatever remains.
const expansionBudgetShare = 0.6

// Re-ranking is skipped when less than this remains of the budget.
const minRerankBudget = 100 * time.Millisecond

// Re-ranking considers only the top slice of salience-ranked results.
const rerankTopK = 10

// Blend weights between the LLM ordering and the salience score.
const (
	blendLLMWeight      = 0.7
	blendSalienceWeight = 0.3
)

// Enhancer runs the optional expansion and re-ranking steps around a search.
type Enhancer struct {
	cfg      Config
	provider Provider
	logger   *log.Logger
}

// NewEnhancer builds an Enhancer. provider may be nil when both steps are
// disabled.
func NewEnhancer(cfg Config, provider Provider, logger *log.Logger) *Enhancer {
	return &Enhancer{cfg: cfg, provider: provider, logger: logger}
}

// Session tracks the latency budget across the steps of a single search.
type Session struct {
	enh      *Enhancer
	now      time.Time
	deadline time.Time
}

// Begin opens a budget session anchored at now.
func (e *Enhancer) Begin(now time.Time) *Session {
	return &Session{
		enh:      e,
		now:      now,
		deadline: now.Add(time.Duration(e.cfg.LatencyBudgetMS) * time.Millisecond),
	}
}

// ExpandQuery returns the query text to search with and an optional soft time
// range. With expansion disabled (or on any failure) the original query is
// kept and the deterministic temporal parser supplies the range.
func (s *Session) ExpandQuery(ctx context.Context, query string) (string, *TimeRange) {
	e := s.enh
	if !e.cfg.ExpansionEnabled || e.provider == nil {
		return query, ParseTemporalHint(query, s.now)
	}

	budget := time.Duration(float64(e.cfg.LatencyBudgetMS)*expansionBudgetShare) * time.Millisecond
	expandCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	expanded, err := e.provider.Expand(expandCtx, query)
	if err != nil {
		e.logger.Warn("Query expansion failed, using temporal parser fallback", "error", err)
		return query, ParseTemporalHint(query, s.now)
	}

	searchQuery := query
	if len(expanded.Variants) > 0 && expanded.Variants[0] != "" {
		searchQuery = expanded.Variants[0]
	}
	e.logger.Debug("Query expanded", "original", query, "variant", searchQuery,
		"has_time_range", expanded.TimeRange != nil)
	return searchQuery, expanded.TimeRange
}

// RerankTop re-orders the top slice of salience-ranked hits via the LLM,
// blending the LLM rank with the normalized salience score. Positions beyond
// the top slice are untouched. Skipped when disabled or when the remaining
// budget is too small.
func (s *Session) RerankTop(ctx context.Context, query string, hits []salience.Hit) []salience.Hit {
	e := s.enh
	if !e.cfg.RerankingEnabled || e.provider == nil || len(hits) == 0 {
		return hits
	}

	remaining := time.Until(s.deadline)
	if remaining < minRerankBudget {
		e.logger.Debug("Skipping LLM re-rank, latency budget exhausted", "remaining", remaining)
		return hits
	}

	top := hits
	if len(top) > rerankTopK {
		top = hits[:rerankTopK]
	}

	candidates := lo.Map(top, func(h salience.Hit, i int) Candidate {
		return Candidate{
			ID:          h.Memory.ID,
			Content:     truncate(h.Memory.Content, e.cfg.RerankContentChars),
			CurrentRank: i + 1,
		}
	})

	rerankCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	rankedIDs, err := e.provider.Rerank(rerankCtx, query, candidates)
	if err != nil {
		e.logger.Warn("LLM re-rank failed, keeping salience order", "error", err)
		return hits
	}

	// Defensive: drop ids the LLM invented, keep only known candidates.
	known := make(map[string]int, len(top))
	for i, h := range top {
		known[h.Memory.ID] = i
	}
	llmRank := make(map[string]int, len(rankedIDs))
	rank := 1
	for _, id := range rankedIDs {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := llmRank[id]; dup {
			continue
		}
		llmRank[id] = rank
		rank++
	}

	salienceScores := make([]float64, len(top))
	for i, h := range top {
		salienceScores[i] = h.SalienceScore
	}
	normSalience := salience.Normalize(salienceScores)

	type blended struct {
		hit   salience.Hit
		score float64
	}
	rescored := make([]blended, len(top))
	for i, h := range top {
		score := blendSalienceWeight * normSalience[i]
		if r, ok := llmRank[h.Memory.ID]; ok {
			score += blendLLMWeight * (1.0 / (1.0 + float64(r)))
		}
		rescored[i] = blended{hit: h, score: score}
	}

	// Stable sort keeps the salience order for candidates the LLM skipped.
	sort.SliceStable(rescored, func(i, j int) bool {
		return rescored[i].score > rescored[j].score
	})

	out := make([]salience.Hit, len(hits))
	for i := range rescored {
		out[i] = rescored[i].hit
	}
	copy(out[len(rescored):], hits[len(rescored):])
	return out
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
