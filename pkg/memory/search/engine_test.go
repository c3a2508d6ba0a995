package search

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everlong-ai/memoryd/pkg/memory"
	"github.com/everlong-ai/memoryd/pkg/memory/queryintel"
	"github.com/everlong-ai/memoryd/pkg/memory/salience"
	"github.com/everlong-ai/memoryd/pkg/memory/storage"
)

type fakeSearchStore struct {
	bm25     []memory.RankedHit
	vector   []memory.RankedHit
	symbolic []memory.RankedHit
	memories map[string]memory.Memory
	salience map[string]memory.SalienceState

	bm25Err     error
	vectorErr   error
	symbolicErr error
}

func (f *fakeSearchStore) SearchBM25(ctx context.Context, query string, limit int) ([]memory.RankedHit, error) {
	return f.bm25, f.bm25Err
}

func (f *fakeSearchStore) SearchSimilarRanked(ctx context.Context, queryVec []float32, filter *storage.SearchFilter, limit int) ([]memory.RankedHit, error) {
	return f.vector, f.vectorErr
}

func (f *fakeSearchStore) SearchSymbolic(ctx context.Context, query string, limit int) ([]memory.RankedHit, error) {
	return f.symbolic, f.symbolicErr
}

func (f *fakeSearchStore) GetMemoriesByIDs(ctx context.Context, ids []string) (map[string]memory.Memory, error) {
	out := make(map[string]memory.Memory)
	for _, id := range ids {
		if m, ok := f.memories[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (f *fakeSearchStore) GetSalienceData(ctx context.Context, ids []string) (map[string]memory.SalienceState, error) {
	out := make(map[string]memory.SalienceState)
	for _, id := range ids {
		if st, ok := f.salience[id]; ok {
			out[id] = st
		} else {
			out[id] = memory.DefaultSalienceState(id)
		}
	}
	return out, nil
}

type fakeQueryEmbedder struct {
	vec []float32
	err error
}

func (f *fakeQueryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func newTestEngine(store Store, embedder Embedder) *Engine {
	logger := log.New(io.Discard)
	return NewEngine(store, embedder,
		salience.NewScorer(salience.DefaultConfig()),
		queryintel.NewEnhancer(queryintel.DefaultConfig(), nil, logger),
		logger)
}

func memWith(id string, createdAt time.Time) memory.Memory {
	return memory.Memory{
		ID:        id,
		Content:   "content " + id,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestSearchAllLegsDisabledIsValidationError(t *testing.T) {
	engine := newTestEngine(&fakeSearchStore{}, &fakeQueryEmbedder{vec: []float32{1}})

	_, err := engine.Search(context.Background(), Request{Query: "dark mode"})
	require.Error(t, err)
	assert.True(t, memory.IsValidation(err))
	assert.Contains(t, err.Error(), "at least one search path must be enabled")
}

func TestSearchEmptyQueryIsValidationError(t *testing.T) {
	engine := newTestEngine(&fakeSearchStore{}, nil)
	_, err := engine.Search(context.Background(), Request{
		BM25Weight: 1, VectorWeight: 1, SymbolicWeight: 1,
	})
	require.Error(t, err)
	assert.True(t, memory.IsValidation(err))
}

func defaultRequest(query string) Request {
	return Request{Query: query, BM25Weight: 1, VectorWeight: 1, SymbolicWeight: 1}
}

func TestSearchFusesAndRanks(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeSearchStore{
		bm25:     []memory.RankedHit{{ID: "a", Rank: 1}, {ID: "b", Rank: 2}},
		vector:   []memory.RankedHit{{ID: "a", Rank: 1}, {ID: "c", Rank: 2}},
		symbolic: []memory.RankedHit{{ID: "a", Rank: 1}},
		memories: map[string]memory.Memory{
			"a": memWith("a", now.Add(-time.Hour)),
			"b": memWith("b", now.Add(-2*time.Hour)),
			"c": memWith("c", now.Add(-3*time.Hour)),
		},
	}
	engine := newTestEngine(store, &fakeQueryEmbedder{vec: []float32{1}})

	hits, err := engine.Search(context.Background(), defaultRequest("dark mode"))
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].Memory.ID)
	assert.Equal(t, "all_three", hits[0].MatchSource)
	assert.Greater(t, hits[0].SalienceScore, 0.0)
}

func TestSearchSurvivesEmbedderFailure(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeSearchStore{
		bm25:     []memory.RankedHit{{ID: "a", Rank: 1}},
		memories: map[string]memory.Memory{"a": memWith("a", now)},
	}
	engine := newTestEngine(store, &fakeQueryEmbedder{err: errors.New("provider down")})

	hits, err := engine.Search(context.Background(), defaultRequest("anything"))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "bm25_only", hits[0].MatchSource)
}

func TestSearchSurvivesLegFailure(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeSearchStore{
		bm25Err:  errors.New("tsquery parse error"),
		vector:   []memory.RankedHit{{ID: "v", Rank: 1}},
		memories: map[string]memory.Memory{"v": memWith("v", now)},
	}
	engine := newTestEngine(store, &fakeQueryEmbedder{vec: []float32{1}})

	hits, err := engine.Search(context.Background(), defaultRequest("anything"))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "vector_only", hits[0].MatchSource)
}

func TestSearchTimeBoostReordersInRangeHits(t *testing.T) {
	now := time.Now().UTC()
	yesterday := now.AddDate(0, 0, -1)
	lastYear := now.AddDate(-1, 0, 0)

	// "old" wins the fusion, but only "recent" falls inside the parsed
	// "yesterday" window and gets the 2x boost.
	store := &fakeSearchStore{
		bm25: []memory.RankedHit{{ID: "old", Rank: 1}, {ID: "recent", Rank: 2}},
		memories: map[string]memory.Memory{
			"old":    memWith("old", lastYear),
			"recent": memWith("recent", yesterday),
		},
	}
	// Make recency comparable so the boost decides.
	old := store.memories["old"]
	old.UpdatedAt = now
	store.memories["old"] = old
	recent := store.memories["recent"]
	recent.UpdatedAt = now
	store.memories["recent"] = recent

	engine := newTestEngine(store, nil)

	req := Request{Query: "what did I do yesterday", BM25Weight: 1}
	hits, err := engine.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "recent", hits[0].Memory.ID)
}

func TestSearchLimitApplied(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeSearchStore{memories: map[string]memory.Memory{}}
	for i := 0; i < 30; i++ {
		id := string(rune('a' + i))
		store.bm25 = append(store.bm25, memory.RankedHit{ID: id, Rank: int64(i + 1)})
		store.memories[id] = memWith(id, now)
	}
	engine := newTestEngine(store, nil)

	hits, err := engine.Search(context.Background(), Request{Query: "q", BM25Weight: 1, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, hits, 5)
}

func TestSearchNoResults(t *testing.T) {
	engine := newTestEngine(&fakeSearchStore{memories: map[string]memory.Memory{}}, nil)
	hits, err := engine.Search(context.Background(), defaultRequest("nothing"))
	require.NoError(t, err)
	assert.Empty(t, hits)
}
