package extraction

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("User prefers dark mode.")
	assert.Contains(t, prompt, "User prefers dark mode.")
	assert.Contains(t, prompt, "named entities")
	assert.Contains(t, prompt, "Output only JSON")
}

func TestParseResult(t *testing.T) {
	result, err := ParseResult([]byte(`{"entities":["Rust"],"facts":["Rust is great"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Rust"}, result.Entities)
	assert.Equal(t, []string{"Rust is great"}, result.Facts)

	// Missing arrays normalize to empty, never nil.
	result, err = ParseResult([]byte(`{}`))
	require.NoError(t, err)
	assert.NotNil(t, result.Entities)
	assert.NotNil(t, result.Facts)

	_, err = ParseResult([]byte(`entities: []`))
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 1500))
	assert.Equal(t, "ab", Truncate("abcd", 2))
	assert.Equal(t, "abcd", Truncate("abcd", 0))
}

type fakeExtractProvider struct {
	mu     sync.Mutex
	result Result
	err    error
	calls  int
}

func (f *fakeExtractProvider) Extract(ctx context.Context, content string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeExtractProvider) ModelName() string { return "fake" }

type fakeExtractStore struct {
	mu       sync.Mutex
	entities map[string][]string
	facts    map[string][]string
	statuses map[string]string
	pending  []memory.Memory
}

func newFakeExtractStore() *fakeExtractStore {
	return &fakeExtractStore{
		entities: make(map[string][]string),
		facts:    make(map[string][]string),
		statuses: make(map[string]string),
	}
}

func (f *fakeExtractStore) UpdateExtraction(ctx context.Context, memoryID string, entities, facts []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[memoryID] = entities
	f.facts[memoryID] = facts
	f.statuses[memoryID] = memory.StatusComplete
	return nil
}

func (f *fakeExtractStore) UpdateExtractionStatus(ctx context.Context, memoryID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[memoryID] = status
	return nil
}

func (f *fakeExtractStore) GetPendingExtractionMemories(ctx context.Context, limit int) ([]memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out, nil
}

func TestExtractionPipelineStoresResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &fakeExtractProvider{result: Result{
		Entities: []string{"dark mode"},
		Facts:    []string{"user likes dark mode"},
	}}
	store := newFakeExtractStore()
	p := NewPipeline(provider, store, 10, 1500, log.New(io.Discard))
	go p.Run(ctx)

	p.Enqueue(Job{MemoryID: "m1", Content: "The user likes dark mode."})
	require.NoError(t, p.Flush(ctx))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, memory.StatusComplete, store.statuses["m1"])
	assert.Equal(t, []string{"dark mode"}, store.entities["m1"])
	assert.Equal(t, []string{"user likes dark mode"}, store.facts["m1"])
}

func TestExtractionFailureMarksFailedAfterRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &fakeExtractProvider{err: errors.New("malformed JSON")}
	store := newFakeExtractStore()
	p := NewPipeline(provider, store, 10, 1500, log.New(io.Discard))
	go p.Run(ctx)

	p.Enqueue(Job{MemoryID: "m1", Content: "text"})

	// Three retries with 1s, 2s, and 4s backoff before the final failure.
	flushCtx, flushCancel := context.WithTimeout(ctx, 15*time.Second)
	defer flushCancel()
	require.NoError(t, p.Flush(flushCtx))

	store.mu.Lock()
	status := store.statuses["m1"]
	store.mu.Unlock()
	assert.Equal(t, memory.StatusFailed, status)
	assert.Equal(t, 4, provider.calls)
}

func TestExtractionBackfill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &fakeExtractProvider{result: Result{Entities: []string{}, Facts: []string{}}}
	store := newFakeExtractStore()
	store.pending = []memory.Memory{{ID: "p1", Content: "text"}}
	p := NewPipeline(provider, store, 10, 1500, log.New(io.Discard))
	go p.Run(ctx)

	queued := p.Backfill(ctx)
	assert.Equal(t, int64(1), queued)
	require.NoError(t, p.Flush(ctx))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, memory.StatusComplete, store.statuses["p1"])
}
