package embedding

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

func TestBuildText(t *testing.T) {
	assert.Equal(t, "hello", BuildText("hello", nil))
	assert.Equal(t, "hello", BuildText("hello", []string{}))
	assert.Equal(t, "hello a b", BuildText("hello", []string{"a", "b"}))
}

type fakeEmbedProvider struct {
	mu     sync.Mutex
	vec    []float32
	err    error
	calls  int
}

func (f *fakeEmbedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.vec, f.err
}

func (f *fakeEmbedProvider) ModelName() string { return "fake-model" }
func (f *fakeEmbedProvider) Dimension() int    { return 3 }

type fakeEmbedStore struct {
	mu         sync.Mutex
	inserted   []memory.EmbeddingRecord
	statuses   map[string]string
	memories   map[string]memory.Memory
	pendingSet []memory.Memory
}

func newFakeEmbedStore() *fakeEmbedStore {
	return &fakeEmbedStore{
		statuses: make(map[string]string),
		memories: make(map[string]memory.Memory),
	}
}

func (f *fakeEmbedStore) InsertEmbedding(ctx context.Context, rec memory.EmbeddingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *fakeEmbedStore) UpdateEmbeddingStatus(ctx context.Context, memoryID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[memoryID] = status
	return nil
}

func (f *fakeEmbedStore) GetMemory(ctx context.Context, id string) (memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[id]
	if !ok {
		return memory.Memory{}, memory.NewNotFound(id)
	}
	return m, nil
}

func (f *fakeEmbedStore) GetPendingMemories(ctx context.Context, limit int) ([]memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pendingSet
	f.pendingSet = nil
	return out, nil
}

func (f *fakeEmbedStore) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

func (f *fakeEmbedStore) insertedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestPipelineEmbedsAndMarksComplete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &fakeEmbedProvider{vec: []float32{1, 2, 3}}
	store := newFakeEmbedStore()
	p := NewPipeline(provider, store, 10, testLogger(), nil)
	go p.Run(ctx)

	p.Enqueue(Job{MemoryID: "m1", Text: "hello world"})
	require.NoError(t, p.Flush(ctx))

	assert.Equal(t, memory.StatusComplete, store.status("m1"))
	require.Equal(t, 1, store.insertedCount())
	rec := store.inserted[0]
	assert.Equal(t, "m1", rec.MemoryID)
	assert.Equal(t, "fake-model", rec.ModelName)
	assert.True(t, rec.IsCurrent)
	assert.Equal(t, 3, rec.Dimension)
}

func TestPipelineDropsWhenFull(t *testing.T) {
	// No worker running: a capacity-1 channel accepts one job and drops the
	// second without blocking.
	provider := &fakeEmbedProvider{vec: []float32{1}}
	store := newFakeEmbedStore()
	p := NewPipeline(provider, store, 1, testLogger(), nil)

	done := make(chan struct{})
	go func() {
		p.Enqueue(Job{MemoryID: "a", Text: "x"})
		p.Enqueue(Job{MemoryID: "b", Text: "y"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full channel")
	}
	assert.Equal(t, int64(1), p.pending.Load())
}

func TestPipelineBackfill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &fakeEmbedProvider{vec: []float32{1}}
	store := newFakeEmbedStore()
	store.pendingSet = []memory.Memory{
		{ID: "p1", Content: "one", Tags: []string{"t"}},
		{ID: "p2", Content: "two"},
	}
	p := NewPipeline(provider, store, 10, testLogger(), nil)
	go p.Run(ctx)

	queued := p.Backfill(ctx)
	assert.Equal(t, int64(2), queued)
	require.NoError(t, p.Flush(ctx))
	assert.Equal(t, memory.StatusComplete, store.status("p1"))
	assert.Equal(t, memory.StatusComplete, store.status("p2"))
}

func TestPipelineFailureMarksFailedAfterRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &fakeEmbedProvider{err: errors.New("provider down")}
	store := newFakeEmbedStore()
	p := NewPipeline(provider, store, 10, testLogger(), nil)
	go p.Run(ctx)

	p.Enqueue(Job{MemoryID: "m1", Text: "hello"})

	// Three retries with 1s, 2s, and 4s backoff before the final failure.
	flushCtx, flushCancel := context.WithTimeout(ctx, 15*time.Second)
	defer flushCancel()
	require.NoError(t, p.Flush(flushCtx))

	assert.Equal(t, memory.StatusFailed, store.status("m1"))
	assert.Equal(t, 4, provider.calls)
	assert.Equal(t, 0, store.insertedCount())
}
