package embedding

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/everlong-ai/memoryd/pkg/memory"
	"github.com/everlong-ai/memoryd/pkg/memory/consolidate"
)

// Store is the slice of the storage layer the pipeline needs.
type Store interface {
	InsertEmbedding(ctx context.Context, rec memory.EmbeddingRecord) error
	UpdateEmbeddingStatus(ctx context.Context, memoryID, status string) error
	GetMemory(ctx context.Context, id string) (memory.Memory, error)
	GetPendingMemories(ctx context.Context, limit int) ([]memory.Memory, error)
}

const (
	maxAttempts   = 3
	backfillBatch = 100

	// Model version stamped on every embedding row; bumped only when the
	// embedding text construction changes incompatibly.
	modelVersion = "v1"
)

// Pipeline feeds a single background worker through a bounded channel.
// Enqueue never blocks: when the channel is full the job is dropped and the
// startup backfill recovers it.
type Pipeline struct {
	jobs         chan Job
	provider     Provider
	store        Store
	logger       *log.Logger
	consolidator *consolidate.Worker
	pending      atomic.Int64
}

// NewPipeline builds a Pipeline. consolidator may be nil to disable the
// consolidation side-effect.
func NewPipeline(provider Provider, store Store, capacity int, logger *log.Logger, consolidator *consolidate.Worker) *Pipeline {
	return &Pipeline{
		jobs:         make(chan Job, capacity),
		provider:     provider,
		store:        store,
		logger:       logger,
		consolidator: consolidator,
	}
}

// Enqueue offers a job without blocking. Dropped jobs are logged; the
// memory's pending status makes them visible to the next backfill.
func (p *Pipeline) Enqueue(job Job) {
	p.pending.Add(1)
	select {
	case p.jobs <- job:
	default:
		p.pending.Add(-1)
		p.logger.Warn("Embedding queue full, memory stored, embedding deferred to backfill",
			"memory_id", job.MemoryID)
	}
}

// Run consumes jobs until ctx is canceled. Call in a goroutine.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.process(ctx, job)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, job Job) {
	vector, err := p.provider.Embed(ctx, job.Text)
	if err != nil {
		if job.Attempt < maxAttempts {
			p.logger.Warn("Embedding failed, retrying",
				"memory_id", job.MemoryID, "attempt", job.Attempt+1, "error", err)
			p.retryLater(ctx, job)
			return
		}
		p.logger.Error("Embedding failed after retries, marking as failed",
			"memory_id", job.MemoryID, "attempts", job.Attempt+1, "error", err)
		if err := p.store.UpdateEmbeddingStatus(ctx, job.MemoryID, memory.StatusFailed); err != nil {
			p.logger.Error("Failed to mark embedding failed", "memory_id", job.MemoryID, "error", err)
		}
		p.pending.Add(-1)
		return
	}

	rec := memory.EmbeddingRecord{
		ID:           uuid.New().String(),
		MemoryID:     job.MemoryID,
		ModelName:    p.provider.ModelName(),
		ModelVersion: modelVersion,
		Dimension:    len(vector),
		Vector:       vector,
		IsCurrent:    true,
	}
	if err := p.store.InsertEmbedding(ctx, rec); err != nil {
		// A storage failure is not retryable here; the backfill retries it.
		p.logger.Error("Failed to store embedding", "memory_id", job.MemoryID, "error", err)
		if err := p.store.UpdateEmbeddingStatus(ctx, job.MemoryID, memory.StatusFailed); err != nil {
			p.logger.Error("Failed to mark embedding failed", "memory_id", job.MemoryID, "error", err)
		}
		p.pending.Add(-1)
		return
	}

	if err := p.store.UpdateEmbeddingStatus(ctx, job.MemoryID, memory.StatusComplete); err != nil {
		p.logger.Error("Failed to mark embedding complete", "memory_id", job.MemoryID, "error", err)
	}
	p.logger.Debug("Embedding complete", "memory_id", job.MemoryID)

	// Consolidation runs strictly after embedding success: the similarity
	// probe needs the vector that was just computed.
	if p.consolidator != nil {
		mem, err := p.store.GetMemory(ctx, job.MemoryID)
		if err != nil {
			p.logger.Warn("Failed to fetch memory for consolidation check",
				"memory_id", job.MemoryID, "error", err)
		} else {
			p.consolidator.Enqueue(consolidate.Job{
				MemoryID: job.MemoryID,
				Vector:   vector,
				Content:  mem.Content,
			})
		}
	}
	p.pending.Add(-1)
}

// retryLater re-enqueues with exponential backoff (2^attempt seconds) off the
// worker goroutine so processing continues meanwhile. The pending count is
// carried over — the job is still in flight.
func (p *Pipeline) retryLater(ctx context.Context, job Job) {
	delay := time.Duration(1<<uint(job.Attempt)) * time.Second
	next := Job{MemoryID: job.MemoryID, Text: job.Text, Attempt: job.Attempt + 1}
	go func() {
		select {
		case <-ctx.Done():
			p.pending.Add(-1)
			return
		case <-time.After(delay):
		}
		select {
		case p.jobs <- next:
		default:
			p.pending.Add(-1)
			p.logger.Warn("Embedding queue full on retry, deferring to backfill",
				"memory_id", next.MemoryID)
		}
	}()
}

// Flush blocks until every enqueued job has finished (success or failure).
// Used only by offline batch runs and tests.
func (p *Pipeline) Flush(ctx context.Context) error {
	for {
		if p.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Backfill scans for memories with pending or failed embeddings in batches
// and enqueues them, stopping early when the channel fills. Returns the
// number queued.
func (p *Pipeline) Backfill(ctx context.Context) int64 {
	var queued int64
	for {
		pending, err := p.store.GetPendingMemories(ctx, backfillBatch)
		if err != nil {
			p.logger.Error("Failed to fetch pending memories for backfill", "error", err)
			break
		}
		if len(pending) == 0 {
			break
		}

		for _, mem := range pending {
			p.pending.Add(1)
			select {
			case p.jobs <- Job{MemoryID: mem.ID, Text: BuildText(mem.Content, mem.Tags)}:
				queued++
			default:
				p.pending.Add(-1)
				p.logger.Warn("Embedding queue full during backfill, remaining memories deferred")
				return queued
			}
		}

		if len(pending) < backfillBatch {
			break
		}
	}

	if queued > 0 {
		p.logger.Info("Queued memories for embedding backfill", "count", queued)
	}
	return queued
}
