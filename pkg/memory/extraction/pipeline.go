package extraction

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

// Store is the slice of the storage layer the pipeline needs.
type Store interface {
	UpdateExtraction(ctx context.Context, memoryID string, entities, facts []string) error
	UpdateExtractionStatus(ctx context.Context, memoryID, status string) error
	GetPendingExtractionMemories(ctx context.Context, limit int) ([]memory.Memory, error)
}

const (
	maxAttempts   = 3
	backfillBatch = 100
)

// Pipeline feeds a single background extraction worker through a bounded
// channel, mirroring the embedding pipeline: non-blocking enqueue, bounded
// retry, startup backfill as the recovery net.
type Pipeline struct {
	jobs            chan Job
	provider        Provider
	store           Store
	logger          *log.Logger
	maxContentChars int
	pending         atomic.Int64
}

// NewPipeline builds a Pipeline. maxContentChars caps the prompt input.
func NewPipeline(provider Provider, store Store, capacity, maxContentChars int, logger *log.Logger) *Pipeline {
	return &Pipeline{
		jobs:            make(chan Job, capacity),
		provider:        provider,
		store:           store,
		logger:          logger,
		maxContentChars: maxContentChars,
	}
}

// Enqueue offers a job without blocking; dropped jobs surface in the next
// backfill via the memory's pending status.
func (p *Pipeline) Enqueue(job Job) {
	p.pending.Add(1)
	select {
	case p.jobs <- job:
	default:
		p.pending.Add(-1)
		p.logger.Warn("Extraction queue full, memory stored, extraction deferred to backfill",
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
	content := Truncate(job.Content, p.maxContentChars)
	result, err := p.provider.Extract(ctx, content)
	if err != nil {
		// Malformed JSON counts as a retryable provider error.
		if job.Attempt < maxAttempts {
			p.logger.Warn("Extraction failed, retrying",
				"memory_id", job.MemoryID, "attempt", job.Attempt+1, "error", err)
			p.retryLater(ctx, job)
			return
		}
		p.logger.Error("Extraction failed after retries, marking as failed",
			"memory_id", job.MemoryID, "attempts", job.Attempt+1, "error", err)
		if err := p.store.UpdateExtractionStatus(ctx, job.MemoryID, memory.StatusFailed); err != nil {
			p.logger.Error("Failed to mark extraction failed", "memory_id", job.MemoryID, "error", err)
		}
		p.pending.Add(-1)
		return
	}

	if err := p.store.UpdateExtraction(ctx, job.MemoryID, result.Entities, result.Facts); err != nil {
		p.logger.Error("Failed to store extraction", "memory_id", job.MemoryID, "error", err)
		if err := p.store.UpdateExtractionStatus(ctx, job.MemoryID, memory.StatusFailed); err != nil {
			p.logger.Error("Failed to mark extraction failed", "memory_id", job.MemoryID, "error", err)
		}
		p.pending.Add(-1)
		return
	}

	p.logger.Debug("Extraction complete", "memory_id", job.MemoryID,
		"entities", len(result.Entities), "facts", len(result.Facts))
	p.pending.Add(-1)
}

func (p *Pipeline) retryLater(ctx context.Context, job Job) {
	delay := time.Duration(1<<uint(job.Attempt)) * time.Second
	next := Job{MemoryID: job.MemoryID, Content: job.Content, Attempt: job.Attempt + 1}
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
			p.logger.Warn("Extraction queue full on retry, deferring to backfill",
				"memory_id", next.MemoryID)
		}
	}()
}

// Flush blocks until every enqueued job has finished. Used by offline runs
// and tests.
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

// Backfill enqueues memories whose extraction is pending or failed, stopping
// early when the channel fills.
func (p *Pipeline) Backfill(ctx context.Context) int64 {
	var queued int64
	for {
		pending, err := p.store.GetPendingExtractionMemories(ctx, backfillBatch)
		if err != nil {
			p.logger.Error("Failed to fetch pending extractions for backfill", "error", err)
			break
		}
		if len(pending) == 0 {
			break
		}

		for _, mem := range pending {
			p.pending.Add(1)
			select {
			case p.jobs <- Job{MemoryID: mem.ID, Content: mem.Content}:
				queued++
			default:
				p.pending.Add(-1)
				p.logger.Warn("Extraction queue full during backfill, remaining memories deferred")
				return queued
			}
		}

		if len(pending) < backfillBatch {
			break
		}
	}

	if queued > 0 {
		p.logger.Info("Queued memories for extraction backfill", "count", queued)
	}
	return queued
}
