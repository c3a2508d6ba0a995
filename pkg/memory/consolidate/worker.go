package consolidate

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/everlong-ai/memoryd/pkg/memory"
)

// Worker consumes consolidation jobs from a bounded channel. It is the sole
// writer of consolidation links and the is_consolidated_original flag.
type Worker struct {
	jobs           chan Job
	store          Store
	synth          Synthesizer
	cfg            Config
	logger         *log.Logger
	onConsolidated func(consolidatedID string, sourceIDs []string)
}

// NewWorker builds a Worker with a bounded job channel. onConsolidated is an
// optional hook fired after a successful commit (used for event publication);
// it may be nil.
func NewWorker(store Store, synth Synthesizer, cfg Config, capacity int, logger *log.Logger, onConsolidated func(string, []string)) *Worker {
	return &Worker{
		jobs:           make(chan Job, capacity),
		store:          store,
		synth:          synth,
		cfg:            cfg,
		logger:         logger,
		onConsolidated: onConsolidated,
	}
}

// Enqueue offers a job without blocking. A full channel drops the job — a
// missed consolidation check is not replayed; the next near-duplicate write
// triggers it again.
func (w *Worker) Enqueue(job Job) {
	select {
	case w.jobs <- job:
	default:
		w.logger.Warn("Consolidation queue full, skipping check", "memory_id", job.MemoryID)
	}
}

// Run consumes jobs until ctx is canceled. Call in a goroutine.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			w.process(ctx, job)
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	similar, err := w.store.FindSimilarMemories(ctx, job.MemoryID, job.Vector,
		w.cfg.SimilarityThreshold, w.cfg.MaxConsolidationGroup)
	if err != nil {
		w.logger.Warn("Similarity search failed during consolidation check",
			"memory_id", job.MemoryID, "error", err)
		return
	}
	if len(similar) == 0 {
		w.logger.Debug("No similar memories found, skipping consolidation", "memory_id", job.MemoryID)
		return
	}

	w.logger.Info("Similar memories found, consolidating",
		"memory_id", job.MemoryID, "similar_count", len(similar))

	contents := make([]string, 0, len(similar)+1)
	contents = append(contents, job.Content)
	for _, s := range similar {
		contents = append(contents, s.Content)
	}

	synthesized, err := w.synth.Synthesize(ctx, contents)
	if err != nil {
		w.logger.Warn("LLM synthesis failed, using concatenation fallback",
			"memory_id", job.MemoryID, "error", err)
		synthesized = Concatenate(contents)
	}

	// The triggering memory joins its own group with similarity 1.0.
	sourceIDs := make([]string, 0, len(similar)+1)
	similarities := make([]float64, 0, len(similar)+1)
	sourceIDs = append(sourceIDs, job.MemoryID)
	similarities = append(similarities, 1.0)
	for _, s := range similar {
		sourceIDs = append(sourceIDs, s.MemoryID)
		similarities = append(similarities, s.Similarity)
	}

	consolidatedID, err := w.store.CreateConsolidatedMemory(ctx, synthesized, sourceIDs, similarities)
	if err != nil {
		if errors.Is(err, memory.ErrDuplicateConsolidation) {
			w.logger.Debug("Consolidation already exists, skipping", "memory_id", job.MemoryID)
			return
		}
		w.logger.Error("Failed to create consolidated memory",
			"memory_id", job.MemoryID, "error", err)
		return
	}

	w.logger.Info("Memory consolidation complete",
		"consolidated_id", consolidatedID, "source_count", len(sourceIDs))
	if w.onConsolidated != nil {
		w.onConsolidated(consolidatedID, sourceIDs)
	}
}
