// Package service wires storage, pipelines, retrieval, and eventing into the
// operations the tool surface exposes.
package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/everlong-ai/memoryd/pkg/events"
	"github.com/everlong-ai/memoryd/pkg/memory"
	"github.com/everlong-ai/memoryd/pkg/memory/embedding"
	"github.com/everlong-ai/memoryd/pkg/memory/extraction"
	"github.com/everlong-ai/memoryd/pkg/memory/salience"
	"github.com/everlong-ai/memoryd/pkg/memory/search"
	"github.com/everlong-ai/memoryd/pkg/memory/storage"
)

// Timeout for fire-and-forget effects detached from the request context.
const asyncEffectTimeout = 5 * time.Second

// Service is the core facade behind the tool surface.
type Service struct {
	store     *storage.Storage
	embedder  *embedding.Pipeline
	extractor *extraction.Pipeline
	engine    *search.Engine
	publisher *events.Publisher
	logger    *log.Logger
}

// New assembles a Service. extractor and publisher may be nil when disabled.
func New(store *storage.Storage, embedder *embedding.Pipeline, extractor *extraction.Pipeline,
	engine *search.Engine, publisher *events.Publisher, logger *log.Logger) *Service {
	return &Service{
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		engine:    engine,
		publisher: publisher,
		logger:    logger,
	}
}

// Store persists a memory and schedules its derived artifacts. The write
// path fails closed: when the insert fails, no pipeline work is scheduled.
func (s *Service) Store(ctx context.Context, input memory.CreateMemory) (memory.Memory, error) {
	mem, err := s.store.StoreMemory(ctx, input)
	if err != nil {
		return memory.Memory{}, err
	}

	s.embedder.Enqueue(embedding.Job{
		MemoryID: mem.ID,
		Text:     embedding.BuildText(mem.Content, mem.Tags),
	})
	if s.extractor != nil {
		s.extractor.Enqueue(extraction.Job{MemoryID: mem.ID, Content: mem.Content})
	}

	s.publisher.Publish(events.SubjectMemoryStored, events.StoredEvent{
		MemoryID:  mem.ID,
		TypeHint:  mem.TypeHint,
		Source:    mem.Source,
		CreatedAt: mem.CreatedAt,
	})
	return mem, nil
}

// Get returns a memory and fires the access touch and salience bump in the
// background. The returned access_count is the pre-touch value.
func (s *Service) Get(ctx context.Context, id string) (memory.Memory, error) {
	mem, err := s.store.GetMemory(ctx, id)
	if err != nil {
		return memory.Memory{}, err
	}

	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), asyncEffectTimeout)
		defer cancel()
		if err := s.store.Touch(touchCtx, id); err != nil {
			s.logger.Warn("Access touch failed", "memory_id", id, "error", err)
		}
		if err := s.store.TouchSalience(touchCtx, id); err != nil {
			s.logger.Warn("Salience touch failed", "memory_id", id, "error", err)
		}
	}()

	return mem, nil
}

// Update applies a partial patch and re-enqueues pipelines for fields whose
// derived artifacts went stale.
func (s *Service) Update(ctx context.Context, id string, patch memory.UpdateMemory) (memory.Memory, error) {
	mem, err := s.store.UpdateMemory(ctx, id, patch)
	if err != nil {
		return memory.Memory{}, err
	}

	if patch.Content != nil || patch.Tags != nil {
		s.embedder.Enqueue(embedding.Job{
			MemoryID: mem.ID,
			Text:     embedding.BuildText(mem.Content, mem.Tags),
		})
	}
	if patch.Content != nil && s.extractor != nil {
		s.extractor.Enqueue(extraction.Job{MemoryID: mem.ID, Content: mem.Content})
	}
	return mem, nil
}

// Delete removes a memory.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteMemory(ctx, id); err != nil {
		return err
	}
	s.publisher.Publish(events.SubjectMemoryDeleted, events.DeletedEvent{MemoryID: id})
	return nil
}

// BulkDelete counts matches; with confirm it deletes them and returns the
// deleted count, otherwise only the would-delete count.
func (s *Service) BulkDelete(ctx context.Context, filter memory.ListFilter, confirm bool) (int64, error) {
	if !confirm {
		return s.store.CountMatching(ctx, filter)
	}
	return s.store.BulkDelete(ctx, filter)
}

// List pages memories with keyset pagination.
func (s *Service) List(ctx context.Context, filter memory.ListFilter) (memory.ListResult, error) {
	return s.store.ListMemories(ctx, filter)
}

// Search runs the hybrid retrieval flow.
func (s *Service) Search(ctx context.Context, req search.Request) ([]salience.Hit, error) {
	return s.engine.Search(ctx, req)
}

// Reinforce applies an explicit spaced-repetition update.
func (s *Service) Reinforce(ctx context.Context, id, rating string) (memory.SalienceState, error) {
	return s.store.ReinforceSalience(ctx, id, rating)
}

// OnConsolidated is the consolidation worker's commit hook: the synthesized
// memory needs its own embedding and extraction, and the event goes out.
func (s *Service) OnConsolidated(consolidatedID string, sourceIDs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncEffectTimeout)
	defer cancel()

	mem, err := s.store.GetMemory(ctx, consolidatedID)
	if err != nil {
		s.logger.Warn("Failed to fetch consolidated memory for pipeline enqueue",
			"memory_id", consolidatedID, "error", err)
		return
	}
	s.embedder.Enqueue(embedding.Job{
		MemoryID: mem.ID,
		Text:     embedding.BuildText(mem.Content, mem.Tags),
	})
	if s.extractor != nil {
		s.extractor.Enqueue(extraction.Job{MemoryID: mem.ID, Content: mem.Content})
	}
	s.publisher.Publish(events.SubjectMemoryConsolidated, events.ConsolidatedEvent{
		ConsolidatedID: consolidatedID,
		SourceIDs:      sourceIDs,
	})
}

// Backfill re-enqueues all pending or failed pipeline work. Run at startup.
func (s *Service) Backfill(ctx context.Context) {
	s.embedder.Backfill(ctx)
	if s.extractor != nil {
		s.extractor.Backfill(ctx)
	}
}
