package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/everlong-ai/memoryd/pkg/ai"
	"github.com/everlong-ai/memoryd/pkg/config"
	"github.com/everlong-ai/memoryd/pkg/db"
	"github.com/everlong-ai/memoryd/pkg/events"
	"github.com/everlong-ai/memoryd/pkg/memory/consolidate"
	"github.com/everlong-ai/memoryd/pkg/memory/embedding"
	"github.com/everlong-ai/memoryd/pkg/memory/extraction"
	"github.com/everlong-ai/memoryd/pkg/memory/queryintel"
	"github.com/everlong-ai/memoryd/pkg/memory/salience"
	"github.com/everlong-ai/memoryd/pkg/memory/search"
	"github.com/everlong-ai/memoryd/pkg/memory/storage"
	"github.com/everlong-ai/memoryd/pkg/service"
)

// runtime holds the assembled object graph. Close releases connections in
// reverse order of construction.
type runtime struct {
	pool            *pgxpool.Pool
	store           *storage.Storage
	embedPipeline   *embedding.Pipeline
	extractPipeline *extraction.Pipeline
	consolidator    *consolidate.Worker
	engine          *search.Engine
	svc             *service.Service
	natsServer      *natsserver.Server
	natsConn        *nats.Conn
}

type runtimeOptions struct {
	// withPipelines wires the background workers; maintenance commands that
	// only read stats leave them out.
	withPipelines bool
}

func newRuntime(ctx context.Context, a *app, opts runtimeOptions) (*runtime, error) {
	cfg := a.cfg
	logger := a.logger

	if err := db.RunMigrations(cfg.DatabaseURL, logger); err != nil {
		return nil, errors.Wrap(err, "running migrations")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to database")
	}
	if err := db.ValidatePGVector(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	store, err := storage.New(ctx, pool, storage.BM25Backend(cfg.Search.BM25Backend),
		logger.With("component", "storage"))
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "initializing storage")
	}

	rt := &runtime{pool: pool, store: store}

	embedProvider, err := newEmbeddingProvider(cfg.Embedding)
	if err != nil {
		rt.Close()
		return nil, errors.Wrap(err, "initializing embedding provider")
	}

	// Events are optional infrastructure; failure to start them degrades to
	// no-op publication, never a startup failure.
	var publisher *events.Publisher
	if cfg.Events.Enabled {
		if cfg.Events.Embedded {
			srv, err := events.StartEmbeddedServer(logger)
			if err != nil {
				logger.Warn("Embedded NATS server failed to start, events disabled", "error", err)
			} else {
				rt.natsServer = srv
			}
		}
		if !cfg.Events.Embedded || rt.natsServer != nil {
			nc, err := events.Connect(cfg.Events.URL, logger)
			if err != nil {
				logger.Warn("NATS connection failed, events disabled", "error", err)
			} else {
				rt.natsConn = nc
				publisher = events.NewPublisher(nc, logger.With("component", "events"))
			}
		}
	}

	if opts.withPipelines {
		// The consolidation hook needs the service, which needs the
		// pipelines; the indirection breaks the construction cycle.
		var svcRef *service.Service
		onConsolidated := func(id string, sourceIDs []string) {
			if svcRef != nil {
				svcRef.OnConsolidated(id, sourceIDs)
			}
		}

		if cfg.Consolidation.Enabled {
			synth, err := newSynthesizer(cfg.Consolidation)
			if err != nil {
				rt.Close()
				return nil, errors.Wrap(err, "initializing consolidation synthesizer")
			}
			rt.consolidator = consolidate.NewWorker(store, synth, consolidate.Config{
				Enabled:               true,
				SimilarityThreshold:   cfg.Consolidation.SimilarityThreshold,
				MaxConsolidationGroup: cfg.Consolidation.MaxConsolidationGroup,
			}, cfg.Consolidation.QueueCapacity, logger.With("component", "consolidation"), onConsolidated)
		}

		rt.embedPipeline = embedding.NewPipeline(embedProvider, store,
			cfg.Embedding.QueueCapacity, logger.With("component", "embedding"), rt.consolidator)

		if cfg.Extraction.Enabled {
			extractProvider, err := newExtractionProvider(cfg.Extraction)
			if err != nil {
				rt.Close()
				return nil, errors.Wrap(err, "initializing extraction provider")
			}
			rt.extractPipeline = extraction.NewPipeline(extractProvider, store,
				cfg.Extraction.QueueCapacity, cfg.Extraction.MaxContentChars,
				logger.With("component", "extraction"))
		}

		scorer := salience.NewScorer(salience.Config{
			RecencyWeight:       cfg.Salience.RecencyWeight,
			AccessWeight:        cfg.Salience.AccessWeight,
			SemanticWeight:      cfg.Salience.SemanticWeight,
			ReinforcementWeight: cfg.Salience.ReinforcementWeight,
			RecencyLambda:       cfg.Salience.RecencyLambda,
			DebugScoring:        cfg.Salience.DebugScoring,
		})

		enhancer, err := newEnhancer(cfg.QueryIntelligence, a)
		if err != nil {
			rt.Close()
			return nil, errors.Wrap(err, "initializing query intelligence")
		}

		rt.engine = search.NewEngine(store, embedProvider, scorer, enhancer,
			logger.With("component", "search"))

		rt.svc = service.New(store, rt.embedPipeline, rt.extractPipeline, rt.engine,
			publisher, logger.With("component", "service"))
		svcRef = rt.svc
	}

	return rt, nil
}

// start launches the background workers. Returns immediately.
func (rt *runtime) start(ctx context.Context) {
	if rt.embedPipeline != nil {
		go rt.embedPipeline.Run(ctx)
	}
	if rt.extractPipeline != nil {
		go rt.extractPipeline.Run(ctx)
	}
	if rt.consolidator != nil {
		go rt.consolidator.Run(ctx)
	}
}

// Close tears down connections.
func (rt *runtime) Close() {
	if rt.natsConn != nil {
		rt.natsConn.Close()
	}
	if rt.natsServer != nil {
		rt.natsServer.Shutdown()
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}

func newEmbeddingProvider(cfg config.EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case config.ProviderLocal:
		return embedding.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.Dimension)
	case config.ProviderRemote:
		svc := ai.NewOpenAIService(cfg.APIKey, cfg.BaseURL)
		return embedding.NewOpenAIProvider(svc, cfg.Model, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func newExtractionProvider(cfg config.ExtractionConfig) (extraction.Provider, error) {
	switch cfg.Provider {
	case config.ProviderLocal:
		return extraction.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel)
	case config.ProviderRemote:
		return extraction.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown extraction provider %q", cfg.Provider)
	}
}

func newSynthesizer(cfg config.ConsolidationConfig) (consolidate.Synthesizer, error) {
	switch cfg.Provider {
	case config.ProviderLocal:
		return consolidate.NewOllamaSynthesizer(cfg.OllamaBaseURL, cfg.OllamaModel)
	case config.ProviderRemote:
		svc := ai.NewOpenAIService(cfg.APIKey, cfg.BaseURL)
		return consolidate.NewOpenAISynthesizer(svc, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown consolidation provider %q", cfg.Provider)
	}
}

func newEnhancer(cfg config.QIConfig, a *app) (*queryintel.Enhancer, error) {
	qiCfg := queryintel.Config{
		ExpansionEnabled:   cfg.ExpansionEnabled,
		RerankingEnabled:   cfg.RerankingEnabled,
		LatencyBudgetMS:    cfg.LatencyBudgetMS,
		RerankContentChars: cfg.RerankContentChars,
	}

	var provider queryintel.Provider
	if cfg.ExpansionEnabled || cfg.RerankingEnabled {
		switch cfg.Provider {
		case config.ProviderLocal:
			p, err := queryintel.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel)
			if err != nil {
				return nil, err
			}
			provider = p
		case config.ProviderRemote:
			provider = queryintel.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
		default:
			return nil, fmt.Errorf("unknown query intelligence provider %q", cfg.Provider)
		}
	}

	return queryintel.NewEnhancer(qiCfg, provider, a.logger.With("component", "queryintel")), nil
}
