// Command memoryd runs the long-term memory service: an MCP stdio server
// backed by PostgreSQL with background embedding, extraction, and
// consolidation pipelines.
//
// Subcommands: serve (default), migrate, embed {backfill|stats|switch-model}.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/everlong-ai/memoryd/pkg/config"
	"github.com/everlong-ai/memoryd/pkg/db"
	"github.com/everlong-ai/memoryd/pkg/logging"
)

const version = "0.3.0"

type options struct {
	Serve   serveCmd   `command:"serve" description:"Run the MCP memory server (default)"`
	Migrate migrateCmd `command:"migrate" description:"Apply database migrations and print status"`
	Embed   embedCmd   `command:"embed" description:"Embedding pipeline maintenance"`
}

type app struct {
	cfg    config.Config
	logger *log.Logger
}

var theApp *app

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "memoryd: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memoryd: %v\n", err)
		os.Exit(1)
	}
	theApp = &app{cfg: cfg, logger: logger}

	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = true

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// No subcommand means serve.
	if parser.Active == nil {
		if err := opts.Serve.Execute(nil); err != nil {
			logger.Error("Server exited with error", "error", err)
			os.Exit(1)
		}
	}
}

type migrateCmd struct{}

func (c *migrateCmd) Execute(args []string) error {
	a := theApp
	if err := db.RunMigrations(a.cfg.DatabaseURL, a.logger); err != nil {
		return err
	}
	return db.MigrationStatus(a.cfg.DatabaseURL)
}

type embedCmd struct {
	Backfill    embedBackfillCmd    `command:"backfill" description:"Re-enqueue all pending/failed embeddings and wait for completion"`
	Stats       embedStatsCmd       `command:"stats" description:"Print embedding pipeline statistics"`
	SwitchModel embedSwitchModelCmd `command:"switch-model" description:"Mark all embeddings stale and re-embed with a new model"`
}

type embedStatsCmd struct{}

func (c *embedStatsCmd) Execute(args []string) error {
	a := theApp
	ctx := context.Background()

	rt, err := newRuntime(ctx, a, runtimeOptions{withPipelines: false})
	if err != nil {
		return err
	}
	defer rt.Close()

	stats, err := rt.store.EmbeddingStats(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Embedding status:")
	for status, count := range stats.ByStatus {
		fmt.Printf("  %-10s %d\n", status, count)
	}
	fmt.Println("Embeddings by model:")
	for model, count := range stats.ByModel {
		fmt.Printf("  %-50s %d\n", model, count)
	}
	return nil
}

type embedBackfillCmd struct{}

func (c *embedBackfillCmd) Execute(args []string) error {
	a := theApp
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newRuntime(ctx, a, runtimeOptions{withPipelines: true})
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.start(ctx)

	queued := rt.embedPipeline.Backfill(ctx)
	a.logger.Info("Backfill queued", "count", queued)
	if err := rt.embedPipeline.Flush(ctx); err != nil {
		return errors.Wrap(err, "waiting for backfill")
	}
	a.logger.Info("Backfill complete")
	return nil
}

type embedSwitchModelCmd struct {
	Model  string `long:"model" required:"true" description:"New embedding model name"`
	DryRun bool   `long:"dry-run" description:"Report affected row counts without changing anything"`
}

func (c *embedSwitchModelCmd) Execute(args []string) error {
	a := theApp
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.cfg.Embedding.OllamaModel = c.Model
	a.cfg.Embedding.Model = c.Model

	rt, err := newRuntime(ctx, a, runtimeOptions{withPipelines: !c.DryRun})
	if err != nil {
		return err
	}
	defer rt.Close()

	if c.DryRun {
		stats, err := rt.store.EmbeddingStats(ctx)
		if err != nil {
			return err
		}
		var current int64
		for key, count := range stats.ByModel {
			fmt.Printf("  %-50s %d\n", key, count)
			if strings.HasSuffix(key, "current=true") {
				current += count
			}
		}
		fmt.Printf("switch-model --model %s would mark %d embedding rows stale\n", c.Model, current)
		return nil
	}

	rt.start(ctx)

	stale, err := rt.store.MarkAllEmbeddingsStale(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("Marked embeddings stale", "count", stale, "new_model", c.Model)

	queued := rt.embedPipeline.Backfill(ctx)
	a.logger.Info("Re-embedding queued", "count", queued)
	if err := rt.embedPipeline.Flush(ctx); err != nil {
		return errors.Wrap(err, "waiting for re-embedding")
	}
	a.logger.Info("Model switch complete", "model", c.Model)
	return nil
}
