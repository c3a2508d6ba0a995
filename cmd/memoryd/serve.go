package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/everlong-ai/memoryd/pkg/mcpserver"
)

type serveCmd struct{}

func (c *serveCmd) Execute(args []string) error {
	a := theApp
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newRuntime(ctx, a, runtimeOptions{withPipelines: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.start(ctx)

	// Recover derived artifacts dropped by earlier backpressure or crashes.
	rt.svc.Backfill(ctx)

	server, err := mcpserver.New(rt.svc, a.logger.With("component", "mcp"), version)
	if err != nil {
		return errors.Wrap(err, "building MCP server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		a.logger.Info("Shutting down", "signal", sig)
		cancel()
		os.Exit(0)
	}()

	a.logger.Info("memoryd serving", "version", version)
	return server.Serve()
}
