// Command starter-stdio serves the starter catalog over stdin/stdout.
// stdout carries protocol messages only; logs go to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/mcp-starter-go/examples/starter"
	"github.com/ggoodman/mcp-starter-go/internal/config"
	"github.com/ggoodman/mcp-starter-go/internal/engine"
	"github.com/ggoodman/mcp-starter-go/stdio"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "starter-stdio:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := cfg.TracerProvider(ctx, "starter-stdio")
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	srv, err := starter.New()
	if err != nil {
		return err
	}

	h := stdio.NewHandler(srv,
		stdio.WithLogger(log),
		stdio.WithEngineOptions(engine.WithTracerProvider(tp)),
	)
	log.InfoContext(ctx, "starter.stdio.start", "server", starter.ServerName, "version", starter.ServerVersion)
	if err := h.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
