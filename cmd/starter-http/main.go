// Command starter-http serves the starter catalog over streamable HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ggoodman/mcp-starter-go/examples/starter"
	"github.com/ggoodman/mcp-starter-go/internal/config"
	"github.com/ggoodman/mcp-starter-go/internal/engine"
	"github.com/ggoodman/mcp-starter-go/sessions"
	"github.com/ggoodman/mcp-starter-go/sessions/memoryhost"
	"github.com/ggoodman/mcp-starter-go/sessions/redishost"
	"github.com/ggoodman/mcp-starter-go/streaminghttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "starter-http:", err)
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

	tp, shutdownTracing, err := cfg.TracerProvider(ctx, "starter-http")
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	host, closeHost, err := sessionHost(cfg, log)
	if err != nil {
		return err
	}
	defer closeHost()

	srv, err := starter.New()
	if err != nil {
		return err
	}

	engineOpts := []engine.EngineOption{engine.WithTracerProvider(tp)}
	if cfg.MetricsEnabled {
		engineOpts = append(engineOpts, engine.WithMetricsRegisterer(prometheus.DefaultRegisterer))
	}
	mcpHandler, err := streaminghttp.New(ctx, host, srv,
		streaminghttp.WithLogger(log),
		streaminghttp.WithPath(cfg.PublicPath),
		streaminghttp.WithSessionIdleTTL(cfg.SessionIdleTTL),
		streaminghttp.WithSweepInterval(cfg.SweepInterval),
		streaminghttp.WithEngineOptions(engineOpts...),
	)
	if err != nil {
		return fmt.Errorf("create mcp handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Mount("/", mcpHandler)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "http.listen.start", slog.String("addr", cfg.HTTPAddr), slog.String("path", cfg.PublicPath))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.InfoContext(sctx, "http.shutdown.start")
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}

// sessionHost selects redis when REDIS_ADDR is set and an in-process host
// otherwise.
func sessionHost(cfg *config.Config, log *slog.Logger) (sessions.SessionHost, func(), error) {
	if cfg.RedisAddr == "" {
		log.Info("session.host.memory")
		return memoryhost.New(), func() {}, nil
	}
	h, err := redishost.New(redishost.Config{RedisAddr: cfg.RedisAddr, KeyPrefix: cfg.RedisKeyPrefix})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("session.host.redis", slog.String("addr", cfg.RedisAddr))
	return h, func() { _ = h.Close() }, nil
}
