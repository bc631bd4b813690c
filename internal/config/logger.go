package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ggoodman/mcp-starter-go/internal/logctx"
	"github.com/lmittmann/tint"
)

// NewLogger builds the process logger writing to w (stderr in the binaries).
// Records are enriched with request, session and tool data from context.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		lvl = slog.LevelInfo
	}

	var h slog.Handler
	switch c.LogFormat {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		h = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: "[15:04:05.000]",
		})
	}
	return slog.New(logctx.Wrap(h))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error: %q", s)
}
