package streaminghttp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ggoodman/mcp-starter-go/internal/engine"
	"github.com/go-chi/cors"
)

const (
	DefaultPath              = "/mcp"
	DefaultSessionIdleTTL    = 30 * time.Minute
	DefaultSweepInterval     = time.Minute
	DefaultHeartbeatInterval = 15 * time.Second
)

// Option configures the StreamingHTTPHandler.
type Option func(*newConfig)

type newConfig struct {
	logger        *slog.Logger
	path          string
	idleTTL       time.Duration
	sweepInterval time.Duration
	heartbeat     time.Duration
	engineOpts    []engine.EngineOption
	cors          cors.Options
}

func defaultConfig() *newConfig {
	return &newConfig{
		logger:        slog.Default(),
		path:          DefaultPath,
		idleTTL:       DefaultSessionIdleTTL,
		sweepInterval: DefaultSweepInterval,
		heartbeat:     DefaultHeartbeatInterval,
		cors:          permissiveCORS(),
	}
}

// permissiveCORS allows any origin, method and header and exposes the
// session headers to browser clients.
func permissiveCORS() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{mcpSessionIDHeader, mcpProtocolVersionHeader},
		MaxAge:         600,
	}
}

// WithLogger sets the logger used by the handler and its engine.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPath sets the MCP endpoint path. Defaults to /mcp.
func WithPath(path string) Option {
	return func(c *newConfig) {
		if path != "" {
			c.path = path
		}
	}
}

// WithSessionIdleTTL sets how long a session may go without traffic before
// it is evicted. Zero disables eviction.
func WithSessionIdleTTL(d time.Duration) Option {
	return func(c *newConfig) {
		if d >= 0 {
			c.idleTTL = d
		}
	}
}

// WithSweepInterval sets how often local state of evicted sessions is
// reclaimed. Zero disables the sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(c *newConfig) {
		if d >= 0 {
			c.sweepInterval = d
		}
	}
}

// WithHeartbeatInterval sets the interval of SSE comment frames on
// standalone GET streams. Zero disables heartbeats.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *newConfig) {
		if d >= 0 {
			c.heartbeat = d
		}
	}
}

// WithEngineOptions forwards options to the underlying engine.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(c *newConfig) { c.engineOpts = append(c.engineOpts, opts...) }
}

// WithCORSOptions replaces the permissive default CORS policy.
func WithCORSOptions(opts cors.Options) Option {
	return func(c *newConfig) { c.cors = opts }
}
