// Package config loads the binaries' environment configuration and builds
// their loggers.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is populated from the environment.
type Config struct {
	// HTTPAddr is the listen address of the HTTP binary. ENV: MCP_HTTP_ADDR
	HTTPAddr string `env:"MCP_HTTP_ADDR,default=:3000"`
	// PublicPath is the MCP endpoint path. ENV: MCP_PUBLIC_PATH
	PublicPath string `env:"MCP_PUBLIC_PATH,default=/mcp"`
	// SessionIdleTTL is the sliding idle timeout of HTTP sessions. ENV: MCP_SESSION_IDLE_TTL
	SessionIdleTTL time.Duration `env:"MCP_SESSION_IDLE_TTL,default=30m"`
	// SweepInterval controls how often evicted sessions are dropped. ENV: MCP_SESSION_SWEEP_INTERVAL
	SweepInterval time.Duration `env:"MCP_SESSION_SWEEP_INTERVAL,default=1m"`

	// RedisAddr selects the redis session host when set. ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR"`
	// RedisKeyPrefix namespaces session keys. ENV: REDIS_KEY_PREFIX
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX,default=mcp:sessions:"`

	// LogLevel is one of debug, info, warn, error. ENV: LOG_LEVEL
	LogLevel string `env:"LOG_LEVEL,default=info"`
	// LogFormat is text or json. ENV: LOG_FORMAT
	LogFormat string `env:"LOG_FORMAT,default=text"`

	// MetricsEnabled mounts /metrics on the HTTP binary. ENV: METRICS_ENABLED
	MetricsEnabled bool `env:"METRICS_ENABLED,default=true"`
	// OTLPEndpoint enables trace export when set. ENV: OTEL_EXPORTER_OTLP_ENDPOINT
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load decodes Config from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.PublicPath == "" || c.PublicPath[0] != '/' {
		return fmt.Errorf("MCP_PUBLIC_PATH must start with '/': %q", c.PublicPath)
	}
	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("MCP_SESSION_IDLE_TTL must not be negative: %s", c.SessionIdleTTL)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("MCP_SESSION_SWEEP_INTERVAL must not be negative: %s", c.SweepInterval)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json: %q", c.LogFormat)
	}
	return nil
}
