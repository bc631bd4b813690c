package redishost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/mcp-starter-go/sessions"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

var _ sessions.SessionHost = (*Host)(nil)

// Config for Redis-backed SessionHost. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: REDIS_KEY_PREFIX
	KeyPrefix string `env:"REDIS_KEY_PREFIX,default=mcp:sessions:"`
}

type Host struct {
	client    *redis.Client
	keyPrefix string
	now       sessions.Clock
}

// Option configures a Host.
type Option func(*Host)

// WithClock overrides the time source used for metadata timestamps. Expiry
// itself is enforced by Redis key TTLs.
func WithClock(c sessions.Clock) Option {
	return func(h *Host) { h.now = c }
}

func New(cfg Config, opts ...Option) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewFromClient(cl, cfg.KeyPrefix, opts...), nil
}

// NewFromClient wraps an existing client. The host takes ownership and
// closes it on Close.
func NewFromClient(cl *redis.Client, keyPrefix string, opts ...Option) *Host {
	if keyPrefix == "" {
		keyPrefix = "mcp:sessions:"
	}
	h := &Host{client: cl, keyPrefix: keyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv() (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis config: %w", err)
	}
	return New(cfg)
}

// Close closes the Redis client.
func (h *Host) Close() error { return h.client.Close() }

func (h *Host) metaKey(sessionID string) string { return h.keyPrefix + "meta:" + sessionID }

func (h *Host) CreateSession(ctx context.Context, meta *sessions.Metadata) error {
	now := h.now().UTC()
	cp := meta.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.LastAccess = now

	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	ok, err := h.client.SetNX(ctx, h.metaKey(cp.SessionID), b, cp.IdleTTL).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return sessions.ErrSessionExists
	}
	return nil
}

func (h *Host) GetSession(ctx context.Context, sessionID string) (*sessions.Metadata, error) {
	b, err := h.client.Get(ctx, h.metaKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessions.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var meta sessions.Metadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal session metadata: %w", err)
	}
	return &meta, nil
}

// TouchSession rewrites LastAccess and resets the key TTL. SET XX keeps a
// concurrently deleted session from being resurrected.
func (h *Host) TouchSession(ctx context.Context, sessionID string) error {
	meta, err := h.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	meta.LastAccess = h.now().UTC()
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	ok, err := h.client.SetXX(ctx, h.metaKey(sessionID), b, meta.IdleTTL).Result()
	if err != nil {
		return fmt.Errorf("redis setxx: %w", err)
	}
	if !ok {
		return sessions.ErrSessionNotFound
	}
	return nil
}

func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	if err := h.client.Del(ctx, h.metaKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
