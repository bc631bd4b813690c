package memoryhost

import (
	"context"
	"sync"
	"time"

	"github.com/ggoodman/mcp-starter-go/sessions"
)

var _ sessions.SessionHost = (*Host)(nil)

// Host is an in-memory implementation of sessions.SessionHost.
type Host struct {
	mu       sync.RWMutex
	sessions map[string]*sessions.Metadata
	now      sessions.Clock
}

// Option configures a Host.
type Option func(*Host)

// WithClock overrides the time source used for expiry.
func WithClock(c sessions.Clock) Option {
	return func(h *Host) { h.now = c }
}

func New(opts ...Option) *Host {
	h := &Host{
		sessions: make(map[string]*sessions.Metadata),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) CreateSession(ctx context.Context, meta *sessions.Metadata) error {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.sessions[meta.SessionID]; ok && !existing.Expired(now) {
		return sessions.ErrSessionExists
	}
	h.pruneLocked(now)

	cp := meta.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.LastAccess = now
	h.sessions[cp.SessionID] = cp
	return nil
}

func (h *Host) GetSession(ctx context.Context, sessionID string) (*sessions.Metadata, error) {
	now := h.now()

	h.mu.RLock()
	meta, ok := h.sessions[sessionID]
	h.mu.RUnlock()

	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	if meta.Expired(now) {
		h.evict(sessionID, now)
		return nil, sessions.ErrSessionNotFound
	}
	return meta.Clone(), nil
}

func (h *Host) TouchSession(ctx context.Context, sessionID string) error {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	meta, ok := h.sessions[sessionID]
	if !ok {
		return sessions.ErrSessionNotFound
	}
	if meta.Expired(now) {
		delete(h.sessions, sessionID)
		return sessions.ErrSessionNotFound
	}
	meta.LastAccess = now
	return nil
}

func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, including expired ones that
// have not been pruned yet.
func (h *Host) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// evict removes sessionID if it is still expired under the write lock.
func (h *Host) evict(sessionID string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if meta, ok := h.sessions[sessionID]; ok && meta.Expired(now) {
		delete(h.sessions, sessionID)
	}
}

func (h *Host) pruneLocked(now time.Time) {
	for id, meta := range h.sessions {
		if meta.Expired(now) {
			delete(h.sessions, id)
		}
	}
}
