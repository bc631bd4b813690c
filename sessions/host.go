package sessions

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session does not exist or has been
// evicted after idling past its TTL.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned by CreateSession when the id is already taken.
var ErrSessionExists = errors.New("session already exists")

// SessionHost persists session metadata with sliding idle expiry.
// Implementations must be safe for concurrent use.
type SessionHost interface {
	// CreateSession stores meta. The session expires once it has been idle for
	// meta.IdleTTL; a zero IdleTTL never expires.
	CreateSession(ctx context.Context, meta *Metadata) error
	// GetSession returns the stored metadata or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*Metadata, error)
	// TouchSession records activity, extending the idle deadline. It returns
	// ErrSessionNotFound for missing or expired sessions.
	TouchSession(ctx context.Context, sessionID string) error
	// DeleteSession removes the session. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, sessionID string) error
}

// Clock returns the current time. Hosts accept one to make expiry testable.
type Clock func() time.Time
