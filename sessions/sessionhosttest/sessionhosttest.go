// Package sessionhosttest is a conformance suite shared by every
// sessions.SessionHost implementation.
package sessionhosttest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-starter-go/sessions"
)

// Harness is a host under test plus a way to move its clock forward.
type Harness struct {
	Host    sessions.SessionHost
	Advance func(time.Duration)
}

// HostFactory creates a fresh Harness for each subtest.
type HostFactory func(t *testing.T) Harness

// NewMetadata builds metadata for a test session.
func NewMetadata(id string, ttl time.Duration) *sessions.Metadata {
	return &sessions.Metadata{
		MetaVersion:     1,
		SessionID:       id,
		ProtocolVersion: "2025-06-18",
		Client:          sessions.MetadataClientInfo{Name: "test-client", Version: "1.0.0"},
		Capabilities:    sessions.CapabilitySet{Roots: true},
		IdleTTL:         ttl,
	}
}

// RunSessionHostTests runs the complete SessionHost test suite against the provided factory.
func RunSessionHostTests(t *testing.T, factory HostFactory) {
	t.Run("Metadata_CreateAndGet", func(t *testing.T) { testCreateAndGet(t, factory) })
	t.Run("Metadata_GetMissing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("Metadata_CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, factory) })
	t.Run("Metadata_DeleteIsIdempotent", func(t *testing.T) { testDeleteIdempotent(t, factory) })
	t.Run("Expiry_IdleSessionIsEvicted", func(t *testing.T) { testIdleEviction(t, factory) })
	t.Run("Expiry_TouchExtendsDeadline", func(t *testing.T) { testTouchExtends(t, factory) })
	t.Run("Expiry_TouchMissing", func(t *testing.T) { testTouchMissing(t, factory) })
	t.Run("Expiry_ZeroTTLNeverExpires", func(t *testing.T) { testZeroTTL(t, factory) })
	t.Run("Concurrency_ParallelTouches", func(t *testing.T) { testParallelTouches(t, factory) })
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testCreateAndGet(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := ctxT(t)

	if err := h.Host.CreateSession(ctx, NewMetadata("sess-1", time.Minute)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	got, err := h.Host.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SessionID != "sess-1" {
		t.Fatalf("unexpected session id %q", got.SessionID)
	}
	if got.ProtocolVersion != "2025-06-18" {
		t.Fatalf("unexpected protocol version %q", got.ProtocolVersion)
	}
	if got.Client.Name != "test-client" || !got.Capabilities.Roots {
		t.Fatalf("metadata not preserved: %+v", got)
	}
	if got.IdleTTL != time.Minute {
		t.Fatalf("unexpected ttl %v", got.IdleTTL)
	}
}

func testGetMissing(t *testing.T, factory HostFactory) {
	h := factory(t)
	_, err := h.Host.GetSession(ctxT(t), "nope")
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testCreateDuplicate(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := ctxT(t)
	if err := h.Host.CreateSession(ctx, NewMetadata("dup", time.Minute)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	err := h.Host.CreateSession(ctx, NewMetadata("dup", time.Minute))
	if !errors.Is(err, sessions.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func testDeleteIdempotent(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := ctxT(t)
	if err := h.Host.CreateSession(ctx, NewMetadata("del", time.Minute)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := h.Host.DeleteSession(ctx, "del"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := h.Host.DeleteSession(ctx, "del"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	if _, err := h.Host.GetSession(ctx, "del"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func testIdleEviction(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := ctxT(t)
	if err := h.Host.CreateSession(ctx, NewMetadata("idle", time.Minute)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	h.Advance(2 * time.Minute)
	if _, err := h.Host.GetSession(ctx, "idle"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected idle session to be evicted, got %v", err)
	}
	if err := h.Host.TouchSession(ctx, "idle"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected touch on evicted session to fail, got %v", err)
	}
}

func testTouchExtends(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := ctxT(t)
	if err := h.Host.CreateSession(ctx, NewMetadata("touch", time.Minute)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		h.Advance(40 * time.Second)
		if err := h.Host.TouchSession(ctx, "touch"); err != nil {
			t.Fatalf("touch %d failed: %v", i, err)
		}
	}
	if _, err := h.Host.GetSession(ctx, "touch"); err != nil {
		t.Fatalf("expected session to stay alive while touched, got %v", err)
	}
	h.Advance(2 * time.Minute)
	if _, err := h.Host.GetSession(ctx, "touch"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected eviction once touches stop, got %v", err)
	}
}

func testTouchMissing(t *testing.T, factory HostFactory) {
	h := factory(t)
	if err := h.Host.TouchSession(ctxT(t), "ghost"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testZeroTTL(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := ctxT(t)
	if err := h.Host.CreateSession(ctx, NewMetadata("forever", 0)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	h.Advance(24 * time.Hour)
	if _, err := h.Host.GetSession(ctx, "forever"); err != nil {
		t.Fatalf("expected session without ttl to persist, got %v", err)
	}
}

func testParallelTouches(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := ctxT(t)
	if err := h.Host.CreateSession(ctx, NewMetadata("par", time.Minute)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Host.TouchSession(ctx, "par"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("parallel touch failed: %v", err)
	}
}
