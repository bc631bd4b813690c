package memoryhost

import (
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-starter-go/sessions/sessionhosttest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemorySessionHost(t *testing.T) {
	sessionhosttest.RunSessionHostTests(t, func(t *testing.T) sessionhosttest.Harness {
		clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		return sessionhosttest.Harness{
			Host:    New(WithClock(clk.Now)),
			Advance: clk.Advance,
		}
	})
}

func TestCreatePrunesExpired(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := New(WithClock(clk.Now))
	ctx := t.Context()

	for _, id := range []string{"a", "b", "c"} {
		if err := h.CreateSession(ctx, sessionhosttest.NewMetadata(id, time.Minute)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	clk.Advance(2 * time.Minute)
	if err := h.CreateSession(ctx, sessionhosttest.NewMetadata("d", time.Minute)); err != nil {
		t.Fatalf("create d: %v", err)
	}
	if got := h.Len(); got != 1 {
		t.Fatalf("expected expired sessions to be pruned, have %d", got)
	}
}
