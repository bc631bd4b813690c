package redishost

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ggoodman/mcp-starter-go/sessions/sessionhosttest"
	"github.com/redis/go-redis/v9"
)

func newTestHost(t *testing.T) (*Host, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	h := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")
	t.Cleanup(func() { _ = h.Close() })
	return h, mr
}

func TestRedisSessionHost(t *testing.T) {
	sessionhosttest.RunSessionHostTests(t, func(t *testing.T) sessionhosttest.Harness {
		h, mr := newTestHost(t)
		return sessionhosttest.Harness{
			Host:    h,
			Advance: mr.FastForward,
		}
	})
}

func TestKeysArePrefixedAndExpire(t *testing.T) {
	h, mr := newTestHost(t)
	ctx := t.Context()

	if err := h.CreateSession(ctx, sessionhosttest.NewMetadata("abc", 90*time.Second)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("test:meta:abc") {
		t.Fatalf("expected key test:meta:abc, have %v", mr.Keys())
	}
	if ttl := mr.TTL("test:meta:abc"); ttl != 90*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	raw, err := mr.Get("test:meta:abc")
	if err != nil {
		t.Fatalf("get raw: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("stored metadata is not JSON: %v", err)
	}
	if decoded["session_id"] != "abc" {
		t.Fatalf("unexpected stored metadata: %s", raw)
	}
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := New(Config{RedisAddr: addr}); err == nil {
		t.Fatalf("expected ping failure against closed server")
	}
}
