package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)}).With(slog.String("component", "test"))

	ctx := WithSessionData(context.Background(), &SessionData{SessionID: "s1", ProtocolVersion: "2025-06-18", State: "initialized"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "tools/call", ID: "7", Type: "request"})
	ctx = WithToolCallData(ctx, &ToolCallData{ToolName: "hello"})
	log.InfoContext(ctx, "engine.handle_request.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if rec["component"] != "test" {
		t.Fatalf("derived attrs lost: %v", rec)
	}
	sess, _ := rec["sess"].(map[string]any)
	if sess["id"] != "s1" || sess["state"] != "initialized" {
		t.Fatalf("unexpected sess group: %v", rec["sess"])
	}
	rpc, _ := rec["rpc"].(map[string]any)
	if rpc["method"] != "tools/call" || rpc["id"] != "7" {
		t.Fatalf("unexpected rpc group: %v", rec["rpc"])
	}
	tool, _ := rec["tool"].(map[string]any)
	if tool["name"] != "hello" {
		t.Fatalf("unexpected tool group: %v", rec["tool"])
	}
	if _, ok := rec["req"]; ok {
		t.Fatalf("req group must be absent without request data")
	}
}

func TestWrapIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Wrap(Wrap(slog.NewTextHandler(&buf, nil))))

	ctx := WithSessionData(context.Background(), &SessionData{SessionID: "s1"})
	log.InfoContext(ctx, "once")

	if n := bytes.Count(buf.Bytes(), []byte("sess.id=s1")); n != 1 {
		t.Fatalf("expected the sess group once, got %d: %s", n, buf.String())
	}
}
