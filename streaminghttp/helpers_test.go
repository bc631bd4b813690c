package streaminghttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-starter-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/mcpservice"
	"github.com/ggoodman/mcp-starter-go/sessions"
	"github.com/ggoodman/mcp-starter-go/sessions/memoryhost"
	"github.com/ggoodman/mcp-starter-go/streaminghttp"
	sse "github.com/tmaxmax/go-sse"
)

type helloArgs struct {
	Name string `json:"name" jsonschema:"description=Who to greet"`
}

type stepsArgs struct {
	Steps int `json:"steps" jsonschema:"minimum=1,maximum=10"`
}

// testCatalog is a small server exercising every capability.
func testCatalog(t *testing.T) mcpservice.ServerCapabilities {
	t.Helper()

	tools, err := mcpservice.NewToolsContainer(
		mcpservice.NewTool("hello", func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[helloArgs]) error {
			return w.AppendText("Hello, " + r.Args().Name + "!")
		}, mcpservice.WithToolDescription("Say hello")),
		mcpservice.NewTool("steps", func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[stepsArgs]) error {
			n := r.Args().Steps
			for i := 1; i <= n; i++ {
				if err := w.SendProgress(float64(i), float64(n), fmt.Sprintf("step %d of %d", i, n)); err != nil {
					return err
				}
			}
			return w.AppendText(fmt.Sprintf("completed %d steps", n))
		}),
	)
	if err != nil {
		t.Fatalf("tools: %v", err)
	}

	resources := mcpservice.NewResourcesContainer()
	if err := resources.AddTemplate(mcpservice.StaticResourceTemplate{
		Descriptor: mcp.ResourceTemplate{URITemplate: "item://{id}", Name: "item", MimeType: "application/json"},
		Handler: func(ctx context.Context, s sessions.Session, uri string, vars map[string]string) ([]mcp.ResourceContents, error) {
			b, _ := json.Marshal(map[string]string{"id": vars["id"]})
			return []mcp.ResourceContents{{URI: uri, MimeType: "application/json", Text: string(b)}}, nil
		},
	}); err != nil {
		t.Fatalf("resources: %v", err)
	}

	prompts, err := mcpservice.NewPromptsContainer(mcpservice.StaticPrompt{
		Descriptor: mcp.Prompt{Name: "greet", Arguments: []mcp.PromptArgument{{Name: "name", Required: true}, {Name: "style"}}},
		Handler: func(ctx context.Context, s sessions.Session, req *mcpservice.PromptRequest) (*mcp.GetPromptResult, error) {
			text := "Hey " + req.Arg("name", "") + "!"
			if req.Arg("style", "casual") == "formal" {
				text = "Good day, " + req.Arg("name", "") + "."
			}
			return &mcp.GetPromptResult{Messages: []mcp.PromptMessage{mcpservice.UserMessage(text)}}, nil
		},
	})
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}

	return mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "test-server", Version: "1.0.0"}),
		mcpservice.WithToolsContainer(tools),
		mcpservice.WithResourcesContainer(resources),
		mcpservice.WithPromptsContainer(prompts),
	)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)}
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

type serverConfig struct {
	host sessions.SessionHost
	srv  mcpservice.ServerCapabilities
	opts []streaminghttp.Option
}

type serverOption func(*serverConfig)

func withSessionHost(h sessions.SessionHost) serverOption {
	return func(c *serverConfig) { c.host = h }
}

func withHandlerOptions(opts ...streaminghttp.Option) serverOption {
	return func(c *serverConfig) { c.opts = append(c.opts, opts...) }
}

// mustServer starts an httptest server in front of a StreamingHTTPHandler.
func mustServer(t *testing.T, options ...serverOption) *httptest.Server {
	t.Helper()
	cfg := &serverConfig{host: memoryhost.New(), srv: testCatalog(t)}
	for _, opt := range options {
		opt(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h, err := streaminghttp.New(ctx, cfg.host, cfg.srv,
		append([]streaminghttp.Option{streaminghttp.WithLogger(slog.New(testLogHandler(t)))}, cfg.opts...)...)
	if err != nil {
		cancel()
		t.Fatalf("streaminghttp.New: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		cancel()
	})
	return srv
}

func testLogHandler(t *testing.T) slog.Handler {
	return slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug})
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func rpcRequest(t *testing.T, id any, method mcp.Method, params any) *jsonrpc.Request {
	t.Helper()
	req, err := jsonrpc.NewRequest(jsonrpc.NewRequestID(id), string(method), params)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func initializeRequest(t *testing.T) *jsonrpc.Request {
	return rpcRequest(t, 1, mcp.InitializeMethod, mcp.InitializeRequest{
		ProtocolVersion: "2025-06-18",
		ClientInfo:      mcp.ImplementationInfo{Name: "test-client", Version: "1.0.0"},
	})
}

func postRaw(t *testing.T, srv *httptest.Server, sessionID string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func post(t *testing.T, srv *httptest.Server, sessionID string, msg *jsonrpc.Request) *http.Response {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return postRaw(t, srv, sessionID, b)
}

// mustInitialize opens a session and returns its id.
func mustInitialize(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := post(t, srv, "", initializeRequest(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize status %d", resp.StatusCode)
	}
	res := decodeJSONResponse(t, resp)
	if res.Error != nil {
		t.Fatalf("initialize error: %+v", res.Error)
	}
	id := resp.Header.Get("Mcp-Session-Id")
	if id == "" {
		t.Fatalf("missing Mcp-Session-Id header")
	}
	note, _ := jsonrpc.NewNotification(string(mcp.InitializedNotificationMethod), nil)
	if resp := post(t, srv, id, note); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("initialized notification status %d", resp.StatusCode)
	}
	return id
}

func decodeJSONResponse(t *testing.T, resp *http.Response) *jsonrpc.Response {
	t.Helper()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected JSON body, got %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	msg, err := jsonrpc.Decode(body)
	if err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if msg.Type() != jsonrpc.TypeResponse {
		t.Fatalf("expected response, got %s", body)
	}
	return msg.AsResponse()
}

// readStream collects every JSON-RPC message on an SSE response body.
func readStream(t *testing.T, resp *http.Response) []*jsonrpc.AnyMessage {
	t.Helper()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event stream, got %q", ct)
	}
	var msgs []*jsonrpc.AnyMessage
	for ev, err := range sse.Read(resp.Body, nil) {
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if ev.Type != "message" {
			t.Fatalf("unexpected event type %q", ev.Type)
		}
		msg, err := jsonrpc.Decode([]byte(ev.Data))
		if err != nil {
			t.Fatalf("decode event %q: %v", ev.Data, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// call posts a request on a session and returns its terminal response.
func call(t *testing.T, srv *httptest.Server, sessionID string, req *jsonrpc.Request) *jsonrpc.Response {
	t.Helper()
	resp := post(t, srv, sessionID, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s: status %d", req.Method, resp.StatusCode)
	}
	msgs := readStream(t, resp)
	if len(msgs) == 0 || msgs[len(msgs)-1].Type() != jsonrpc.TypeResponse {
		t.Fatalf("%s: stream did not end with a response", req.Method)
	}
	return msgs[len(msgs)-1].AsResponse()
}
