package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-starter-go/internal/engine"
	"github.com/ggoodman/mcp-starter-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-starter-go/internal/logctx"
	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/mcperr"
	"github.com/ggoodman/mcp-starter-go/mcpservice"
	"github.com/ggoodman/mcp-starter-go/sessions"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	sse "github.com/tmaxmax/go-sse"
)

var (
	_ http.Handler = (*StreamingHTTPHandler)(nil)
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
	postMediaTypes       = []contenttype.MediaType{eventStreamMediaType, jsonMediaType}
	getMediaTypes        = []contenttype.MediaType{eventStreamMediaType}
)

const (
	// Use canonical header names for clarity; Go matches headers case-insensitively.
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"

	maxBodyBytes = 4 << 20

	sessionNotFoundMessage = "session not found; initialize a new session"
)

var messageEventType = sse.Type("message")

// writeJSONError emits a minimal JSON body for HTTP-layer rejections before a JSON-RPC
// message exchange is possible. This is transport-level, not JSON-RPC framing.
// Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// writeRPCError answers with a JSON-RPC error response rendered from err.
func writeRPCError(w http.ResponseWriter, status int, id *jsonrpc.RequestID, err error) {
	wire := mcperr.ToWire(err)
	writeJSON(w, status, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCode(wire.Code), wire.Message, wire.Data))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StreamingHTTPHandler implements the streamable HTTP transport of the Model
// Context Protocol, plus a /health probe.
type StreamingHTTPHandler struct {
	handler   http.Handler
	log       *slog.Logger
	eng       *engine.Engine
	path      string
	heartbeat time.Duration
}

// New constructs a StreamingHTTPHandler. Sessions are recorded in host with
// the configured sliding idle TTL. A background sweeper reclaims local state
// of evicted sessions until ctx is done.
func New(ctx context.Context, host sessions.SessionHost, server mcpservice.ServerCapabilities, opts ...Option) (*StreamingHTTPHandler, error) {
	if server == nil {
		return nil, fmt.Errorf("server is required")
	}
	if host == nil {
		return nil, fmt.Errorf("SessionHost is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.path[0] != '/' {
		return nil, fmt.Errorf("path must start with '/', got %q", cfg.path)
	}

	log := slog.New(logctx.Wrap(cfg.logger.Handler()))

	engineOpts := append([]engine.EngineOption{
		engine.WithLogger(log),
		engine.WithSessionIdleTTL(cfg.idleTTL),
	}, cfg.engineOpts...)

	h := &StreamingHTTPHandler{
		log:       log,
		eng:       engine.NewEngine(host, server, engineOpts...),
		path:      cfg.path,
		heartbeat: cfg.heartbeat,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+cfg.path, h.handlePostMCP)
	mux.HandleFunc("GET "+cfg.path, h.handleGetMCP)
	mux.HandleFunc("DELETE "+cfg.path, h.handleDeleteMCP)
	mux.HandleFunc("GET /health", h.handleHealth)
	h.handler = cors.New(cfg.cors).Handler(mux)

	if cfg.sweepInterval > 0 {
		go h.sweep(ctx, cfg.sweepInterval)
	}
	return h, nil
}

func (h *StreamingHTTPHandler) sweep(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.eng.Sweep(ctx)
		}
	}
}

func (h *StreamingHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

func (h *StreamingHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

// handleDeleteMCP terminates an existing session. Pending requests of the
// session are abandoned and its host record removed.
func (h *StreamingHTTPHandler) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.delete.start")

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		h.log.WarnContext(ctx, "delete.missing_session_id")
		writeJSONError(w, http.StatusBadRequest, "missing "+mcpSessionIDHeader+" header")
		return
	}

	if err := h.eng.DeleteSession(ctx, sessID); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			h.log.InfoContext(ctx, "session.delete.miss", slog.String("session_id", sessID))
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.ErrorContext(ctx, "session.delete.fail", slog.String("session_id", sessID), slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "http.delete.ok", slog.String("session_id", sessID), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

// handlePostMCP handles the POST /mcp endpoint, which is used by the client to send
// MCP messages to the server and to establish a session.
func (h *StreamingHTTPHandler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}
	if acc := r.Header.Get("Accept"); acc != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, postMediaTypes); err != nil {
			writeJSONError(w, http.StatusNotAcceptable, "accept must allow application/json or text/event-stream")
			h.log.WarnContext(ctx, "accept.unsupported", slog.String("accept", acc))
			return
		}
	}

	sessID := r.Header.Get(mcpSessionIDHeader)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		h.log.WarnContext(ctx, "body.read.fail", slog.String("err", err.Error()))
		return
	}
	msg, err := jsonrpc.Decode(body)
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, mcperr.MalformedMessage(err))
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		if sessID != "" {
			// Malformed input ends the session it was sent on.
			if derr := h.eng.DeleteSession(ctx, sessID); derr != nil && !errors.Is(derr, sessions.ErrSessionNotFound) {
				h.log.ErrorContext(ctx, "session.delete.fail", slog.String("session_id", sessID), slog.String("err", derr.Error()))
			}
		}
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   string(msg.Type()),
	})

	if sessID == "" {
		h.handleInitialize(ctx, w, msg, start)
		return
	}

	sess, err := h.eng.LoadSession(ctx, sessID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			writeRPCError(w, http.StatusNotFound, msg.ID, mcperr.ProtocolViolation(sessionNotFoundMessage))
			h.log.InfoContext(ctx, "session.load.miss", slog.String("session_id", sessID))
			return
		}
		writeRPCError(w, http.StatusInternalServerError, msg.ID, err)
		h.log.ErrorContext(ctx, "session.load.fail", slog.String("session_id", sessID), slog.String("err", err.Error()))
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.SessionID(),
		ProtocolVersion: sess.ProtocolVersion(),
		State:           string(sess.State()),
	})

	clientPV := r.Header.Get(mcpProtocolVersionHeader)
	if clientPV != "" && clientPV != sess.ProtocolVersion() {
		writeJSONError(w, http.StatusBadRequest, "protocol version mismatch")
		h.log.WarnContext(ctx, "protocol.version.mismatch", slog.String("client_version", clientPV))
		return
	}
	w.Header().Set(mcpProtocolVersionHeader, sess.ProtocolVersion())

	switch msg.Type() {
	case jsonrpc.TypeNotification:
		if err := h.eng.HandleNotification(ctx, sess, msg.AsRequest()); err != nil {
			if errors.Is(err, engine.ErrSessionClosed) {
				writeRPCError(w, http.StatusNotFound, nil, mcperr.ProtocolViolation(sessionNotFoundMessage))
			} else {
				writeRPCError(w, http.StatusBadRequest, nil, err)
			}
			h.log.WarnContext(ctx, "notification.inbound.fail", slog.String("err", err.Error()))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "notification.inbound.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))

	case jsonrpc.TypeResponse:
		// The server never issues requests, so there is nothing to correlate.
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "response.inbound.ignored")

	default:
		h.streamRequest(ctx, w, r, sess, msg.AsRequest(), start)
	}
}

// handleInitialize serves a POST without a session header. Only initialize is
// accepted; the response is plain JSON carrying the new session id.
func (h *StreamingHTTPHandler) handleInitialize(ctx context.Context, w http.ResponseWriter, msg *jsonrpc.AnyMessage, start time.Time) {
	if msg.Type() != jsonrpc.TypeRequest || msg.Method != string(mcp.InitializeMethod) {
		writeRPCError(w, http.StatusBadRequest, msg.ID, mcperr.ProtocolViolation("missing %s header; only initialize may open a session", mcpSessionIDHeader))
		h.log.InfoContext(ctx, "session.initialize.invalid")
		return
	}

	sess := h.eng.NewSession()
	res, err := h.eng.HandleRequest(ctx, sess, msg.AsRequest(), nil)
	if err != nil {
		// The client went away mid-handshake.
		h.log.InfoContext(ctx, "session.initialize.abandoned", slog.String("err", err.Error()))
		return
	}
	if res.Error == nil {
		w.Header().Set(mcpSessionIDHeader, sess.SessionID())
		w.Header().Set(mcpProtocolVersionHeader, sess.ProtocolVersion())
	}
	writeJSON(w, http.StatusOK, res)

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.SessionID(), ProtocolVersion: sess.ProtocolVersion(), State: string(sess.State())})
	h.log.InfoContext(ctx, "session.initialize.ok", slog.Bool("accepted", res.Error == nil), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

// streamRequest answers a request with an SSE stream carrying any progress
// notifications followed by exactly one response.
func (h *StreamingHTTPHandler) streamRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *engine.Session, req *jsonrpc.Request, start time.Time) {
	stream, err := sse.Upgrade(w, r)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "sse.upgrade.fail", slog.String("err", err.Error()))
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	sw := &sseWriter{stream: stream}
	if err := sw.flush(); err != nil {
		h.closeOnWriteFailure(ctx, sess, err)
		return
	}

	res, err := h.eng.HandleRequest(ctx, sess, req, sw)
	if werr := sw.failure(); werr != nil {
		h.closeOnWriteFailure(ctx, sess, werr)
		return
	}
	if err != nil {
		// Abandoned or closed: the stream ends without a response.
		h.log.InfoContext(ctx, "rpc.inbound.abandoned", slog.String("err", err.Error()))
		return
	}
	if err := sw.WriteMessage(ctx, res.AsAny()); err != nil {
		if werr := sw.failure(); werr != nil {
			h.closeOnWriteFailure(ctx, sess, werr)
			return
		}
		h.log.InfoContext(ctx, "rpc.inbound.abandoned", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

// closeOnWriteFailure ends a session whose stream could not be written.
func (h *StreamingHTTPHandler) closeOnWriteFailure(ctx context.Context, sess *engine.Session, err error) {
	h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
	if cerr := h.eng.CloseSession(context.WithoutCancel(ctx), sess); cerr != nil {
		h.log.WarnContext(ctx, "session.close.fail", slog.String("err", cerr.Error()))
	}
}

// handleGetMCP opens a standalone SSE stream for an established session. The
// stream stays open until the client leaves or the session closes.
func (h *StreamingHTTPHandler) handleGetMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, getMediaTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "accept must allow text/event-stream")
		h.log.WarnContext(ctx, "http.get.unsupported_media_type")
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing "+mcpSessionIDHeader+" header")
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}

	sess, err := h.eng.LoadSession(ctx, sessID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			writeRPCError(w, http.StatusNotFound, nil, mcperr.ProtocolViolation(sessionNotFoundMessage))
			h.log.InfoContext(ctx, "session.load.miss", slog.String("session_id", sessID))
			return
		}
		writeRPCError(w, http.StatusInternalServerError, nil, err)
		h.log.ErrorContext(ctx, "session.load.fail", slog.String("session_id", sessID), slog.String("err", err.Error()))
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.SessionID(), ProtocolVersion: sess.ProtocolVersion(), State: string(sess.State())})

	stream, err := sse.Upgrade(w, r)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "sse.upgrade.fail", slog.String("err", err.Error()))
		return
	}
	w.Header().Set(mcpProtocolVersionHeader, sess.ProtocolVersion())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	sw := &sseWriter{stream: stream}
	if err := sw.flush(); err != nil {
		h.log.WarnContext(ctx, "sse.flush.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.start")

	var heartbeat <-chan time.Time
	if h.heartbeat > 0 {
		t := time.NewTicker(h.heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}
	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.String("reason", "client"), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return
		case <-sess.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.String("reason", "session_closed"), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return
		case <-heartbeat:
			if err := sw.comment("keepalive"); err != nil {
				h.log.InfoContext(ctx, "sse.stream.end", slog.String("reason", "write"), slog.String("err", err.Error()))
				return
			}
		}
	}
}

// sseWriter frames JSON-RPC messages as SSE "message" events. Writes are
// serialized and flushed one by one. The first stream failure is kept and
// fails every later write.
type sseWriter struct {
	mu     sync.Mutex
	stream *sse.Session
	err    error
}

var _ engine.MessageWriter = (*sseWriter)(nil)

func (s *sseWriter) WriteMessage(ctx context.Context, msg *jsonrpc.AnyMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	e := &sse.Message{Type: messageEventType}
	e.AppendData(string(b))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if err := s.stream.Send(e); err != nil {
		s.err = fmt.Errorf("write SSE event: %w", err)
		return s.err
	}
	if err := s.stream.Flush(); err != nil {
		s.err = fmt.Errorf("flush SSE event: %w", err)
	}
	return s.err
}

func (s *sseWriter) comment(text string) error {
	e := &sse.Message{}
	e.AppendComment(text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stream.Send(e); err != nil {
		return err
	}
	return s.stream.Flush()
}

func (s *sseWriter) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stream.Flush(); err != nil {
		s.err = fmt.Errorf("flush SSE stream: %w", err)
	}
	return s.err
}

func (s *sseWriter) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
