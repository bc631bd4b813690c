package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/mcp-starter-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-starter-go/internal/logctx"
	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/mcperr"
	"github.com/ggoodman/mcp-starter-go/mcpservice"
	"github.com/ggoodman/mcp-starter-go/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrSessionClosed is returned for work submitted to a closed session and
	// is the cancellation cause of requests pending when a session closes.
	ErrSessionClosed = errors.New("session closed")
	// ErrRequestAbandoned is returned by HandleRequest when the request was
	// cancelled before it completed. No response must be sent for it.
	ErrRequestAbandoned = errors.New("request abandoned")
	// ErrMissingRequestID is returned by HandleRequest for a message without
	// an id; notifications go through HandleNotification.
	ErrMissingRequestID = errors.New("request without id")

	errDuplicateID     = errors.New("duplicate request id")
	errClientCancelled = errors.New("cancelled by client")
)

// Engine is the protocol state machine shared by all transports. It owns the
// per-session in-flight bookkeeping and routes requests to the server's
// capabilities. Transports own framing and delivery.
type Engine struct {
	host    sessions.SessionHost
	srv     mcpservice.ServerCapabilities
	log     *slog.Logger
	idleTTL time.Duration
	now     func() time.Time
	newID   func() string

	reg     prometheus.Registerer
	metrics *metrics
	tracer  trace.Tracer

	mu   sync.Mutex
	live map[string]*Session // initialized sessions by id
}

// NewEngine constructs an engine backed by host for session records.
func NewEngine(host sessions.SessionHost, srv mcpservice.ServerCapabilities, opts ...EngineOption) *Engine {
	e := &Engine{
		host:  host,
		srv:   srv,
		log:   slog.Default(),
		now:   time.Now,
		newID: newSessionID,
		live:  make(map[string]*Session),
	}
	// Apply options (order matters; later options override earlier ones).
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.reg == nil {
		e.reg = prometheus.NewRegistry()
	}
	e.metrics = newMetrics(e.reg)
	if e.tracer == nil {
		e.tracer = defaultTracer()
	}
	return e
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSessionIdleTTL sets the sliding idle TTL recorded for new sessions.
// Zero (the default) means sessions never idle out.
func WithSessionIdleTTL(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.idleTTL = d
		}
	}
}

// WithClock overrides the time source used for session timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetricsRegisterer registers the engine's Prometheus collectors with reg.
// Without it the collectors live in a private registry.
func WithMetricsRegisterer(reg prometheus.Registerer) EngineOption {
	return func(e *Engine) { e.reg = reg }
}

// WithTracerProvider sets the provider used for per-request spans.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewSession returns a fresh uninitialized session. It becomes known to the
// engine, and to the session host, once initialize succeeds on it.
func (e *Engine) NewSession() *Session {
	return newSession()
}

// LoadSession resolves an initialized session by id and slides its idle
// deadline. Unknown or evicted ids yield sessions.ErrSessionNotFound, and any
// local state left for the id is closed.
func (e *Engine) LoadSession(ctx context.Context, id string) (*Session, error) {
	start := time.Now()
	meta, err := e.host.GetSession(ctx, id)
	if err == nil {
		err = e.host.TouchSession(ctx, id)
	}
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			e.dropLocal(id)
		}
		e.log.InfoContext(ctx, "engine.load_session.fail", slog.String("session_id", id), slog.String("err", err.Error()))
		return nil, err
	}

	e.mu.Lock()
	sess, ok := e.live[id]
	if !ok {
		// The record outlived this process's view of it, e.g. a shared host.
		sess = sessionFromMetadata(meta)
		e.live[id] = sess
		e.metrics.active.Inc()
	}
	e.mu.Unlock()

	e.log.DebugContext(ctx, "engine.load_session.ok", slog.String("session_id", id), slog.Duration("dur", time.Since(start)))
	return sess, nil
}

// CloseSession closes sess, cancelling its pending requests, and deletes its
// host record. It is idempotent.
func (e *Engine) CloseSession(ctx context.Context, sess *Session) error {
	id := sess.SessionID()
	if sess.close() && id != "" {
		e.mu.Lock()
		if e.live[id] == sess {
			delete(e.live, id)
			e.metrics.active.Dec()
		}
		e.mu.Unlock()
		e.log.InfoContext(ctx, "engine.session.closed", slog.String("session_id", id))
	}
	if id == "" {
		return nil
	}
	if err := e.host.DeleteSession(ctx, id); err != nil {
		e.log.ErrorContext(ctx, "engine.delete_session.fail", slog.String("session_id", id), slog.String("err", err.Error()))
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteSession terminates the session with the given id. It returns
// sessions.ErrSessionNotFound when neither this process nor the host knows it.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	e.mu.Lock()
	sess, ok := e.live[id]
	e.mu.Unlock()
	if ok {
		return e.CloseSession(ctx, sess)
	}
	if _, err := e.host.GetSession(ctx, id); err != nil {
		return err
	}
	if err := e.host.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Sweep closes local state for sessions whose host record has expired and
// returns how many were dropped.
func (e *Engine) Sweep(ctx context.Context) int {
	e.mu.Lock()
	ids := make([]string, 0, len(e.live))
	for id := range e.live {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	dropped := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		_, err := e.host.GetSession(ctx, id)
		if errors.Is(err, sessions.ErrSessionNotFound) {
			if e.dropLocal(id) {
				dropped++
			}
			continue
		}
		if err != nil {
			e.log.WarnContext(ctx, "engine.sweep.fail", slog.String("session_id", id), slog.String("err", err.Error()))
		}
	}
	if dropped > 0 {
		e.log.InfoContext(ctx, "engine.sweep.ok", slog.Int("dropped", dropped))
	}
	return dropped
}

// ActiveSessions returns the number of initialized sessions held locally.
func (e *Engine) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

func (e *Engine) dropLocal(id string) bool {
	e.mu.Lock()
	sess, ok := e.live[id]
	if ok {
		delete(e.live, id)
		e.metrics.active.Dec()
	}
	e.mu.Unlock()
	if ok {
		sess.close()
	}
	return ok
}

// HandleRequest runs one request to completion and returns the response to
// deliver. Progress notifications, if any, are written to w before this
// returns. A nil response is paired with ErrSessionClosed,
// ErrRequestAbandoned or ErrMissingRequestID; the transport must not answer
// such a request.
func (e *Engine) HandleRequest(ctx context.Context, sess *Session, req *jsonrpc.Request, w MessageWriter) (*jsonrpc.Response, error) {
	start := time.Now()
	method := req.Method
	label := methodLabel(method)

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: method, ID: req.ID.String(), Type: string(jsonrpc.TypeRequest)})
	ctx = withSessionData(ctx, sess)
	ctx, span := e.tracer.Start(ctx, "mcp."+label,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.method", method),
			attribute.String("mcp.session_id", sess.SessionID()),
		),
	)
	defer span.End()

	res, outcome, err := e.handleRequest(ctx, sess, req, w)

	dur := time.Since(start)
	span.SetAttributes(attribute.String("mcp.outcome", outcome))
	e.metrics.requests.WithLabelValues(label, outcome).Inc()
	e.metrics.duration.WithLabelValues(label).Observe(dur.Seconds())

	log := e.log.With(slog.String("method", method))
	switch outcome {
	case outcomeOK:
		log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", dur.Milliseconds()))
	case outcomeInvalid, outcomeUnsupported:
		log.InfoContext(ctx, "engine.handle_request."+outcome, slog.String("err", errString(err)), slog.Int64("dur_ms", dur.Milliseconds()))
	case outcomeAbandoned, outcomeClosed:
		log.InfoContext(ctx, "engine.handle_request."+outcome, slog.String("cause", errString(err)), slog.Int64("dur_ms", dur.Milliseconds()))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", errString(err)), slog.Int64("dur_ms", dur.Milliseconds()))
	}

	switch outcome {
	case outcomeClosed:
		return nil, ErrSessionClosed
	case outcomeAbandoned:
		return nil, ErrRequestAbandoned
	}
	if res == nil {
		return nil, err
	}
	return res, nil
}

// handleRequest applies the session state checks, tracks the request as in
// flight and dispatches it. err carries the failure for logging when the
// returned response is an error response.
func (e *Engine) handleRequest(ctx context.Context, sess *Session, req *jsonrpc.Request, w MessageWriter) (*jsonrpc.Response, string, error) {
	if req.ID.IsNil() {
		return nil, outcomeFail, ErrMissingRequestID
	}

	switch state := sess.State(); {
	case state == sessions.StateClosed:
		return nil, outcomeClosed, ErrSessionClosed
	case state == sessions.StateUninitialized && req.Method != string(mcp.InitializeMethod):
		return e.errorResponse(req.ID, mcperr.ProtocolViolation("session not initialized"))
	case state == sessions.StateInitialized && req.Method == string(mcp.InitializeMethod):
		return e.errorResponse(req.ID, mcperr.ProtocolViolation("session already initialized"))
	}

	reqCtx, release, err := sess.begin(ctx, req.ID)
	if errors.Is(err, errDuplicateID) {
		return e.errorResponse(req.ID, mcperr.New(mcperr.KindDuplicateRequestID, "duplicate request id").
			WithData(map[string]any{"id": req.ID}))
	}
	if err != nil {
		return nil, outcomeClosed, err
	}
	defer release()

	if w != nil {
		if token := progressToken(req.Params); token != nil {
			reqCtx = mcpservice.WithProgressReporter(reqCtx, &progressReporter{w: w, token: token})
		}
	}

	result, err := e.dispatch(reqCtx, sess, req)
	if reqCtx.Err() != nil {
		// Cancelled by the client, by session close or by the transport.
		return nil, outcomeAbandoned, context.Cause(reqCtx)
	}
	if err != nil {
		return e.errorResponse(req.ID, err)
	}
	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		return e.errorResponse(req.ID, fmt.Errorf("encode result: %w", err))
	}
	return res, outcomeOK, nil
}

// errorResponse renders err for the wire. Only the mapped code, message and
// data leave the process; the full error is returned for logging.
func (e *Engine) errorResponse(id *jsonrpc.RequestID, err error) (*jsonrpc.Response, string, error) {
	wire := mcperr.ToWire(err)
	return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCode(wire.Code), wire.Message, wire.Data), outcomeOf(err), err
}

func outcomeOf(err error) string {
	switch mcperr.KindOf(err) {
	case mcperr.KindInvalidParams, mcperr.KindProtocolViolation, mcperr.KindDuplicateRequestID, mcperr.KindMalformedMessage:
		return outcomeInvalid
	case mcperr.KindMethodNotFound:
		return outcomeUnsupported
	default:
		return outcomeFail
	}
}

// HandleNotification processes a client notification. Notifications never
// produce a response; an error means the session is unusable and the
// transport should close it.
func (e *Engine) HandleNotification(ctx context.Context, sess *Session, note *jsonrpc.Request) error {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: note.Method, Type: string(jsonrpc.TypeNotification)})
	ctx = withSessionData(ctx, sess)

	switch sess.State() {
	case sessions.StateClosed:
		return ErrSessionClosed
	case sessions.StateUninitialized:
		e.log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", "session not initialized"))
		return mcperr.ProtocolViolation("session not initialized")
	}

	switch note.Method {
	case string(mcp.InitializedNotificationMethod):
		e.log.InfoContext(ctx, "engine.session.initialized")
	case string(mcp.CancelledNotificationMethod):
		var params mcp.CancelledNotification
		if err := decodeParams(note.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
			return nil
		}
		id, err := jsonrpc.ParseRequestID(params.RequestID)
		if err != nil {
			e.log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
			return nil
		}
		cause := errClientCancelled
		if params.Reason != "" {
			cause = fmt.Errorf("%w: %s", errClientCancelled, params.Reason)
		}
		found := sess.cancel(id.Key(), cause)
		e.log.InfoContext(ctx, "engine.handle_notification.cancelled", slog.String("request_id", id.String()), slog.Bool("found", found))
	default:
		e.log.DebugContext(ctx, "engine.handle_notification.ignored")
	}
	return nil
}

func withSessionData(ctx context.Context, sess *Session) context.Context {
	return logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.SessionID(),
		ProtocolVersion: sess.ProtocolVersion(),
		State:           string(sess.State()),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
