package stdio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-starter-go/internal/engine"
	"github.com/ggoodman/mcp-starter-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-starter-go/internal/logctx"
	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/mcperr"
	"github.com/ggoodman/mcp-starter-go/mcpservice"
	"github.com/ggoodman/mcp-starter-go/sessions"
	"github.com/ggoodman/mcp-starter-go/sessions/memoryhost"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyServed is returned when Serve is called more than once.
var ErrAlreadyServed = errors.New("stdio: handler already served")

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout.
//
// The handler is transport-only; it delegates all MCP semantics to the provided
// mcpservice.ServerCapabilities.
type Handler struct {
	srv        mcpservice.ServerCapabilities
	r          io.Reader
	w          io.Writer
	l          *slog.Logger
	host       sessions.SessionHost
	engineOpts []engine.EngineOption

	served atomic.Bool
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(srv mcpservice.ServerCapabilities, opts ...Option) *Handler {
	h := &Handler{
		srv:  srv,
		r:    os.Stdin,
		w:    os.Stdout,
		l:    slog.New(slog.NewTextHandler(os.Stderr, nil)),
		host: memoryhost.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.l = slog.New(logctx.Wrap(h.l.Handler()))
	return h
}

type readResult struct {
	msg *jsonrpc.AnyMessage
	err error
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. It is safe to call at most once per Handler.
//
// Each request is handled on its own goroutine, so responses may be written
// out of order. A malformed line is answered with a parse error carrying a
// null id, after which the session is closed and Serve returns an
// mcperr.ErrMalformedMessage error. A notification the session cannot accept,
// such as one sent before initialize, ends Serve the same way. At EOF requests already read run to
// completion; on any other exit pending requests are abandoned without a
// response.
func (h *Handler) Serve(ctx context.Context) error {
	if !h.served.CompareAndSwap(false, true) {
		return ErrAlreadyServed
	}

	eng := engine.NewEngine(h.host, h.srv, append([]engine.EngineOption{engine.WithLogger(h.l)}, h.engineOpts...)...)
	sess := eng.NewSession()
	enc := jsonrpc.NewEncoder(h.w)
	out := engine.MessageWriterFunc(func(ctx context.Context, msg *jsonrpc.AnyMessage) error {
		return enc.Encode(msg)
	})

	g, gctx := errgroup.WithContext(ctx)

	msgs := make(chan readResult)
	go h.readLoop(gctx, msgs)

	h.l.InfoContext(ctx, "stdio.serve.start")
	start := time.Now()

	var serveErr error
loop:
	for {
		select {
		case <-gctx.Done():
			serveErr = context.Cause(gctx)
			break loop
		case rr, ok := <-msgs:
			if !ok {
				break loop
			}
			if rr.err != nil {
				serveErr = h.reject(ctx, enc, rr.err)
				break loop
			}
			if err := h.dispatch(gctx, g, eng, sess, out, enc, rr.msg); err != nil {
				serveErr = err
				break loop
			}
		}
	}

	if serveErr == nil {
		// Clean EOF: let requests already read run to completion.
		serveErr = g.Wait()
	}
	if err := eng.CloseSession(context.WithoutCancel(ctx), sess); err != nil {
		h.l.WarnContext(ctx, "stdio.close_session.fail", slog.String("err", err.Error()))
	}
	_ = g.Wait()

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		h.l.ErrorContext(ctx, "stdio.serve.fail", slog.String("err", serveErr.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	} else {
		h.l.InfoContext(ctx, "stdio.serve.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	}
	return serveErr
}

func (h *Handler) readLoop(ctx context.Context, msgs chan<- readResult) {
	defer close(msgs)
	dec := jsonrpc.NewDecoder(h.r)
	for {
		msg, err := dec.Next()
		if errors.Is(err, io.EOF) {
			h.l.DebugContext(ctx, "stdio.read.eof")
			return
		}
		select {
		case msgs <- readResult{msg: msg, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// reject answers undecodable input with a parse error and returns the error
// that ends the session.
func (h *Handler) reject(ctx context.Context, enc *jsonrpc.Encoder, cause error) error {
	err := mcperr.MalformedMessage(cause)
	h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", err.Error()))

	wire := mcperr.ToWire(err)
	if werr := enc.Encode(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCode(wire.Code), wire.Message, wire.Data)); werr != nil {
		h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", werr.Error()))
	}
	return err
}

// dispatch routes one inbound message. A non-nil error ends the session.
func (h *Handler) dispatch(ctx context.Context, g *errgroup.Group, eng *engine.Engine, sess *engine.Session, out engine.MessageWriter, enc *jsonrpc.Encoder, msg *jsonrpc.AnyMessage) error {
	switch msg.Type() {
	case jsonrpc.TypeRequest:
		req := msg.AsRequest()
		run := func() error {
			res, err := eng.HandleRequest(ctx, sess, req, out)
			if err != nil {
				// Abandoned or closed; nothing is owed to the peer.
				return nil
			}
			if err := enc.Encode(res); err != nil {
				h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("method", req.Method), slog.String("err", err.Error()))
				return err
			}
			return nil
		}
		if req.Method == string(mcp.InitializeMethod) {
			// Inline, so every later message sees the handshake outcome.
			if err := run(); err != nil {
				g.Go(func() error { return err })
			}
			return nil
		}
		g.Go(run)
	case jsonrpc.TypeNotification:
		if err := eng.HandleNotification(ctx, sess, msg.AsRequest()); err != nil {
			h.l.ErrorContext(ctx, "stdio.notification.fail", slog.String("method", msg.Method), slog.String("err", err.Error()))
			return err
		}
	default:
		h.l.DebugContext(ctx, "stdio.response.ignored", slog.String("id", msg.ID.String()))
	}
	return nil
}
