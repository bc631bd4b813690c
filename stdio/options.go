package stdio

import (
	"io"
	"log/slog"

	"github.com/ggoodman/mcp-starter-go/internal/engine"
	"github.com/ggoodman/mcp-starter-go/sessions"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets the reader and writer for the handler.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithReader overrides the input stream.
func WithReader(r io.Reader) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
	}
}

// WithWriter overrides the output stream.
func WithWriter(w io.Writer) Option {
	return func(h *Handler) {
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger. Logs never go to the output stream.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithSessionHost overrides the in-memory host backing the stream's session.
func WithSessionHost(host sessions.SessionHost) Option {
	return func(h *Handler) {
		if host != nil {
			h.host = host
		}
	}
}

// WithEngineOptions forwards options to the underlying engine, e.g. a
// metrics registerer or tracer provider.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(h *Handler) {
		h.engineOpts = append(h.engineOpts, opts...)
	}
}
