package engine

import (
	"context"

	"github.com/ggoodman/mcp-starter-go/internal/jsonrpc"
)

// MessageWriter delivers server-initiated messages (progress notifications)
// on the stream that will carry the request's response.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg *jsonrpc.AnyMessage) error
}

type MessageWriterFunc func(ctx context.Context, msg *jsonrpc.AnyMessage) error

func (f MessageWriterFunc) WriteMessage(ctx context.Context, msg *jsonrpc.AnyMessage) error {
	return f(ctx, msg)
}
