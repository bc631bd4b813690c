package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-starter-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/mcpservice"
)

var _ mcpservice.ProgressReporter = (*progressReporter)(nil)

// progressReporter writes notifications/progress for one request to the
// writer that will also carry its response. Reports are written
// synchronously, so they always precede the response.
type progressReporter struct {
	w     MessageWriter
	token json.RawMessage
}

func (p *progressReporter) Report(ctx context.Context, progress, total float64, message string) error {
	note, err := jsonrpc.NewNotification(string(mcp.ProgressNotificationMethod), &mcp.ProgressNotificationParams{
		ProgressToken: p.token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	msg := &jsonrpc.AnyMessage{
		JSONRPCVersion: note.JSONRPCVersion,
		Method:         note.Method,
		Params:         note.Params,
	}
	return p.w.WriteMessage(ctx, msg)
}

// progressToken extracts params._meta.progressToken. Only string and number
// tokens are honoured.
func progressToken(params json.RawMessage) json.RawMessage {
	if len(params) == 0 {
		return nil
	}
	var meta mcp.RequestParamsMeta
	if err := json.Unmarshal(params, &meta); err != nil || meta.Meta == nil {
		return nil
	}
	tok := meta.Meta.ProgressToken
	if _, err := jsonrpc.ParseRequestID(tok); err != nil {
		return nil
	}
	return tok
}
