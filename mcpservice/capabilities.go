package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/sessions"
)

// ServerCapabilities is what the engine consults while dispatching requests.
//
// Capability discovery methods return (cap, ok, err). A false ok means the
// capability is not supported for the given session; err is reserved for
// internal failures while determining support.
type ServerCapabilities interface {
	// GetServerInfo returns implementation information surfaced in the
	// initialize result.
	GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)

	// GetPreferredProtocolVersion returns the server's preferred MCP protocol
	// version. If ok is false the engine negotiates from the client's request.
	GetPreferredProtocolVersion(ctx context.Context) (version string, ok bool, err error)

	// GetInstructions returns optional human-readable instructions that are
	// surfaced to the client during initialization.
	GetInstructions(ctx context.Context, session sessions.Session) (instructions string, ok bool, err error)

	GetToolsCapability(ctx context.Context, session sessions.Session) (cap ToolsCapability, ok bool, err error)
	GetResourcesCapability(ctx context.Context, session sessions.Session) (cap ResourcesCapability, ok bool, err error)
	GetPromptsCapability(ctx context.Context, session sessions.Session) (cap PromptsCapability, ok bool, err error)
}

// ToolsCapability defines the server's tools surface area. All methods MUST
// be safe for concurrent use.
type ToolsCapability interface {
	// ListTools returns a page of tools. A nil cursor requests the first page.
	ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error)

	// CallTool invokes a named tool. Failures should be *mcperr.Error values
	// so the engine can classify them; anything else is an internal error.
	CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)
}

// ResourcesCapability defines the basic resource operations supported by the server.
type ResourcesCapability interface {
	ListResources(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Resource], error)
	ListResourceTemplates(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.ResourceTemplate], error)

	// ReadResource returns the contents for a specific resource URI.
	ReadResource(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error)
}

// PromptsCapability defines the server's prompts surface area.
type PromptsCapability interface {
	ListPrompts(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Prompt], error)
	GetPrompt(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error)
}
