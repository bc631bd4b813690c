package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ggoodman/mcp-starter-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-starter-go/internal/logctx"
	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/mcperr"
	"github.com/ggoodman/mcp-starter-go/mcpservice"
	"github.com/ggoodman/mcp-starter-go/sessions"
	"github.com/google/uuid"
)

func newSessionID() string { return uuid.NewString() }

// dispatch routes a request by method. Errors are classified *mcperr.Error
// values or internal failures.
func (e *Engine) dispatch(ctx context.Context, sess *Session, req *jsonrpc.Request) (any, error) {
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return e.handleInitialize(ctx, sess, req)
	case mcp.PingMethod:
		return &mcp.EmptyResult{}, nil
	case mcp.ToolsListMethod:
		return e.handleToolsList(ctx, sess, req)
	case mcp.ToolsCallMethod:
		return e.handleToolCall(ctx, sess, req)
	case mcp.ResourcesListMethod:
		return e.handleResourcesList(ctx, sess, req)
	case mcp.ResourcesReadMethod:
		return e.handleResourcesRead(ctx, sess, req)
	case mcp.ResourcesTemplatesListMethod:
		return e.handleResourcesTemplatesList(ctx, sess, req)
	case mcp.PromptsListMethod:
		return e.handlePromptsList(ctx, sess, req)
	case mcp.PromptsGetMethod:
		return e.handlePromptsGet(ctx, sess, req)
	}
	return nil, mcperr.MethodNotFound("method not found: %s", req.Method)
}

// decodeParams unmarshals request params into v. Absent params leave v at
// its zero value.
func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return mcperr.InvalidParams("invalid params: %v", err)
	}
	return nil
}

func cursorOf(p mcp.PaginatedRequest) *string {
	if p.Cursor == "" {
		return nil
	}
	c := p.Cursor
	return &c
}

func nextCursorOf[T any](page mcpservice.Page[T]) string {
	if page.NextCursor == nil {
		return ""
	}
	return *page.NextCursor
}

func (e *Engine) handleInitialize(ctx context.Context, sess *Session, req *jsonrpc.Request) (any, error) {
	var params mcp.InitializeRequest
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.ProtocolVersion == "" {
		return nil, mcperr.InvalidParams("invalid params: missing protocolVersion")
	}

	version := mcp.LatestProtocolVersion
	if v, ok, err := e.srv.GetPreferredProtocolVersion(ctx); err != nil {
		return nil, fmt.Errorf("get preferred protocol version: %w", err)
	} else if ok && v != "" {
		version = v
	} else if mcp.IsSupportedProtocolVersion(params.ProtocolVersion) {
		version = params.ProtocolVersion
	}

	caps := sessions.CapabilitySet{}
	if params.Capabilities.Roots != nil {
		caps.Roots = true
		caps.RootsListChanged = params.Capabilities.Roots.ListChanged
	}
	caps.Sampling = params.Capabilities.Sampling != nil
	caps.Elicitation = params.Capabilities.Elicitation != nil
	client := sessions.MetadataClientInfo{
		Name:    params.ClientInfo.Name,
		Version: params.ClientInfo.Version,
		Title:   params.ClientInfo.Title,
	}

	id := e.newID()
	now := e.now().UTC()
	meta := &sessions.Metadata{
		MetaVersion:     1,
		SessionID:       id,
		ProtocolVersion: version,
		Client:          client,
		Capabilities:    caps,
		CreatedAt:       now,
		LastAccess:      now,
		IdleTTL:         e.idleTTL,
	}
	if err := e.host.CreateSession(ctx, meta); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !sess.markInitialized(id, version, client, caps) {
		_ = e.host.DeleteSession(context.WithoutCancel(ctx), id)
		return nil, mcperr.ProtocolViolation("session already initialized")
	}

	res, err := e.initializeResult(ctx, sess, version)
	if err != nil {
		sess.revertInitialized()
		_ = e.host.DeleteSession(context.WithoutCancel(ctx), id)
		return nil, err
	}

	e.mu.Lock()
	e.live[id] = sess
	e.mu.Unlock()
	e.metrics.active.Inc()

	ctx = withSessionData(ctx, sess)
	e.log.InfoContext(ctx, "engine.create_session.ok",
		slog.String("client_name", client.Name),
		slog.String("client_version", client.Version),
	)
	return res, nil
}

func (e *Engine) initializeResult(ctx context.Context, sess *Session, version string) (*mcp.InitializeResult, error) {
	info, err := e.srv.GetServerInfo(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("get server info: %w", err)
	}
	res := &mcp.InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      info,
	}

	if instr, ok, err := e.srv.GetInstructions(ctx, sess); err != nil {
		return nil, fmt.Errorf("get instructions: %w", err)
	} else if ok {
		res.Instructions = instr
	}

	if _, ok, err := e.srv.GetToolsCapability(ctx, sess); err != nil {
		return nil, fmt.Errorf("get tools capability: %w", err)
	} else if ok {
		res.Capabilities.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}
	if _, ok, err := e.srv.GetResourcesCapability(ctx, sess); err != nil {
		return nil, fmt.Errorf("get resources capability: %w", err)
	} else if ok {
		res.Capabilities.Resources = &struct {
			ListChanged bool `json:"listChanged"`
			Subscribe   bool `json:"subscribe"`
		}{}
	}
	if _, ok, err := e.srv.GetPromptsCapability(ctx, sess); err != nil {
		return nil, fmt.Errorf("get prompts capability: %w", err)
	} else if ok {
		res.Capabilities.Prompts = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}
	return res, nil
}

func (e *Engine) toolsCapability(ctx context.Context, sess *Session) (mcpservice.ToolsCapability, error) {
	cap, ok, err := e.srv.GetToolsCapability(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("get tools capability: %w", err)
	}
	if !ok || cap == nil {
		return nil, mcperr.MethodNotFound("tools capability not supported")
	}
	return cap, nil
}

func (e *Engine) resourcesCapability(ctx context.Context, sess *Session) (mcpservice.ResourcesCapability, error) {
	cap, ok, err := e.srv.GetResourcesCapability(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("get resources capability: %w", err)
	}
	if !ok || cap == nil {
		return nil, mcperr.MethodNotFound("resources capability not supported")
	}
	return cap, nil
}

func (e *Engine) promptsCapability(ctx context.Context, sess *Session) (mcpservice.PromptsCapability, error) {
	cap, ok, err := e.srv.GetPromptsCapability(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("get prompts capability: %w", err)
	}
	if !ok || cap == nil {
		return nil, mcperr.MethodNotFound("prompts capability not supported")
	}
	return cap, nil
}

func (e *Engine) handleToolsList(ctx context.Context, sess *Session, req *jsonrpc.Request) (any, error) {
	var params mcp.ListToolsRequest
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	cap, err := e.toolsCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	page, err := cap.ListTools(ctx, sess, cursorOf(params.PaginatedRequest))
	if err != nil {
		return nil, err
	}
	res := &mcp.ListToolsResult{Tools: page.Items}
	res.NextCursor = nextCursorOf(page)
	if res.Tools == nil {
		res.Tools = []mcp.Tool{}
	}
	return res, nil
}

func (e *Engine) handleToolCall(ctx context.Context, sess *Session, req *jsonrpc.Request) (any, error) {
	var params mcp.CallToolRequestReceived
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, mcperr.InvalidParams("invalid params: missing tool name")
	}
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	cap, err := e.toolsCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	return cap.CallTool(ctx, sess, &params)
}

func (e *Engine) handleResourcesList(ctx context.Context, sess *Session, req *jsonrpc.Request) (any, error) {
	var params mcp.ListResourcesRequest
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	cap, err := e.resourcesCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	page, err := cap.ListResources(ctx, sess, cursorOf(params.PaginatedRequest))
	if err != nil {
		return nil, err
	}
	res := &mcp.ListResourcesResult{Resources: page.Items}
	res.NextCursor = nextCursorOf(page)
	if res.Resources == nil {
		res.Resources = []mcp.Resource{}
	}
	return res, nil
}

func (e *Engine) handleResourcesTemplatesList(ctx context.Context, sess *Session, req *jsonrpc.Request) (any, error) {
	var params mcp.ListResourceTemplatesRequest
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	cap, err := e.resourcesCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	page, err := cap.ListResourceTemplates(ctx, sess, cursorOf(params.PaginatedRequest))
	if err != nil {
		return nil, err
	}
	res := &mcp.ListResourceTemplatesResult{ResourceTemplates: page.Items}
	res.NextCursor = nextCursorOf(page)
	if res.ResourceTemplates == nil {
		res.ResourceTemplates = []mcp.ResourceTemplate{}
	}
	return res, nil
}

func (e *Engine) handleResourcesRead(ctx context.Context, sess *Session, req *jsonrpc.Request) (any, error) {
	var params mcp.ReadResourceRequest
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.URI == "" {
		return nil, mcperr.InvalidParams("invalid params: missing uri")
	}
	cap, err := e.resourcesCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	contents, err := cap.ReadResource(ctx, sess, params.URI)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{Contents: contents}, nil
}

func (e *Engine) handlePromptsList(ctx context.Context, sess *Session, req *jsonrpc.Request) (any, error) {
	var params mcp.ListPromptsRequest
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	cap, err := e.promptsCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	page, err := cap.ListPrompts(ctx, sess, cursorOf(params.PaginatedRequest))
	if err != nil {
		return nil, err
	}
	res := &mcp.ListPromptsResult{Prompts: page.Items}
	res.NextCursor = nextCursorOf(page)
	if res.Prompts == nil {
		res.Prompts = []mcp.Prompt{}
	}
	return res, nil
}

func (e *Engine) handlePromptsGet(ctx context.Context, sess *Session, req *jsonrpc.Request) (any, error) {
	var params mcp.GetPromptRequestReceived
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, mcperr.InvalidParams("invalid params: missing prompt name")
	}
	cap, err := e.promptsCapability(ctx, sess)
	if err != nil {
		return nil, err
	}
	return cap.GetPrompt(ctx, sess, &params)
}
