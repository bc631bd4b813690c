package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/sessions"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// Server is the ServerCapabilities implementation assembled from options.
// Each facet is either a static value or a per-session provider; a provider
// wins when both are set.
type Server struct {
	staticInfo   *mcp.ImplementationInfo
	infoProvider func(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)

	staticProtocolVersion string
	protocolProvider      func(ctx context.Context) (string, bool, error)
	staticInstructions    *string
	instructionsProvider  func(ctx context.Context, session sessions.Session) (string, bool, error)

	staticToolsCap ToolsCapability
	toolsProvider  ToolsCapabilityProvider

	staticResourcesCap ResourcesCapability
	resourcesProvider  ResourcesCapabilityProvider

	staticPromptsCap PromptsCapability
	promptsProvider  PromptsCapabilityProvider
}

var _ ServerCapabilities = (*Server)(nil)

// NewServer builds a Server using functional options.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithServerInfo sets a static server info value.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *Server) { s.staticInfo = &info }
}

// WithServerInfoProvider sets a provider for per-session server info.
func WithServerInfoProvider(fn func(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)) ServerOption {
	return func(s *Server) { s.infoProvider = fn }
}

// WithProtocolVersion sets a static preferred protocol version string.
func WithProtocolVersion(version string) ServerOption {
	return func(s *Server) { s.staticProtocolVersion = version }
}

// WithProtocolVersionProvider sets a provider for the preferred protocol version.
func WithProtocolVersionProvider(fn func(ctx context.Context) (string, bool, error)) ServerOption {
	return func(s *Server) { s.protocolProvider = fn }
}

// WithInstructions sets static human-readable instructions returned during initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *Server) { s.staticInstructions = &instr }
}

// WithInstructionsProvider sets a per-session provider for instructions.
func WithInstructionsProvider(fn func(ctx context.Context, session sessions.Session) (string, bool, error)) ServerOption {
	return func(s *Server) { s.instructionsProvider = fn }
}

// WithToolsContainer wires a static tools registry used for all sessions.
func WithToolsContainer(tc *ToolsContainer) ServerOption {
	return func(s *Server) {
		if tc != nil {
			s.staticToolsCap = tc
		}
	}
}

// WithToolsProvider wires a per-session tools capability provider.
func WithToolsProvider(p ToolsCapabilityProvider) ServerOption {
	return func(s *Server) { s.toolsProvider = p }
}

// WithResourcesContainer wires a static resources registry used for all sessions.
func WithResourcesContainer(rc *ResourcesContainer) ServerOption {
	return func(s *Server) {
		if rc != nil {
			s.staticResourcesCap = rc
		}
	}
}

// WithResourcesProvider wires a per-session resources capability provider.
func WithResourcesProvider(p ResourcesCapabilityProvider) ServerOption {
	return func(s *Server) { s.resourcesProvider = p }
}

// WithPromptsContainer wires a static prompts registry used for all sessions.
func WithPromptsContainer(pc *PromptsContainer) ServerOption {
	return func(s *Server) {
		if pc != nil {
			s.staticPromptsCap = pc
		}
	}
}

// WithPromptsProvider wires a per-session prompts capability provider.
func WithPromptsProvider(p PromptsCapabilityProvider) ServerOption {
	return func(s *Server) { s.promptsProvider = p }
}

// GetServerInfo implements ServerCapabilities.
func (s *Server) GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error) {
	if s.infoProvider != nil {
		return s.infoProvider(ctx, session)
	}
	if s.staticInfo != nil {
		return *s.staticInfo, nil
	}
	return mcp.ImplementationInfo{}, nil
}

// GetPreferredProtocolVersion implements ServerCapabilities.
func (s *Server) GetPreferredProtocolVersion(ctx context.Context) (string, bool, error) {
	if s.protocolProvider != nil {
		return s.protocolProvider(ctx)
	}
	if s.staticProtocolVersion != "" {
		return s.staticProtocolVersion, true, nil
	}
	return "", false, nil
}

// GetInstructions implements ServerCapabilities.
func (s *Server) GetInstructions(ctx context.Context, session sessions.Session) (string, bool, error) {
	if s.instructionsProvider != nil {
		return s.instructionsProvider(ctx, session)
	}
	if s.staticInstructions != nil {
		return *s.staticInstructions, true, nil
	}
	return "", false, nil
}

// GetToolsCapability implements ServerCapabilities.
func (s *Server) GetToolsCapability(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error) {
	if s.toolsProvider != nil {
		return s.toolsProvider.ProvideTools(ctx, session)
	}
	if s.staticToolsCap != nil {
		return s.staticToolsCap, true, nil
	}
	return nil, false, nil
}

// GetResourcesCapability implements ServerCapabilities.
func (s *Server) GetResourcesCapability(ctx context.Context, session sessions.Session) (ResourcesCapability, bool, error) {
	if s.resourcesProvider != nil {
		return s.resourcesProvider.ProvideResources(ctx, session)
	}
	if s.staticResourcesCap != nil {
		return s.staticResourcesCap, true, nil
	}
	return nil, false, nil
}

// GetPromptsCapability implements ServerCapabilities.
func (s *Server) GetPromptsCapability(ctx context.Context, session sessions.Session) (PromptsCapability, bool, error) {
	if s.promptsProvider != nil {
		return s.promptsProvider.ProvidePrompts(ctx, session)
	}
	if s.staticPromptsCap != nil {
		return s.staticPromptsCap, true, nil
	}
	return nil, false, nil
}
