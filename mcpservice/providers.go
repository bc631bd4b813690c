package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-starter-go/sessions"
)

// Provider interfaces & adapter function types. Each returns (value, ok, error)
// where ok distinguishes absence (false) from presence (true) even if the
// underlying value may be empty.

// ToolsCapabilityProvider yields a ToolsCapability (list + invoke). ok=false
// suppresses the entire capability.
type ToolsCapabilityProvider interface {
	ProvideTools(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error)
}
type ToolsCapabilityProviderFunc func(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error)

func (f ToolsCapabilityProviderFunc) ProvideTools(ctx context.Context, s sessions.Session) (ToolsCapability, bool, error) {
	return f(ctx, s)
}

// ResourcesCapabilityProvider yields a ResourcesCapability (list/read).
type ResourcesCapabilityProvider interface {
	ProvideResources(ctx context.Context, session sessions.Session) (ResourcesCapability, bool, error)
}
type ResourcesCapabilityProviderFunc func(ctx context.Context, session sessions.Session) (ResourcesCapability, bool, error)

func (f ResourcesCapabilityProviderFunc) ProvideResources(ctx context.Context, s sessions.Session) (ResourcesCapability, bool, error) {
	return f(ctx, s)
}

// PromptsCapabilityProvider yields a PromptsCapability (named prompt templates).
type PromptsCapabilityProvider interface {
	ProvidePrompts(ctx context.Context, session sessions.Session) (PromptsCapability, bool, error)
}
type PromptsCapabilityProviderFunc func(ctx context.Context, session sessions.Session) (PromptsCapability, bool, error)

func (f PromptsCapabilityProviderFunc) ProvidePrompts(ctx context.Context, s sessions.Session) (PromptsCapability, bool, error) {
	return f(ctx, s)
}

func StaticTools(cap ToolsCapability) ToolsCapabilityProvider {
	if cap == nil {
		return ToolsCapabilityProviderFunc(func(context.Context, sessions.Session) (ToolsCapability, bool, error) { return nil, false, nil })
	}
	return ToolsCapabilityProviderFunc(func(context.Context, sessions.Session) (ToolsCapability, bool, error) { return cap, true, nil })
}
func StaticResources(cap ResourcesCapability) ResourcesCapabilityProvider {
	if cap == nil {
		return ResourcesCapabilityProviderFunc(func(context.Context, sessions.Session) (ResourcesCapability, bool, error) { return nil, false, nil })
	}
	return ResourcesCapabilityProviderFunc(func(context.Context, sessions.Session) (ResourcesCapability, bool, error) { return cap, true, nil })
}
func StaticPrompts(cap PromptsCapability) PromptsCapabilityProvider {
	if cap == nil {
		return PromptsCapabilityProviderFunc(func(context.Context, sessions.Session) (PromptsCapability, bool, error) { return nil, false, nil })
	}
	return PromptsCapabilityProviderFunc(func(context.Context, sessions.Session) (PromptsCapability, bool, error) { return cap, true, nil })
}
