package mcpservice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/mcperr"
	"github.com/ggoodman/mcp-starter-go/sessions"
)

// PromptRequest carries the decoded arguments of a prompts/get call.
// Required arguments are guaranteed to be present.
type PromptRequest struct {
	Name      string
	Arguments map[string]string
}

// Arg returns the named argument or def when it is absent or empty.
func (r *PromptRequest) Arg(name, def string) string {
	if v, ok := r.Arguments[name]; ok && v != "" {
		return v
	}
	return def
}

// PromptHandler handles a prompt get request to produce messages.
type PromptHandler func(ctx context.Context, session sessions.Session, req *PromptRequest) (*mcp.GetPromptResult, error)

// StaticPrompt pairs a prompt descriptor with a handler that can materialize it.
type StaticPrompt struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

// UserMessage builds a single user text message.
func UserMessage(text string) mcp.PromptMessage {
	return mcp.PromptMessage{Role: mcp.RoleUser, Content: mcp.ContentBlock{Type: mcp.ContentTypeText, Text: text}}
}

type promptSet struct {
	prompts []mcp.Prompt
	byName  map[string]StaticPrompt
}

// PromptsContainer is an append-only registry of prompts with
// copy-on-write snapshots.
type PromptsContainer struct {
	mu       sync.Mutex
	snap     atomic.Pointer[promptSet]
	pageSize atomic.Int64
}

// NewPromptsContainer constructs a container with the given definitions.
func NewPromptsContainer(defs ...StaticPrompt) (*PromptsContainer, error) {
	pc := &PromptsContainer{}
	pc.snap.Store(&promptSet{byName: map[string]StaticPrompt{}})
	pc.pageSize.Store(DefaultPageSize)
	for _, d := range defs {
		if err := pc.Add(d); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// ProvidePrompts implements PromptsCapabilityProvider.
func (pc *PromptsContainer) ProvidePrompts(ctx context.Context, session sessions.Session) (PromptsCapability, bool, error) {
	return pc, true, nil
}

// SetPageSize sets the pagination size used by ListPrompts.
func (pc *PromptsContainer) SetPageSize(n int) {
	if n > 0 {
		pc.pageSize.Store(int64(n))
	}
}

// Add registers a prompt. It fails with ErrDuplicateName if the name is taken.
func (pc *PromptsContainer) Add(def StaticPrompt) error {
	name := def.Descriptor.Name
	if name == "" {
		return fmt.Errorf("prompt name must not be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("prompt %q has no handler", name)
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	cur := pc.snap.Load()
	if _, exists := cur.byName[name]; exists {
		return duplicateName(KindPrompt, name)
	}
	next := &promptSet{
		prompts: append(append(make([]mcp.Prompt, 0, len(cur.prompts)+1), cur.prompts...), def.Descriptor),
		byName:  make(map[string]StaticPrompt, len(cur.byName)+1),
	}
	for k, v := range cur.byName {
		next.byName[k] = v
	}
	next.byName[name] = def
	pc.snap.Store(next)
	return nil
}

// Snapshot returns a copy of the current prompt descriptors.
func (pc *PromptsContainer) Snapshot() []mcp.Prompt {
	cur := pc.snap.Load()
	return append([]mcp.Prompt(nil), cur.prompts...)
}

// ResolvePrompt looks a prompt up by name.
func (pc *PromptsContainer) ResolvePrompt(name string) (StaticPrompt, bool) {
	p, ok := pc.snap.Load().byName[name]
	return p, ok
}

func (pc *PromptsContainer) ListPrompts(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Prompt], error) {
	return pageSlice(pc.snap.Load().prompts, int(pc.pageSize.Load()), cursor)
}

// GetPrompt checks arguments against the descriptor before invoking the
// handler. Prompt arguments are strings on the wire.
func (pc *PromptsContainer) GetPrompt(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
	if req == nil || req.Name == "" {
		return nil, mcperr.InvalidParams("missing prompt name")
	}
	p, ok := pc.ResolvePrompt(req.Name)
	if !ok {
		return nil, notFound(KindPrompt, req.Name)
	}

	args := make(map[string]string, len(req.Arguments))
	for k, raw := range req.Arguments {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, mcperr.InvalidParams("prompt argument %q must be a string", k).
				WithData(map[string]any{"prompt": req.Name, "argument": k})
		}
		args[k] = s
	}

	var missing []string
	for _, a := range p.Descriptor.Arguments {
		if !a.Required {
			continue
		}
		if v, ok := args[a.Name]; !ok || v == "" {
			missing = append(missing, a.Name)
		}
	}
	if len(missing) > 0 {
		return nil, mcperr.InvalidParams("missing required arguments for prompt %q", req.Name).
			WithData(map[string]any{"prompt": req.Name, "missing": missing})
	}

	res, err := p.Handler(ctx, session, &PromptRequest{Name: req.Name, Arguments: args})
	if err != nil {
		return nil, handlerError(ctx, err)
	}
	if res == nil {
		res = &mcp.GetPromptResult{}
	}
	if res.Messages == nil {
		res.Messages = []mcp.PromptMessage{}
	}
	return res, nil
}
