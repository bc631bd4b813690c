package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/mcperr"
	"github.com/ggoodman/mcp-starter-go/sessions"
	"github.com/google/jsonschema-go/jsonschema"
	invopop "github.com/invopop/jsonschema"
)

// ToolHandler is the function signature used to handle a tool invocation.
// Arguments have already been validated against the tool's input schema.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool pairs an MCP tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRequest is the container for tool call input and request metadata.
// It is generic over the typed argument struct A.
type ToolRequest[A any] struct {
	name string
	raw  json.RawMessage
	args A
}

func (r *ToolRequest[A]) Name() string                  { return r.name }
func (r *ToolRequest[A]) RawArguments() json.RawMessage { return r.raw }
func (r *ToolRequest[A]) Args() A                       { return r.args }

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	title                     string
	description               string
	annotations               *mcp.ToolAnnotations
	icons                     []mcp.Icon
	allowAdditionalProperties bool // default false (strict)
}

// WithToolTitle sets the human friendly display title.
func WithToolTitle(title string) ToolOption {
	return func(c *toolConfig) { c.title = title }
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAnnotations attaches behavioral hints.
func WithToolAnnotations(a mcp.ToolAnnotations) ToolOption {
	return func(c *toolConfig) { c.annotations = &a }
}

// WithToolIcons attaches display icons.
func WithToolIcons(icons ...mcp.Icon) ToolOption {
	return func(c *toolConfig) { c.icons = append(c.icons, icons...) }
}

// WithToolAllowAdditionalProperties controls whether unknown fields are allowed.
// When false (default), the generated schema sets additionalProperties=false and
// runtime decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool constructs a writer-based tool with typed input A. It reflects a
// JSON Schema from A using invopop/jsonschema, down-converts it to the MCP
// ToolInputSchema and wraps fn with strict decoding of the arguments.
func NewTool[A any](name string, fn func(ctx context.Context, session sessions.Session, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := mcp.Tool{
		Name:        name,
		Title:       cfg.title,
		Description: cfg.description,
		InputSchema: reflectToMCPInputSchema[A](cfg.allowAdditionalProperties),
		Annotations: cfg.annotations,
		Icons:       cfg.icons,
	}

	handler := func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			dec := json.NewDecoder(bytes.NewReader(req.Arguments))
			if !cfg.allowAdditionalProperties {
				dec.DisallowUnknownFields()
			}
			if err := dec.Decode(&a); err != nil {
				return nil, invalidArguments(req.Name, err)
			}
		}
		w := newToolResponseWriter(ctx)
		r := &ToolRequest[A]{name: req.Name, raw: req.Arguments, args: a}
		if err := fn(ctx, session, w, r); err != nil {
			return nil, err
		}
		return w.Result(), nil
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// reflectToMCPInputSchema reflects a Go type A into a jsonschema.Schema, and
// converts it to the simplified mcp.ToolInputSchema.
func reflectToMCPInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	additional := allowAdditional
	empty := mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           map[string]mcp.SchemaProperty{},
		AdditionalProperties: &additional,
	}

	t := reflect.TypeOf((*A)(nil)).Elem()
	if t.Kind() == reflect.Struct && t.NumField() == 0 {
		return empty
	}
	// Expanding looks the root up by type name, so unnamed structs are
	// reflected inline instead.
	r := &invopop.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            t.Name() != "",
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.ReflectFromType(t)
	if s == nil || s.Type != "object" {
		return empty
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toMCPProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: &additional,
	}
}

// toMCPProperty recursively maps a jsonschema.Schema to the simplified MCP SchemaProperty.
func toMCPProperty(s *invopop.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if f, err := s.Minimum.Float64(); s.Minimum != "" && err == nil {
		p.Minimum = &f
	}
	if f, err := s.Maximum.Float64(); s.Maximum != "" && err == nil {
		p.Maximum = &f
	}
	if s.Default != nil {
		if b, err := json.Marshal(s.Default); err == nil {
			p.Default = b
		}
	}
	if s.Type == "array" && s.Items != nil {
		item := toMCPProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toMCPProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

// compileInputSchema builds a validator for the advertised input schema.
func compileInputSchema(in mcp.ToolInputSchema) (*jsonschema.Resolved, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse input schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve input schema: %w", err)
	}
	return resolved, nil
}

type toolEntry struct {
	tool      StaticTool
	validator *jsonschema.Resolved
}

// validate checks raw arguments and returns them normalized: absent or
// null arguments become an empty object.
func (e *toolEntry) validate(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, err
	}
	if e.validator != nil {
		if err := e.validator.Validate(instance); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func invalidArguments(tool string, err error) error {
	return mcperr.InvalidParams("invalid arguments for tool %q", tool).
		WithData(map[string]any{"tool": tool, "error": err.Error()})
}

// handlerError classifies an error returned by capability code. Classified
// errors pass through; anything else is the handler's own failure.
func handlerError(ctx context.Context, err error) error {
	var me *mcperr.Error
	if errors.As(err, &me) {
		return err
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	return mcperr.HandlerFailure(err)
}

type toolSet struct {
	tools  []mcp.Tool
	byName map[string]*toolEntry
}

// ToolsContainer is an append-only registry of tools. Readers load a
// consistent snapshot without locking; writers copy on write.
type ToolsContainer struct {
	mu       sync.Mutex // serializes writers
	snap     atomic.Pointer[toolSet]
	pageSize atomic.Int64
}

// NewToolsContainer constructs a new ToolsContainer with the given tool definitions.
func NewToolsContainer(defs ...StaticTool) (*ToolsContainer, error) {
	tc := &ToolsContainer{}
	tc.snap.Store(&toolSet{byName: map[string]*toolEntry{}})
	tc.pageSize.Store(DefaultPageSize)
	for _, d := range defs {
		if err := tc.Add(d); err != nil {
			return nil, err
		}
	}
	return tc, nil
}

// ProvideTools makes *ToolsContainer satisfy ToolsCapabilityProvider. An
// empty container is a present-but-empty capability rather than an absent one.
func (tc *ToolsContainer) ProvideTools(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error) {
	return tc, true, nil
}

// SetPageSize sets the pagination size used by ListTools.
// A non-positive value is ignored.
func (tc *ToolsContainer) SetPageSize(n int) {
	if n > 0 {
		tc.pageSize.Store(int64(n))
	}
}

// Add registers a tool. It fails with ErrDuplicateName if the name is taken.
func (tc *ToolsContainer) Add(def StaticTool) error {
	name := def.Descriptor.Name
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q has no handler", name)
	}
	if def.Descriptor.InputSchema.Type == "" {
		def.Descriptor.InputSchema.Type = "object"
	}
	validator, err := compileInputSchema(def.Descriptor.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %q: %w", name, err)
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	cur := tc.snap.Load()
	if _, exists := cur.byName[name]; exists {
		return duplicateName(KindTool, name)
	}
	next := &toolSet{
		tools:  make([]mcp.Tool, len(cur.tools), len(cur.tools)+1),
		byName: make(map[string]*toolEntry, len(cur.byName)+1),
	}
	copy(next.tools, cur.tools)
	for k, v := range cur.byName {
		next.byName[k] = v
	}
	next.tools = append(next.tools, def.Descriptor)
	next.byName[name] = &toolEntry{tool: def, validator: validator}
	tc.snap.Store(next)
	return nil
}

// Snapshot returns a copy of the current tool descriptors.
func (tc *ToolsContainer) Snapshot() []mcp.Tool {
	cur := tc.snap.Load()
	out := make([]mcp.Tool, len(cur.tools))
	copy(out, cur.tools)
	return out
}

// ListTools implements ToolsCapability.
func (tc *ToolsContainer) ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error) {
	return pageSlice(tc.snap.Load().tools, int(tc.pageSize.Load()), cursor)
}

// CallTool implements ToolsCapability. Arguments are validated before the
// handler runs; the handler never sees invalid input.
func (tc *ToolsContainer) CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, mcperr.InvalidParams("missing tool name")
	}
	e, ok := tc.snap.Load().byName[req.Name]
	if !ok {
		return nil, notFound(KindTool, req.Name)
	}
	args, err := e.validate(req.Arguments)
	if err != nil {
		return nil, invalidArguments(req.Name, err)
	}
	res, err := e.tool.Handler(ctx, session, &mcp.CallToolRequestReceived{Name: req.Name, Arguments: args})
	if err != nil {
		return nil, handlerError(ctx, err)
	}
	if res == nil {
		res = &mcp.CallToolResult{}
	}
	if res.Content == nil {
		res.Content = []mcp.ContentBlock{}
	}
	return res, nil
}

// TextResult is a small helper to build a text CallToolResult.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: s}}}
}

// Errorf returns an error CallToolResult with a single text block and IsError=true.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	msg := fmt.Sprintf(format, a...)
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: msg}}, IsError: true}
}
