package mcpservice

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/mcp-starter-go/mcp"
	"github.com/ggoodman/mcp-starter-go/mcperr"
	"github.com/ggoodman/mcp-starter-go/sessions"
	"github.com/yosida95/uritemplate/v3"
)

// ResourceHandler produces the contents of a static resource on demand.
type ResourceHandler func(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error)

// TemplateHandler produces the contents of a URI matched by a resource
// template. vars holds the template variables bound by the match.
type TemplateHandler func(ctx context.Context, session sessions.Session, uri string, vars map[string]string) ([]mcp.ResourceContents, error)

// StaticResource is a resource with a fixed URI. When Handler is nil the
// fixed Contents are returned on every read.
type StaticResource struct {
	Descriptor mcp.Resource
	Contents   []mcp.ResourceContents
	Handler    ResourceHandler
}

// StaticResourceTemplate is a parameterized resource family.
type StaticResourceTemplate struct {
	Descriptor mcp.ResourceTemplate
	Handler    TemplateHandler
}

// TextResource builds a static text resource whose single content entry
// mirrors the descriptor's URI and MIME type.
func TextResource(desc mcp.Resource, text string) StaticResource {
	return StaticResource{
		Descriptor: desc,
		Contents:   []mcp.ResourceContents{{URI: desc.URI, MimeType: desc.MimeType, Text: text}},
	}
}

type templateEntry struct {
	def StaticResourceTemplate
	tpl *uritemplate.Template
}

type resourceSet struct {
	resources []mcp.Resource
	templates []mcp.ResourceTemplate
	byURI     map[string]StaticResource
	// entries are kept in registration order; the first match wins.
	entries []*templateEntry
	byTpl   map[string]struct{}
}

// ResourcesContainer is an append-only registry of static resources and URI
// templates with copy-on-write snapshots.
type ResourcesContainer struct {
	mu       sync.Mutex
	snap     atomic.Pointer[resourceSet]
	pageSize atomic.Int64
}

// NewResourcesContainer constructs an empty container.
func NewResourcesContainer() *ResourcesContainer {
	rc := &ResourcesContainer{}
	rc.snap.Store(&resourceSet{
		byURI: map[string]StaticResource{},
		byTpl: map[string]struct{}{},
	})
	rc.pageSize.Store(DefaultPageSize)
	return rc
}

// ProvideResources implements ResourcesCapabilityProvider. An empty container
// is still advertised.
func (rc *ResourcesContainer) ProvideResources(ctx context.Context, session sessions.Session) (ResourcesCapability, bool, error) {
	return rc, true, nil
}

// SetPageSize configures the maximum number of items returned per page when
// listing resources or templates. Values < 1 are ignored.
func (rc *ResourcesContainer) SetPageSize(n int) {
	if n > 0 {
		rc.pageSize.Store(int64(n))
	}
}

// clone copies the current set so a writer can extend it.
func (s *resourceSet) clone() *resourceSet {
	next := &resourceSet{
		resources: append([]mcp.Resource(nil), s.resources...),
		templates: append([]mcp.ResourceTemplate(nil), s.templates...),
		byURI:     make(map[string]StaticResource, len(s.byURI)+1),
		entries:   append([]*templateEntry(nil), s.entries...),
		byTpl:     make(map[string]struct{}, len(s.byTpl)+1),
	}
	for k, v := range s.byURI {
		next.byURI[k] = v
	}
	for k := range s.byTpl {
		next.byTpl[k] = struct{}{}
	}
	return next
}

// AddResource registers a static resource keyed by its URI.
func (rc *ResourcesContainer) AddResource(def StaticResource) error {
	uri := def.Descriptor.URI
	if uri == "" {
		return fmt.Errorf("resource uri must not be empty")
	}
	if def.Descriptor.Name == "" {
		def.Descriptor.Name = uri
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	cur := rc.snap.Load()
	if _, exists := cur.byURI[uri]; exists {
		return duplicateName(KindResource, uri)
	}
	next := cur.clone()
	next.resources = append(next.resources, def.Descriptor)
	next.byURI[uri] = def
	rc.snap.Store(next)
	return nil
}

// AddTemplate registers a resource template keyed by its template string.
// The template is parsed as an RFC 6570 URI template.
func (rc *ResourcesContainer) AddTemplate(def StaticResourceTemplate) error {
	raw := def.Descriptor.URITemplate
	if raw == "" {
		return fmt.Errorf("resource template must not be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("resource template %q has no handler", raw)
	}
	tpl, err := uritemplate.New(raw)
	if err != nil {
		return fmt.Errorf("resource template %q: %w", raw, err)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	cur := rc.snap.Load()
	if _, exists := cur.byTpl[raw]; exists {
		return duplicateName(KindResourceTemplate, raw)
	}
	next := cur.clone()
	next.templates = append(next.templates, def.Descriptor)
	next.entries = append(next.entries, &templateEntry{def: def, tpl: tpl})
	next.byTpl[raw] = struct{}{}
	rc.snap.Store(next)
	return nil
}

// SnapshotResources returns a copy of the current resource descriptors.
func (rc *ResourcesContainer) SnapshotResources() []mcp.Resource {
	return append([]mcp.Resource(nil), rc.snap.Load().resources...)
}

// SnapshotTemplates returns a copy of the current template descriptors.
func (rc *ResourcesContainer) SnapshotTemplates() []mcp.ResourceTemplate {
	return append([]mcp.ResourceTemplate(nil), rc.snap.Load().templates...)
}

// ResolvedResource is the outcome of a successful ResolveResource.
type ResolvedResource struct {
	// Template is nil when the URI named a static resource.
	Template *mcp.ResourceTemplate
	Vars     map[string]string

	read func(ctx context.Context, session sessions.Session) ([]mcp.ResourceContents, error)
}

// Read produces the resource contents.
func (r *ResolvedResource) Read(ctx context.Context, session sessions.Session) ([]mcp.ResourceContents, error) {
	return r.read(ctx, session)
}

// ResolveResource finds the resource addressed by uri. Static resources take
// precedence; otherwise templates are tried in registration order. A template
// match binding any variable to the empty string does not count.
func (rc *ResourcesContainer) ResolveResource(uri string) (*ResolvedResource, bool) {
	cur := rc.snap.Load()
	if r, ok := cur.byURI[uri]; ok {
		return &ResolvedResource{read: staticReader(r, uri)}, true
	}
	for _, e := range cur.entries {
		vars, ok := matchTemplate(e.tpl, uri)
		if !ok {
			continue
		}
		desc := e.def.Descriptor
		h := e.def.Handler
		return &ResolvedResource{
			Template: &desc,
			Vars:     vars,
			read: func(ctx context.Context, session sessions.Session) ([]mcp.ResourceContents, error) {
				return h(ctx, session, uri, vars)
			},
		}, true
	}
	return nil, false
}

func staticReader(r StaticResource, uri string) func(context.Context, sessions.Session) ([]mcp.ResourceContents, error) {
	if r.Handler != nil {
		h := r.Handler
		return func(ctx context.Context, session sessions.Session) ([]mcp.ResourceContents, error) {
			return h(ctx, session, uri)
		}
	}
	contents := r.Contents
	return func(context.Context, sessions.Session) ([]mcp.ResourceContents, error) {
		return append([]mcp.ResourceContents(nil), contents...), nil
	}
}

func matchTemplate(tpl *uritemplate.Template, uri string) (map[string]string, bool) {
	values := tpl.Match(uri)
	if values == nil {
		return nil, false
	}
	names := tpl.Varnames()
	vars := make(map[string]string, len(names))
	for _, name := range names {
		v := values.Get(name).String()
		if v == "" {
			return nil, false
		}
		vars[name] = v
	}
	return vars, true
}

// ListResources implements ResourcesCapability.
func (rc *ResourcesContainer) ListResources(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Resource], error) {
	return pageSlice(rc.snap.Load().resources, int(rc.pageSize.Load()), cursor)
}

// ListResourceTemplates implements ResourcesCapability.
func (rc *ResourcesContainer) ListResourceTemplates(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.ResourceTemplate], error) {
	return pageSlice(rc.snap.Load().templates, int(rc.pageSize.Load()), cursor)
}

// ReadResource implements ResourcesCapability.
func (rc *ResourcesContainer) ReadResource(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error) {
	if uri == "" {
		return nil, mcperr.InvalidParams("missing resource uri")
	}
	r, ok := rc.ResolveResource(uri)
	if !ok {
		return nil, notFound(KindResource, uri)
	}
	contents, err := r.Read(ctx, session)
	if err != nil {
		return nil, handlerError(ctx, err)
	}
	if contents == nil {
		contents = []mcp.ResourceContents{}
	}
	return contents, nil
}
