package mcpservice

import (
	"github.com/ggoodman/mcp-starter-go/mcperr"
)

// Kind tags the closed set of capability descriptor kinds.
type Kind string

const (
	KindTool             Kind = "tool"
	KindResource         Kind = "resource"
	KindResourceTemplate Kind = "resource_template"
	KindPrompt           Kind = "prompt"
)

// DefaultPageSize is the number of items per list page unless overridden.
const DefaultPageSize = 50

// ErrDuplicateName matches any registration that collides with an existing
// (kind, name) pair.
var ErrDuplicateName = mcperr.ErrDuplicateName

func duplicateName(kind Kind, name string) error {
	return mcperr.New(mcperr.KindDuplicateName, "%s %q is already registered", kind, name)
}

func notFound(kind Kind, name string) error {
	return mcperr.MethodNotFound("%s not found: %s", kind, name)
}
