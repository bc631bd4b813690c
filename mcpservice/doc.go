// Package mcpservice provides the capability registry consumed by the engine:
// append-only containers for tools, resources (static and URI templates) and
// prompts, plus a Server that composes them with server info, instructions
// and protocol preference.
//
// Containers are copy-on-write. Registration serializes on a mutex and
// publishes a fresh snapshot; dispatch reads one snapshot without locking,
// so a request never observes a half-applied registration.
//
// Quick start:
//
//	type HelloArgs struct {
//	    Name string `json:"name" jsonschema:"description=Who to greet"`
//	}
//
//	tools, err := mcpservice.NewToolsContainer(
//	    mcpservice.NewTool("hello", func(ctx context.Context, _ sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[HelloArgs]) error {
//	        return w.AppendText("Hello, " + r.Args().Name + "!")
//	    }, mcpservice.WithToolDescription("Say hello")),
//	)
//	if err != nil {
//	    return err
//	}
//
//	res := mcpservice.NewResourcesContainer()
//	_ = res.AddTemplate(mcpservice.StaticResourceTemplate{
//	    Descriptor: mcp.ResourceTemplate{URITemplate: "item://{id}", Name: "item"},
//	    Handler: func(ctx context.Context, _ sessions.Session, uri string, vars map[string]string) ([]mcp.ResourceContents, error) {
//	        return []mcp.ResourceContents{{URI: uri, Text: vars["id"]}}, nil
//	    },
//	})
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//	    mcpservice.WithToolsContainer(tools),
//	    mcpservice.WithResourcesContainer(res),
//	)
//
// Tool arguments are validated against the advertised input schema before a
// handler runs. Failures surface as *mcperr.Error values so transports can
// render them without leaking internal detail.
package mcpservice
