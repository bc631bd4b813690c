// Package stdio implements a single-connection MCP transport over
// stdin/stdout. It is intended for embedding servers as subprocesses and for
// local development.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Sessions         : one implicit session for the lifetime of the stream
//	Transport        : newline-delimited JSON-RPC
//	Logging          : the configured logger only; stdout carries protocol bytes
//
// Example:
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "my-stdio-server", Version: "0.1.0"}),
//	    mcpservice.WithToolsContainer(tools),
//	)
//	h := stdio.NewHandler(srv, stdio.WithLogger(logger))
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
//
// For multi-session deployments prefer the streaming HTTP transport, which
// integrates with shared session hosts.
package stdio
