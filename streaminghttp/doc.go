// Package streaminghttp implements the MCP streamable HTTP transport. It mounts
// as a standard net/http handler serving a single MCP endpoint (default /mcp)
// plus a /health probe.
//
// Routes
//   - POST /mcp: one JSON-RPC message per request. initialize is answered
//     with a JSON body and an Mcp-Session-Id header; other requests are
//     answered on a Server-Sent Events stream carrying any progress
//     notifications followed by the single terminal response. Notifications
//     and responses are acknowledged with 202.
//   - GET /mcp: a long-lived SSE stream for the session, kept alive with
//     comment heartbeats and ended when the session closes.
//   - DELETE /mcp: terminates the session named by Mcp-Session-Id.
//   - GET /health: plain-text "OK".
//
// Construction
//
//	h, err := streaminghttp.New(
//	    ctx,
//	    host,   // sessions.SessionHost implementation
//	    server, // mcpservice.ServerCapabilities
//	    streaminghttp.WithSessionIdleTTL(30*time.Minute),
//	)
//
// # Sessions
//
// Sessions are created by a POST of initialize without a session header and
// slide their idle deadline on every request. A background sweeper drops the
// local state of sessions the host has expired. A client presenting an
// unknown or evicted session id receives 404 and must initialize again.
//
// # Scaling
//
// Horizontal scale relies on a shared SessionHost such as redishost. Any
// node can serve any session; a node that has not seen the session before
// rebuilds it from the host record. In-flight requests belong to the node
// that received them.
//
// # Cross-origin access
//
// CORS is permissive by default so browser based inspectors can connect.
// Use WithCORSOptions to narrow it.
//
// # Error Handling
//
// Transport-level errors map to HTTP status codes; MCP-level errors are
// serialized as JSON-RPC error responses through mcperr.ToWire, so internal
// error detail is only ever logged.
package streaminghttp
