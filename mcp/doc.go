// Package mcp contains protocol data types and constants shared across
// transports and server capability implementations. It mirrors the wire
// representation of the Model Context Protocol while keeping the surface
// Go-friendly (exported structs with json tags, string constants for method
// names).
//
// The package is free of transport logic: the stdio and streaming HTTP
// transports import these types but implement their own framing and session
// handling. Higher-level server packages (mcpservice) construct results
// using these concrete types and hand them to the engine for JSON-RPC
// serialization.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod).
//
// # Pagination
//
// List operations use cursor-based pagination. PaginatedRequest and
// PaginatedResult are embedded in request / result envelopes.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
//
// # Compatibility
//
// LatestProtocolVersion reflects the most recent protocol revision the
// server targets. SupportedProtocolVersions lists the revisions accepted
// during the initialize handshake.
package mcp
