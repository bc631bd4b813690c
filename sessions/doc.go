// Package sessions defines the session abstraction shared by MCP transports
// and server capability code. A session represents the negotiated protocol
// version and client capability surface for a connected client.
//
// Layers & Roles
//
//	Transport      -> frames messages, maps a connection or token to a session
//	Engine         -> drives the handshake, owns in-flight request state
//	SessionHost    -> persists metadata with a sliding idle TTL
//	Session object -> per-session view exposed to capability code
//
// # Host Interface
//
// SessionHost stores Metadata created at the end of the initialize
// handshake. Every request touches the session, extending its idle deadline.
// Once a session idles past its TTL the host reports ErrSessionNotFound and
// the client must perform a fresh handshake.
//
// Implementations
//
//	memoryhost : in-memory reference used for tests and single-process servers
//	redishost  : Redis backed implementation for horizontal scale and restarts
//
// Both are exercised by the shared conformance suite in sessionhosttest.
package sessions
