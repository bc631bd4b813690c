// Package memoryhost provides an in-memory sessions.SessionHost implementation
// suitable for tests, development, stdio servers and single-process HTTP
// servers. All state is ephemeral and discarded on process exit.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Expiry            : lazy on access, plus a prune on every create
//	Concurrency       : safe (RWMutex)
//
// Example:
//
//	host := memoryhost.New()
//	// transport wires this host into streaminghttp.New(...)
//
// For multi-node deployments prefer a shared host like redishost.
package memoryhost
