// Package redishost implements sessions.SessionHost on Redis so that several
// HTTP server replicas can share session state and sessions survive a
// process restart.
//
// Design Notes
//   - Metadata: JSON blob stored at <prefix>meta:<session id>
//   - Idle expiry: the key TTL is the session's IdleTTL; every touch resets it
//   - Touch uses SET XX so a deleted session is never resurrected
//
// Example:
//
//	host, _ := redishost.New(redishost.Config{RedisAddr: "localhost:6379"})
//	defer host.Close()
//
// Use memoryhost for ephemeral development; use redishost where scale-out or
// restart persistence is required.
package redishost
