package sessions

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	StateUninitialized SessionState = "uninitialized"
	StateInitialized   SessionState = "initialized"
	StateClosed        SessionState = "closed"
)

// Session is the per-session view handed to capability code.
type Session interface {
	// SessionID is empty until the initialize handshake completes.
	SessionID() string
	State() SessionState
	ProtocolVersion() string
	ClientInfo() MetadataClientInfo
	ClientCapabilities() CapabilitySet
}
