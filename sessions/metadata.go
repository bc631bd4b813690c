package sessions

import "time"

// CapabilitySet captures the client capability surface negotiated at
// session creation. Booleans keep it cheap to serialize and compare.
type CapabilitySet struct {
	Roots            bool `json:"roots,omitempty"`
	RootsListChanged bool `json:"roots_list_changed,omitempty"`
	Sampling         bool `json:"sampling,omitempty"`
	Elicitation      bool `json:"elicitation,omitempty"`
}

// MetadataClientInfo records client identity details supplied at
// initialization for observability / logging.
type MetadataClientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Metadata is the persisted representation of an initialized session.
//
// Everything except LastAccess is immutable after creation. IdleTTL is a
// sliding window: the host expires a session once LastAccess + IdleTTL < now.
type Metadata struct {
	MetaVersion     int                `json:"meta_version"`
	SessionID       string             `json:"session_id"`
	ProtocolVersion string             `json:"protocol_version,omitempty"`
	Client          MetadataClientInfo `json:"client,omitempty"`
	Capabilities    CapabilitySet      `json:"capabilities,omitempty"`

	CreatedAt  time.Time     `json:"created_at"`
	LastAccess time.Time     `json:"last_access"`
	IdleTTL    time.Duration `json:"idle_ttl"`
}

// Expired reports whether the session has idled past its TTL at now.
func (m *Metadata) Expired(now time.Time) bool {
	if m.IdleTTL <= 0 {
		return false
	}
	return now.After(m.LastAccess.Add(m.IdleTTL))
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	cp := *m
	return &cp
}
