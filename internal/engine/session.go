package engine

import (
	"context"
	"sync"

	"github.com/ggoodman/mcp-starter-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-starter-go/sessions"
)

var _ sessions.Session = (*Session)(nil)

// Session is the live, process-local side of an MCP session: its lifecycle
// state and the requests currently in flight. The durable part lives in the
// engine's sessions.SessionHost once the handshake completes.
type Session struct {
	mu              sync.Mutex
	sessionID       string
	state           sessions.SessionState
	protocolVersion string
	client          sessions.MetadataClientInfo
	caps            sessions.CapabilitySet

	inflight map[string]context.CancelCauseFunc
	done     chan struct{}
}

func newSession() *Session {
	return &Session{
		state:    sessions.StateUninitialized,
		inflight: make(map[string]context.CancelCauseFunc),
		done:     make(chan struct{}),
	}
}

// sessionFromMetadata rebuilds an initialized session from its host record.
func sessionFromMetadata(meta *sessions.Metadata) *Session {
	s := newSession()
	s.sessionID = meta.SessionID
	s.state = sessions.StateInitialized
	s.protocolVersion = meta.ProtocolVersion
	s.client = meta.Client
	s.caps = meta.Capabilities
	return s
}

func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) State() sessions.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

func (s *Session) ClientInfo() sessions.MetadataClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Session) ClientCapabilities() sessions.CapabilitySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// InFlight returns the number of pending requests.
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// begin registers id as pending and returns a cancellable child context plus
// a release func that must be called when the request completes.
func (s *Session) begin(ctx context.Context, id *jsonrpc.RequestID) (context.Context, func(), error) {
	key := id.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == sessions.StateClosed {
		return nil, nil, ErrSessionClosed
	}
	if _, exists := s.inflight[key]; exists {
		return nil, nil, errDuplicateID
	}
	reqCtx, cancel := context.WithCancelCause(ctx)
	s.inflight[key] = cancel

	release := func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
		cancel(context.Canceled)
	}
	return reqCtx, release, nil
}

// cancel cancels the pending request with the given id key. It reports
// whether a request was found.
func (s *Session) cancel(key string, cause error) bool {
	s.mu.Lock()
	c, ok := s.inflight[key]
	s.mu.Unlock()
	if ok {
		c(cause)
	}
	return ok
}

// markInitialized transitions uninitialized -> initialized. It fails if the
// session has already left the uninitialized state.
func (s *Session) markInitialized(id, version string, client sessions.MetadataClientInfo, caps sessions.CapabilitySet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != sessions.StateUninitialized {
		return false
	}
	s.sessionID = id
	s.protocolVersion = version
	s.client = client
	s.caps = caps
	s.state = sessions.StateInitialized
	return true
}

// revertInitialized undoes markInitialized after a failed handshake.
func (s *Session) revertInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != sessions.StateInitialized {
		return
	}
	s.sessionID = ""
	s.protocolVersion = ""
	s.client = sessions.MetadataClientInfo{}
	s.caps = sessions.CapabilitySet{}
	s.state = sessions.StateUninitialized
}

// close moves the session to closed and cancels every pending request with
// ErrSessionClosed. It reports whether this call performed the transition.
func (s *Session) close() bool {
	s.mu.Lock()
	if s.state == sessions.StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = sessions.StateClosed
	cancels := make([]context.CancelCauseFunc, 0, len(s.inflight))
	for _, c := range s.inflight {
		cancels = append(cancels, c)
	}
	s.mu.Unlock()

	for _, c := range cancels {
		c(ErrSessionClosed)
	}
	close(s.done)
	return true
}
