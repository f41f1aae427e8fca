package hub

import (
	"sync"
)

// DefaultPendingLimit is the default cap, in bytes, on output buffered for a
// session before any viewer has attached. When the cap is exceeded the
// oldest chunks are dropped. Zero disables the cap entirely.
const DefaultPendingLimit = 4 * 1024 * 1024

// InputState is the authoritative not-yet-submitted input line for a
// session. CursorOffset counts runes and is always within the text bounds.
type InputState struct {
	Text         string
	CursorOffset int
	OriginID     string
	EditedAt     int64
}

// Authority identifies whose preferred terminal size is currently binding
// on the pseudo-terminal.
type Authority string

const (
	// AuthorityLocal means the local window's fitted size drives the PTY.
	AuthorityLocal Authority = "local"

	// AuthorityRemote means a remote viewer's reported size drives the
	// PTY; local window resizes are measured but not applied.
	AuthorityRemote Authority = "remote"
)

// GeometryState tracks the negotiated terminal size for a session.
type GeometryState struct {
	// Rows and Cols are the pseudo-terminal's actual current size.
	Rows int
	Cols int

	// Authority says which party's size is binding.
	Authority Authority

	// LocalRows and LocalCols are the local window's most recently
	// measured fitted size. Kept up to date even under remote authority
	// so the size can be restored when the viewer detaches.
	LocalRows int
	LocalCols int

	// RemoteRows and RemoteCols are the most recently reported remote
	// viewer size. Meaningful only under remote authority.
	RemoteRows int
	RemoteCols int
}

// WaitingState tracks whether the assistant is waiting for the user.
type WaitingState struct {
	Type      WaitType
	Prompt    string
	Timestamp int64
}

// Session holds all synchronized state for one terminal session. All access
// goes through the owning Hub; the mutex serializes mutation per session as
// required when hub callbacks run on multiple goroutines.
type Session struct {
	// ID is the opaque session identifier, stable for the session's life.
	ID string

	mu sync.Mutex

	// pending holds output chunks produced before the first attach, in
	// production order. Drained exactly once by Attach.
	pending      [][]byte
	pendingBytes int

	// live is set by the first attach. Once live, output is delivered
	// directly and never buffered again.
	live bool

	input    InputState
	geometry GeometryState
	waiting  WaitingState
}

// Registry is the process-wide mapping from session identifier to session
// state. Sessions are created lazily on first output or first attach and
// removed only by explicit disposal.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// pendingLimit caps the pre-attach output buffer per session, in
	// bytes. Zero means unbounded.
	pendingLimit int
}

// NewRegistry creates an empty registry with the default pre-attach buffer
// cap.
func NewRegistry() *Registry {
	return NewRegistryWithLimit(DefaultPendingLimit)
}

// NewRegistryWithLimit creates an empty registry with a custom pre-attach
// buffer cap in bytes. Zero disables the cap; negative values fall back to
// the default.
func NewRegistryWithLimit(pendingLimit int) *Registry {
	if pendingLimit < 0 {
		pendingLimit = DefaultPendingLimit
	}
	return &Registry{
		sessions:     make(map[string]*Session),
		pendingLimit: pendingLimit,
	}
}

// GetOrCreate returns the session for id, allocating it on first use with an
// empty buffer, empty input state, local-authority geometry, and no pending
// wait.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the write lock; another goroutine may have won.
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s = &Session{
		ID: id,
		geometry: GeometryState{
			Authority: AuthorityLocal,
		},
		waiting: WaitingState{Type: WaitNone},
	}
	r.sessions[id] = s
	return s
}

// Get returns the session for id, or nil if it was never created.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Dispose releases all state held for id. Idempotent; disposing an unknown
// id is a no-op.
func (r *Registry) Dispose(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	s.mu.Lock()
	s.pending = nil
	s.pendingBytes = 0
	s.live = false
	s.mu.Unlock()
}

// Count returns the number of registered sessions. Useful for tests and
// status reporting.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// bufferOutput appends chunk to the session's pre-attach buffer, evicting
// the oldest chunks if the registry's byte cap is exceeded. Returns false if
// the session is live and the chunk should be delivered directly instead.
// The caller must not hold s.mu.
func (s *Session) bufferOutput(chunk []byte, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live {
		return false
	}

	// Copy: callers commonly reuse their read buffer.
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.pending = append(s.pending, c)
	s.pendingBytes += len(c)

	if limit > 0 {
		for s.pendingBytes > limit && len(s.pending) > 1 {
			s.pendingBytes -= len(s.pending[0])
			s.pending = s.pending[1:]
		}
	}
	return true
}

// drainPending returns and clears the buffered chunks, marking the session
// live. A second call returns nil: the buffer is replayed exactly once.
func (s *Session) drainPending() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := s.pending
	s.pending = nil
	s.pendingBytes = 0
	s.live = true
	return chunks
}

// drainPendingTo delivers the buffered chunks through deliver and then marks
// the session live, all while holding the session mutex. A concurrent
// bufferOutput blocks until delivery completes, so a chunk published during
// the replay is either part of it or goes live strictly after it; nothing
// can land between replayed chunks.
func (s *Session) drainPendingTo(deliver func(chunk []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.pending {
		deliver(c)
	}
	s.pending = nil
	s.pendingBytes = 0
	s.live = true
}

// IsLive reports whether a viewer or terminal has attached to the session.
func (s *Session) IsLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// InputSnapshot returns a copy of the current input state.
func (s *Session) InputSnapshot() InputState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// GeometrySnapshot returns a copy of the current geometry state.
func (s *Session) GeometrySnapshot() GeometryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geometry
}

// WaitingSnapshot returns a copy of the current waiting state.
func (s *Session) WaitingSnapshot() WaitingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}
