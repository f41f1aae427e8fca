package hub

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// Bus is the outbound half of the event transport. Publish is
// fire-and-forget: the hub never waits for delivery, and a failed or
// dropped publish is repaired by the next full-snapshot event or by a
// catch-up request.
type Bus interface {
	Publish(topic Topic, payload any)
}

// Terminal is the pseudo-terminal collaborator. Both operations are
// fire-and-forget from the hub's perspective; errors (for example a resize
// on a session that is no longer active) are logged by the hub and
// swallowed, never surfaced to its callers.
type Terminal interface {
	// SendInput writes raw bytes to the session's pseudo-terminal.
	SendInput(sessionID string, data []byte) error

	// Resize changes the pseudo-terminal's row/column geometry.
	Resize(sessionID string, rows, cols int) error
}

// AuditStore records session activity and waiting-state transitions for
// later inspection. Implementations must tolerate high call rates; the hub
// logs and ignores every error it returns.
type AuditStore interface {
	// TouchSession marks the session as recently active.
	TouchSession(sessionID string, at time.Time) error

	// RecordWaiting logs a waiting-state transition. clearedBy is empty
	// while the wait is pending, otherwise one of "prompt-cleared" or
	// "assistant-message".
	RecordWaiting(sessionID string, wait WaitType, prompt string, at time.Time, clearedBy string) error
}

// Hub routes output, input-state, geometry, and waiting-state events
// between the local terminal and any number of attached viewers. It owns
// the session registry; all mutation of session state goes through the hub.
type Hub struct {
	registry *Registry
	bus      Bus
	term     Terminal
	store    AuditStore

	// originID tags every input-state event this process publishes. It is
	// minted once per process lifetime and used solely for echo
	// suppression; it carries no authority semantics.
	originID string

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// Option configures a Hub at construction time.
type Option func(*Hub)

// WithAuditStore attaches a store for session and waiting-state audit rows.
func WithAuditStore(store AuditStore) Option {
	return func(h *Hub) { h.store = store }
}

// WithClock replaces the hub's clock. Tests use this to make last-write-wins
// timestamps deterministic.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// WithOriginID overrides the minted origin identifier. Tests use this to
// simulate specific devices.
func WithOriginID(id string) Option {
	return func(h *Hub) { h.originID = id }
}

// New creates a hub publishing to bus and driving term. The registry is
// created empty; sessions appear lazily on first output or first attach.
func New(registry *Registry, bus Bus, term Terminal, opts ...Option) *Hub {
	h := &Hub{
		registry: registry,
		bus:      bus,
		term:     term,
		originID: uuid.New().String(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OriginID returns the identifier tagging this process's input-state events.
func (h *Hub) OriginID() string {
	return h.originID
}

// Registry exposes the session registry, primarily for status reporting.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Dispose releases all state for a session. Idempotent.
func (h *Hub) Dispose(sessionID string) {
	h.registry.Dispose(sessionID)
}

// ---------------------------------------------------------------------------
// Output path
// ---------------------------------------------------------------------------

// PublishOutput delivers one chunk of raw terminal output. While no viewer
// has attached the chunk is buffered; once the session is live it is
// published directly. A chunk is never delivered twice and never dropped
// between PublishOutput and the corresponding Attach (up to the registry's
// configured buffer cap).
func (h *Hub) PublishOutput(sessionID string, chunk []byte) {
	s := h.registry.GetOrCreate(sessionID)
	if s.bufferOutput(chunk, h.registry.pendingLimit) {
		return
	}
	h.bus.Publish(TopicOutput, OutputEvent{
		SessionID: sessionID,
		Raw:       string(chunk),
		Timestamp: h.now().UnixMilli(),
	})
	h.touch(sessionID)
}

// Attach marks the session live and returns every chunk buffered before
// attach, in production order. Only the first attach for a session drains
// the buffer; later attaches return nil because the session is already live
// and all output flows directly.
//
// The returned slice is a snapshot: the session is live the moment Attach
// returns, so output published concurrently with the caller's replay loop
// is broadcast and may overtake it. Callers that deliver the replay to a
// viewer must use AttachWith instead.
func (h *Hub) Attach(sessionID string) [][]byte {
	s := h.registry.GetOrCreate(sessionID)
	return s.drainPending()
}

// AttachWith delivers every buffered chunk through deliver, in production
// order, and then marks the session live. The delivery and the live
// transition are atomic with respect to PublishOutput: a chunk published
// while the replay runs is either included in it or broadcast strictly
// after the last replayed chunk. deliver runs with the session locked and
// must not call back into the hub.
func (h *Hub) AttachWith(sessionID string, deliver func(chunk []byte)) {
	s := h.registry.GetOrCreate(sessionID)
	s.drainPendingTo(deliver)
}

// ---------------------------------------------------------------------------
// Input path
// ---------------------------------------------------------------------------

// HandleLocalToken interprets one raw input token typed at the owning
// terminal: the tracker state is updated, the new full snapshot is
// broadcast tagged with the local origin, and the raw token is forwarded
// unchanged to the pseudo-terminal. This is the only path that reaches the
// pseudo-terminal from the input tracker.
func (h *Hub) HandleLocalToken(sessionID, token string) {
	s := h.registry.GetOrCreate(sessionID)

	s.mu.Lock()
	applyToken(&s.input, token)
	s.input.OriginID = h.originID
	s.input.EditedAt = h.now().UnixMilli()
	snapshot := s.input
	s.mu.Unlock()

	h.publishInputState(sessionID, snapshot)

	if err := h.term.SendInput(sessionID, []byte(token)); err != nil {
		log.Printf("hub: forward input to session %s: %v", sessionID, err)
	}
	h.touch(sessionID)
}

// HandleInputState applies an input-state event received from the bus.
// Events carrying this process's own origin are discarded without effect (a
// device must never re-apply its own broadcast). Events older than the
// tracked state lose: conflicts resolve last-write-wins by timestamp, not
// by arrival order. Accepted states replace the tracker wholesale and are
// re-broadcast so every other viewer converges; nothing is forwarded to the
// pseudo-terminal, because remote drafts are visible-state only until the
// remote device explicitly submits.
func (h *Hub) HandleInputState(ev InputStateEvent) {
	if ev.OriginID == h.originID {
		return
	}

	s := h.registry.GetOrCreate(ev.SessionID)

	s.mu.Lock()
	if ev.EditedAt < s.input.EditedAt {
		s.mu.Unlock()
		return
	}
	if ev.CursorOffset < 0 {
		ev.CursorOffset = 0
	}
	if n := len([]rune(ev.Text)); ev.CursorOffset > n {
		ev.CursorOffset = n
	}
	s.input = InputState{
		Text:         ev.Text,
		CursorOffset: ev.CursorOffset,
		OriginID:     ev.OriginID,
		EditedAt:     ev.EditedAt,
	}
	snapshot := s.input
	s.mu.Unlock()

	h.publishInputState(ev.SessionID, snapshot)
	h.touch(ev.SessionID)
}

// HandleTyping relays a typing indicator to other viewers. Echo-suppressed
// like input state; it never touches the tracked line.
func (h *Hub) HandleTyping(ev TypingEvent) {
	if ev.OriginID == h.originID {
		return
	}
	h.bus.Publish(TopicInputTyping, ev)
}

// RequestInputState answers a catch-up request by re-publishing the current
// input state (empty text if no edit ever happened), so a viewer that
// attached mid-session matches reality without waiting for the next edit.
func (h *Hub) RequestInputState(sessionID string) {
	s := h.registry.GetOrCreate(sessionID)
	h.publishInputState(sessionID, s.InputSnapshot())
}

// SendRawInput forwards bytes straight to the pseudo-terminal. This is the
// submit path for remote viewers: a complete message, sent outside the
// draft-sync protocol. Failures are logged and swallowed.
func (h *Hub) SendRawInput(sessionID string, data []byte) {
	if err := h.term.SendInput(sessionID, data); err != nil {
		log.Printf("hub: raw input to session %s: %v", sessionID, err)
	}
	h.touch(sessionID)
}

func (h *Hub) publishInputState(sessionID string, st InputState) {
	h.bus.Publish(TopicInputState, InputStateEvent{
		SessionID:    sessionID,
		Text:         st.Text,
		CursorOffset: st.CursorOffset,
		OriginID:     st.OriginID,
		EditedAt:     st.EditedAt,
	})
}

// ---------------------------------------------------------------------------
// Geometry path
// ---------------------------------------------------------------------------

// HandleViewerGeometry processes a viewer attach/detach announcement. On
// attach the viewer's reported size becomes binding (remote authority, last
// attach wins); on detach the local window's fitted size is restored. A
// resize that fails, for example because the session's pseudo-terminal is
// no longer active, is a logged no-op.
func (h *Hub) HandleViewerGeometry(ev ViewerGeometryEvent) {
	s := h.registry.GetOrCreate(ev.SessionID)

	s.mu.Lock()
	rows, cols, ok := applyViewerGeometry(&s.geometry, ev)
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := h.term.Resize(ev.SessionID, rows, cols); err != nil {
		log.Printf("hub: resize session %s to %dx%d: %v", ev.SessionID, rows, cols, err)
	}
}

// SetLocalSize records a newly measured local window fitted size. Under
// local authority the pseudo-terminal follows it; under remote authority
// the measurement is kept for restoration on detach but no resize happens,
// because the remote dimensions take precedence.
func (h *Hub) SetLocalSize(sessionID string, rows, cols int) {
	s := h.registry.GetOrCreate(sessionID)

	s.mu.Lock()
	ok := applyLocalSize(&s.geometry, rows, cols)
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := h.term.Resize(sessionID, rows, cols); err != nil {
		log.Printf("hub: resize session %s to %dx%d: %v", sessionID, rows, cols, err)
	}
}

// ---------------------------------------------------------------------------
// Waiting-state path
// ---------------------------------------------------------------------------

// PromptDetected records that the assistant displayed a prompt and
// classifies it: approval-style prompts (a yes/no or allow/deny choice)
// enter the tool-approval wait, everything else the plain response wait.
// The full new state is published so viewers update without polling.
func (h *Hub) PromptDetected(sessionID, content string) {
	s := h.registry.GetOrCreate(sessionID)
	waitType := ClassifyPrompt(content)
	ts := h.now().UnixMilli()

	s.mu.Lock()
	s.waiting = WaitingState{Type: waitType, Prompt: content, Timestamp: ts}
	s.mu.Unlock()

	h.bus.Publish(TopicWaitingForInput, WaitingEvent{
		SessionID:     sessionID,
		WaitType:      waitType,
		PromptContent: content,
		Timestamp:     ts,
	})
	h.audit(sessionID, waitType, content, "")
}

// PromptCleared records that the pending prompt was answered or dismissed.
// This is the only signal that clears a tool-approval wait.
func (h *Hub) PromptCleared(sessionID string) {
	s := h.registry.GetOrCreate(sessionID)

	s.mu.Lock()
	s.waiting = WaitingState{Type: WaitNone}
	s.mu.Unlock()

	h.bus.Publish(TopicWaitingCleared, WaitingClearedEvent{SessionID: sessionID})
	h.audit(sessionID, WaitNone, "", "prompt-cleared")
}

// AssistantMessage records that the assistant produced a new message. A
// plain response wait is thereby resolved; a tool-approval wait is not,
// it must be cleared by an explicit user response via PromptCleared.
func (h *Hub) AssistantMessage(sessionID string) {
	s := h.registry.GetOrCreate(sessionID)

	s.mu.Lock()
	cleared := clearWaitingOnMessage(&s.waiting)
	s.mu.Unlock()

	if !cleared {
		return
	}
	h.bus.Publish(TopicWaitingCleared, WaitingClearedEvent{SessionID: sessionID})
	h.audit(sessionID, WaitNone, "", "assistant-message")
}

// RequestWaitingState answers a catch-up request by re-publishing the
// current waiting state. When no wait is pending it still actively
// publishes a cleared event rather than staying silent, so a device that
// previously believed a wait was pending is corrected.
func (h *Hub) RequestWaitingState(sessionID string) {
	s := h.registry.GetOrCreate(sessionID)
	w := s.WaitingSnapshot()

	if w.Type == WaitNone {
		h.bus.Publish(TopicWaitingCleared, WaitingClearedEvent{SessionID: sessionID})
		return
	}
	h.bus.Publish(TopicWaitingForInput, WaitingEvent{
		SessionID:     sessionID,
		WaitType:      w.Type,
		PromptContent: w.Prompt,
		Timestamp:     w.Timestamp,
	})
}

// ---------------------------------------------------------------------------
// Audit helpers
// ---------------------------------------------------------------------------

func (h *Hub) touch(sessionID string) {
	if h.store == nil {
		return
	}
	if err := h.store.TouchSession(sessionID, h.now()); err != nil {
		log.Printf("hub: touch session %s: %v", sessionID, err)
	}
}

func (h *Hub) audit(sessionID string, wait WaitType, prompt, clearedBy string) {
	if h.store == nil {
		return
	}
	if err := h.store.RecordWaiting(sessionID, wait, prompt, h.now(), clearedBy); err != nil {
		log.Printf("hub: record waiting for session %s: %v", sessionID, err)
	}
}
