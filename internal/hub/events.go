// Package hub implements the synchronization core that keeps every device
// viewing a terminal session in agreement about four pieces of state: raw
// terminal output, the not-yet-submitted input line, the terminal geometry,
// and whether the assistant is waiting for the user.
//
// The hub does not own a transport. It publishes full-snapshot events to a
// Bus and drives the pseudo-terminal through a Terminal, both narrow
// interfaces implemented elsewhere (internal/server and internal/pty). Every
// payload is a complete replacement of the state it describes, never a
// delta, so a dropped event is always repaired by the next one or by an
// explicit catch-up request.
package hub

// Topic names the event classes carried over the bus. Each topic has exactly
// one payload type; the bus guarantees per-topic publish order to each
// subscriber but nothing across topics or across publishers.
type Topic string

const (
	// TopicOutput carries raw terminal output chunks.
	// Payload: OutputEvent. Direction: hub -> viewers.
	TopicOutput Topic = "pty-output"

	// TopicInputState carries the full not-yet-submitted input line.
	// Payload: InputStateEvent. Direction: bidirectional.
	TopicInputState Topic = "input-state"

	// TopicInputTyping carries a typing indicator. This is deliberately a
	// separate topic from input-state; the two were once overloaded onto a
	// single message and disambiguated by field presence, which made
	// payloads untyped. Payload: TypingEvent. Direction: bidirectional.
	TopicInputTyping Topic = "input-typing"

	// TopicRequestInputState asks the hub to re-publish the current input
	// state for a session. Payload: RequestEvent. Direction: viewer -> hub.
	TopicRequestInputState Topic = "request-input-state"

	// TopicViewerGeometry announces a remote viewer attaching or detaching,
	// with its preferred terminal size while attached.
	// Payload: ViewerGeometryEvent. Direction: viewer -> hub.
	TopicViewerGeometry Topic = "mobile-viewing"

	// TopicWaitingForInput announces that the assistant is waiting for the
	// user. Payload: WaitingEvent. Direction: hub -> viewers.
	TopicWaitingForInput Topic = "waiting-for-input"

	// TopicWaitingCleared announces that a pending wait was resolved.
	// Payload: WaitingClearedEvent. Direction: hub -> viewers.
	TopicWaitingCleared Topic = "waiting-cleared"

	// TopicRequestWaitingState asks the hub to re-publish the current
	// waiting state. Payload: RequestEvent. Direction: viewer -> hub.
	TopicRequestWaitingState Topic = "request-waiting-state"
)

// OutputEvent carries one chunk of raw terminal output. Chunks are opaque
// and may contain control sequences; viewers feed them to a terminal
// emulator unmodified.
type OutputEvent struct {
	// SessionID identifies which session produced this output.
	SessionID string `json:"session_id"`

	// Raw is the output chunk exactly as read from the pseudo-terminal.
	Raw string `json:"raw"`

	// Timestamp is when the chunk was published (Unix milliseconds).
	Timestamp int64 `json:"timestamp"`
}

// InputStateEvent is a full snapshot of the not-yet-submitted input line.
// A newer EditedAt supersedes the previous state in full; there is no
// character-level merging.
type InputStateEvent struct {
	// SessionID identifies the session this draft belongs to.
	SessionID string `json:"session_id"`

	// Text is the complete draft line.
	Text string `json:"text"`

	// CursorOffset is the cursor position in runes, always within
	// [0, len(Text in runes)].
	CursorOffset int `json:"cursor_offset"`

	// OriginID tags the device that produced this state. It exists only
	// for echo suppression: a device discards events carrying its own id.
	OriginID string `json:"origin_id"`

	// EditedAt is when the edit happened (Unix milliseconds). Conflicts
	// between devices resolve last-write-wins on this timestamp.
	EditedAt int64 `json:"edited_at"`
}

// TypingEvent signals that a device started or stopped typing. Visible-state
// only; it never affects the tracked input line.
type TypingEvent struct {
	// SessionID identifies the session.
	SessionID string `json:"session_id"`

	// OriginID tags the typing device, for echo suppression.
	OriginID string `json:"origin_id"`

	// Typing is true while the device is actively editing.
	Typing bool `json:"typing"`

	// Timestamp is when the indicator changed (Unix milliseconds).
	Timestamp int64 `json:"timestamp"`
}

// ViewerGeometryEvent announces a remote viewer attaching (Connected true,
// with its preferred size) or detaching (Connected false).
type ViewerGeometryEvent struct {
	// SessionID identifies the session being viewed.
	SessionID string `json:"session_id"`

	// Connected is true on attach and false on detach.
	Connected bool `json:"connected"`

	// Rows is the viewer's preferred terminal height. Only meaningful
	// when Connected is true.
	Rows int `json:"rows,omitempty"`

	// Cols is the viewer's preferred terminal width. Only meaningful
	// when Connected is true.
	Cols int `json:"cols,omitempty"`
}

// WaitType classifies what kind of response the assistant is waiting for.
type WaitType string

const (
	// WaitNone means the assistant is not waiting.
	WaitNone WaitType = "none"

	// WaitResponse means the assistant asked a free-form question.
	WaitResponse WaitType = "awaiting_response"

	// WaitToolApproval means the assistant asked for a yes/no or
	// allow/deny decision before using a tool. Cleared only by an
	// explicit user response, never implicitly by a new message.
	WaitToolApproval WaitType = "awaiting_tool_approval"
)

// WaitingEvent is a full snapshot of the waiting state.
type WaitingEvent struct {
	// SessionID identifies the session.
	SessionID string `json:"session_id"`

	// WaitType is the current classification.
	WaitType WaitType `json:"wait_type"`

	// PromptContent is the detected prompt text, when available.
	PromptContent string `json:"prompt_content,omitempty"`

	// Timestamp is when the wait began (Unix milliseconds).
	Timestamp int64 `json:"timestamp"`
}

// WaitingClearedEvent announces that no wait is pending. It is published on
// every clearance, and also in reply to a catch-up request when the state is
// already none, so a viewer that wrongly believes a wait is pending gets
// corrected instead of waiting forever.
type WaitingClearedEvent struct {
	// SessionID identifies the session.
	SessionID string `json:"session_id"`
}

// RequestEvent is the payload of both catch-up requests. The hub answers by
// publishing the current snapshot on the corresponding state topic.
type RequestEvent struct {
	// SessionID identifies the session whose state is requested.
	SessionID string `json:"session_id"`
}
