// Package server provides the WebSocket event bus that carries
// synchronization traffic between the host and its viewers. Each WebSocket
// message is an envelope whose type is one of the hub's topics (plus a few
// transport-level types); payloads are the hub's event structs, serialized
// as JSON.
package server

import (
	"time"

	"github.com/tandemterm/host/internal/hub"
)

// MessageType identifies the kind of message being sent over WebSocket.
// Synchronization topics reuse the hub's topic names verbatim so the wire
// protocol and the hub protocol stay one and the same.
type MessageType string

const (
	// MessageTypeOutput carries raw terminal output.
	// Payload: hub.OutputEvent. Direction: host -> viewers.
	MessageTypeOutput = MessageType(hub.TopicOutput)

	// MessageTypeInputState carries a full snapshot of the unsent input
	// line. Payload: hub.InputStateEvent. Direction: bidirectional.
	MessageTypeInputState = MessageType(hub.TopicInputState)

	// MessageTypeInputTyping carries a typing indicator.
	// Payload: hub.TypingEvent. Direction: bidirectional.
	MessageTypeInputTyping = MessageType(hub.TopicInputTyping)

	// MessageTypeRequestInputState asks for an input-state snapshot.
	// Payload: hub.RequestEvent. Direction: viewer -> host.
	MessageTypeRequestInputState = MessageType(hub.TopicRequestInputState)

	// MessageTypeViewerGeometry announces viewer attach/detach with the
	// viewer's preferred terminal size.
	// Payload: hub.ViewerGeometryEvent. Direction: viewer -> host.
	MessageTypeViewerGeometry = MessageType(hub.TopicViewerGeometry)

	// MessageTypeWaitingForInput announces a pending wait.
	// Payload: hub.WaitingEvent. Direction: host -> viewers.
	MessageTypeWaitingForInput = MessageType(hub.TopicWaitingForInput)

	// MessageTypeWaitingCleared announces that no wait is pending.
	// Payload: hub.WaitingClearedEvent. Direction: host -> viewers.
	MessageTypeWaitingCleared = MessageType(hub.TopicWaitingCleared)

	// MessageTypeRequestWaitingState asks for a waiting-state snapshot.
	// Payload: hub.RequestEvent. Direction: viewer -> host.
	MessageTypeRequestWaitingState = MessageType(hub.TopicRequestWaitingState)

	// MessageTypeTerminalInput submits raw bytes to the pseudo-terminal.
	// This is the explicit submit path, distinct from draft syncing:
	// drafts never reach the terminal, submitted input always does.
	// Payload: TerminalInputPayload. Direction: viewer -> host.
	MessageTypeTerminalInput MessageType = "terminal-input"

	// MessageTypeError reports a request failure to the offending client.
	// Payload: ErrorPayload. Direction: host -> one viewer.
	MessageTypeError MessageType = "error"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	// Type identifies what kind of message this is.
	Type MessageType `json:"type"`

	// Payload contains the message-specific data. The structure depends
	// on the Type field.
	Payload any `json:"payload"`
}

// TerminalInputPayload carries submitted input for the pseudo-terminal.
type TerminalInputPayload struct {
	// SessionID identifies which session to send input to.
	SessionID string `json:"session_id"`

	// Data is the raw input to send, exactly as it should reach the
	// terminal (including the trailing newline for a submitted message).
	Data string `json:"data"`

	// Timestamp is when the input was sent (Unix milliseconds). Used for
	// latency debugging only.
	Timestamp int64 `json:"timestamp"`
}

// ErrorPayload carries error information to a client.
type ErrorPayload struct {
	// Code is a stable error code for programmatic handling.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// NewOutputMessage creates a pty-output message for one chunk.
func NewOutputMessage(sessionID string, chunk []byte) Message {
	return Message{
		Type: MessageTypeOutput,
		Payload: hub.OutputEvent{
			SessionID: sessionID,
			Raw:       string(chunk),
			Timestamp: time.Now().UnixMilli(),
		},
	}
}

// NewErrorMessage creates an error message to send to a client.
func NewErrorMessage(code, message string) Message {
	return Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}
