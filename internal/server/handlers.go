package server

import (
	"encoding/json"
	"log"

	apperrors "github.com/tandemterm/host/internal/errors"
	"github.com/tandemterm/host/internal/hub"
)

// dispatch routes one inbound message to the hub. data is the raw frame;
// each handler re-parses it with the typed payload for its message type.
func (c *Client) dispatch(msgType MessageType, data []byte) {
	h := c.server.Hub()
	if h == nil {
		log.Printf("No hub wired, dropping %s message", msgType)
		return
	}

	switch msgType {
	case MessageTypeInputState:
		c.handleInputState(h, data)
	case MessageTypeInputTyping:
		c.handleInputTyping(h, data)
	case MessageTypeRequestInputState:
		c.handleRequestInputState(h, data)
	case MessageTypeViewerGeometry:
		c.handleViewerGeometry(h, data)
	case MessageTypeRequestWaitingState:
		c.handleRequestWaitingState(h, data)
	case MessageTypeTerminalInput:
		c.handleTerminalInput(h, data)
	default:
		log.Printf("Received message: type=%s", msgType)
	}
}

// handleInputState feeds a remote draft snapshot into the tracker. The hub
// decides whether it wins (last-write-wins by edit timestamp) and handles
// echo suppression and re-broadcast.
func (c *Client) handleInputState(h *hub.Hub, data []byte) {
	var msg struct {
		Type    MessageType         `json:"type"`
		Payload hub.InputStateEvent `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse input-state payload: %v", err)
		c.sendError(apperrors.CodeServerInvalidMessage, "invalid input-state payload")
		return
	}
	if msg.Payload.SessionID == "" {
		c.sendError(apperrors.CodeServerInvalidMessage, "session_id is required")
		return
	}
	h.HandleInputState(msg.Payload)
}

// handleInputTyping relays a typing indicator.
func (c *Client) handleInputTyping(h *hub.Hub, data []byte) {
	var msg struct {
		Type    MessageType     `json:"type"`
		Payload hub.TypingEvent `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse input-typing payload: %v", err)
		return
	}
	if msg.Payload.SessionID == "" {
		return
	}
	h.HandleTyping(msg.Payload)
}

// handleRequestInputState answers a catch-up request for the current draft.
func (c *Client) handleRequestInputState(h *hub.Hub, data []byte) {
	var msg struct {
		Type    MessageType      `json:"type"`
		Payload hub.RequestEvent `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse request-input-state payload: %v", err)
		c.sendError(apperrors.CodeServerInvalidMessage, "invalid request-input-state payload")
		return
	}
	if msg.Payload.SessionID == "" {
		c.sendError(apperrors.CodeServerInvalidMessage, "session_id is required")
		return
	}
	h.RequestInputState(msg.Payload.SessionID)
}

// handleViewerGeometry processes a viewer attach or detach. On attach, any
// output buffered before the first viewer arrived is replayed to this client
// alone, in production order, before the geometry takes effect; the session
// goes live only once the whole replay is queued, so a concurrently
// published chunk cannot land between replayed ones. Later attaches replay
// nothing because the session is already live.
func (c *Client) handleViewerGeometry(h *hub.Hub, data []byte) {
	var msg struct {
		Type    MessageType             `json:"type"`
		Payload hub.ViewerGeometryEvent `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse mobile-viewing payload: %v", err)
		c.sendError(apperrors.CodeServerInvalidMessage, "invalid mobile-viewing payload")
		return
	}
	ev := msg.Payload
	if ev.SessionID == "" {
		c.sendError(apperrors.CodeServerInvalidMessage, "session_id is required")
		return
	}

	if ev.Connected {
		h.AttachWith(ev.SessionID, func(chunk []byte) {
			c.sendDirect(NewOutputMessage(ev.SessionID, chunk))
		})
	}

	h.HandleViewerGeometry(ev)

	if ev.Connected {
		log.Printf("Viewer attached to session %s at %dx%d", ev.SessionID, ev.Rows, ev.Cols)
	} else {
		log.Printf("Viewer detached from session %s", ev.SessionID)
	}
}

// handleRequestWaitingState answers a catch-up request for the waiting state.
func (c *Client) handleRequestWaitingState(h *hub.Hub, data []byte) {
	var msg struct {
		Type    MessageType      `json:"type"`
		Payload hub.RequestEvent `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse request-waiting-state payload: %v", err)
		c.sendError(apperrors.CodeServerInvalidMessage, "invalid request-waiting-state payload")
		return
	}
	if msg.Payload.SessionID == "" {
		c.sendError(apperrors.CodeServerInvalidMessage, "session_id is required")
		return
	}
	h.RequestWaitingState(msg.Payload.SessionID)
}

// handleTerminalInput forwards submitted input to the pseudo-terminal. This
// is rate-limited per client; drafts synced via input-state are not, since
// they never reach the terminal.
func (c *Client) handleTerminalInput(h *hub.Hub, data []byte) {
	if !c.inputLimiter.Allow() {
		log.Printf("Terminal input rate limit exceeded, dropping message")
		c.sendError(apperrors.CodeInputRateLimited, "input rate limit exceeded")
		return
	}

	var msg struct {
		Type    MessageType          `json:"type"`
		Payload TerminalInputPayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse terminal-input payload: %v", err)
		c.sendError(apperrors.CodeServerInvalidMessage, "invalid terminal-input payload")
		return
	}
	payload := msg.Payload
	if payload.SessionID == "" {
		c.sendError(apperrors.CodeServerInvalidMessage, "session_id is required")
		return
	}
	if payload.Data == "" {
		c.sendError(apperrors.CodeServerInvalidMessage, "data is required")
		return
	}

	h.SendRawInput(payload.SessionID, []byte(payload.Data))
}

// sendError sends an error message to this client without blocking.
func (c *Client) sendError(code, message string) {
	select {
	case <-c.done:
	case c.send <- NewErrorMessage(code, message):
	default:
		log.Printf("Warning: client send buffer full, dropping error message")
	}
}
