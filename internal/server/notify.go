package server

import (
	"encoding/json"
	"log"
	"net/http"
)

// notifyRequest is the body of a POST /notify call. Assistant hook scripts
// use it to signal waiting-state transitions the host cannot see in the raw
// byte stream:
//
//	{"session_id": "main", "kind": "prompt", "content": "Allow? (y/n)"}
//	{"session_id": "main", "kind": "prompt-cleared"}
//	{"session_id": "main", "kind": "message"}
//
// "prompt" marks the assistant displaying a prompt (content is classified
// into a response or tool-approval wait), "prompt-cleared" marks the user
// answering it, and "message" marks a new assistant message, which resolves
// a plain response wait but not a tool-approval one.
type notifyRequest struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Content   string `json:"content,omitempty"`
}

// handleNotify processes waiting-state signals from local hook scripts.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h := s.Hub()
	if h == nil {
		http.Error(w, "hub not ready", http.StatusServiceUnavailable)
		return
	}

	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	switch req.Kind {
	case "prompt":
		h.PromptDetected(req.SessionID, req.Content)
	case "prompt-cleared":
		h.PromptCleared(req.SessionID)
	case "message":
		h.AssistantMessage(req.SessionID)
	default:
		http.Error(w, "kind must be prompt, prompt-cleared, or message", http.StatusBadRequest)
		return
	}

	log.Printf("notify: session=%s kind=%s", req.SessionID, req.Kind)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
