package hub

import (
	"strings"
)

// approvalPhrases are the substrings (lowercased) that mark a detected
// prompt as a tool-approval question rather than a free-form one. The
// assistant's approval prompts always present a binary choice, so matching
// is a simple substring scan.
var approvalPhrases = []string{
	"(y/n)",
	"[y/n]",
	"yes/no",
	"y or n",
	"allow/deny",
	"allow or deny",
	"do you want to proceed",
	"do you approve",
	"approve this",
	"grant permission",
	"permission to run",
}

// ClassifyPrompt decides which wait a detected prompt represents. Prompts
// containing an approval-style phrase (a yes/no or allow/deny choice) become
// tool-approval waits; everything else is a plain response wait.
func ClassifyPrompt(content string) WaitType {
	lower := strings.ToLower(content)
	for _, phrase := range approvalPhrases {
		if strings.Contains(lower, phrase) {
			return WaitToolApproval
		}
	}
	return WaitResponse
}

// clearWaitingOnMessage applies the arrival of a new assistant message to a
// waiting state. A plain response wait is resolved by the assistant
// replying; a tool-approval wait is not, because only an explicit user
// approval or denial (arriving as a prompt-cleared signal) may clear it.
// Returns true if the state transitioned to none.
func clearWaitingOnMessage(w *WaitingState) bool {
	if w.Type != WaitResponse {
		return false
	}
	w.Type = WaitNone
	w.Prompt = ""
	return true
}
