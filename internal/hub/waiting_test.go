package hub

import "testing"

func TestClassifyPrompt(t *testing.T) {
	tests := []struct {
		prompt string
		want   WaitType
	}{
		{"Do you want to proceed? (y/n)", WaitToolApproval},
		{"Allow this command? [y/N]", WaitToolApproval},
		{"Run `rm -rf build`? yes/no", WaitToolApproval},
		{"The tool needs permission to run bash", WaitToolApproval},
		{"What should the function be named?", WaitResponse},
		{"Please describe the bug you are seeing.", WaitResponse},
		{"", WaitResponse},
	}

	for _, tt := range tests {
		if got := ClassifyPrompt(tt.prompt); got != tt.want {
			t.Errorf("ClassifyPrompt(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestAssistantMessageClearsResponseWait(t *testing.T) {
	w := WaitingState{Type: WaitResponse, Prompt: "What next?"}
	if !clearWaitingOnMessage(&w) {
		t.Fatalf("assistant message should clear a plain response wait")
	}
	if w.Type != WaitNone || w.Prompt != "" {
		t.Fatalf("wait not fully cleared: %+v", w)
	}
}

func TestAssistantMessageDoesNotClearToolApproval(t *testing.T) {
	w := WaitingState{Type: WaitToolApproval, Prompt: "Proceed? (y/n)"}
	if clearWaitingOnMessage(&w) {
		t.Fatalf("assistant message must not clear a tool-approval wait")
	}
	if w.Type != WaitToolApproval {
		t.Fatalf("tool-approval wait lost: %+v", w)
	}
}

func TestAssistantMessageNoWaitPending(t *testing.T) {
	w := WaitingState{Type: WaitNone}
	if clearWaitingOnMessage(&w) {
		t.Fatalf("nothing to clear when no wait is pending")
	}
}
