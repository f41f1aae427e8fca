package hub

import (
	"reflect"
	"testing"
)

func apply(st InputState, tokens ...string) InputState {
	for _, tok := range tokens {
		applyToken(&st, tok)
	}
	return st
}

func TestApplyTokenTyping(t *testing.T) {
	st := apply(InputState{}, "h", "i")
	if st.Text != "hi" || st.CursorOffset != 2 {
		t.Fatalf("got %q offset %d, want %q offset 2", st.Text, st.CursorOffset, "hi")
	}
}

func TestApplyTokenBackspaceAtCursor(t *testing.T) {
	// "h", "i", left-arrow, backspace removes the "h": final state "i"/0.
	st := apply(InputState{}, "h", "i", "\x1b[D", "\x7f")
	if st.Text != "i" || st.CursorOffset != 0 {
		t.Fatalf("got %q offset %d, want %q offset 0", st.Text, st.CursorOffset, "i")
	}
}

func TestApplyTokenBackspaceAtStart(t *testing.T) {
	st := apply(InputState{Text: "ab", CursorOffset: 0}, "\x7f")
	if st.Text != "ab" || st.CursorOffset != 0 {
		t.Fatalf("backspace at offset 0 must be a no-op, got %q offset %d", st.Text, st.CursorOffset)
	}
}

func TestApplyTokenPasteInsertsAtCursor(t *testing.T) {
	st := apply(InputState{Text: "ad", CursorOffset: 1}, "bc")
	if st.Text != "abcd" || st.CursorOffset != 3 {
		t.Fatalf("got %q offset %d, want %q offset 3", st.Text, st.CursorOffset, "abcd")
	}
}

func TestApplyTokenArrowBounds(t *testing.T) {
	st := apply(InputState{Text: "ab", CursorOffset: 2}, "\x1b[C", "\x1b[C")
	if st.CursorOffset != 2 {
		t.Fatalf("right arrow past end moved cursor to %d", st.CursorOffset)
	}
	st = apply(st, "\x1b[D", "\x1b[D", "\x1b[D")
	if st.CursorOffset != 0 {
		t.Fatalf("left arrow past start moved cursor to %d", st.CursorOffset)
	}
}

func TestApplyTokenResets(t *testing.T) {
	for _, tok := range []string{"\r", "\n", "\r\n", "\x03", "\x15"} {
		st := apply(InputState{Text: "draft", CursorOffset: 3}, tok)
		if st.Text != "" || st.CursorOffset != 0 {
			t.Fatalf("token %q should reset, got %q offset %d", tok, st.Text, st.CursorOffset)
		}
	}
}

func TestApplyTokenUnknownEscapeIgnored(t *testing.T) {
	st := apply(InputState{Text: "ab", CursorOffset: 1}, "\x1b[A", "\x1b[B", "\x1b[3~")
	if st.Text != "ab" || st.CursorOffset != 1 {
		t.Fatalf("unknown escapes must not change state, got %q offset %d", st.Text, st.CursorOffset)
	}
}

func TestApplyTokenMultibyte(t *testing.T) {
	st := apply(InputState{}, "héllo", "\x7f")
	if st.Text != "héll" || st.CursorOffset != 4 {
		t.Fatalf("got %q offset %d, want %q offset 4", st.Text, st.CursorOffset, "héll")
	}
}

func TestApplyTokenDeterministicReplay(t *testing.T) {
	// Replaying the same token sequence reproduces the same state no
	// matter what remote overwrites were interleaved, as long as each
	// overwrite was superseded by the local edits that followed it.
	tokens := []string{"e", "c", "h", "o", " ", "hi", "\x1b[D", "\x7f", "x"}

	want := apply(InputState{}, tokens...)

	st := InputState{}
	for i, tok := range tokens {
		if i == 3 {
			// Simulate a remote overwrite mid-sequence...
			st = InputState{Text: "something else", CursorOffset: 5, OriginID: "B"}
			// ...that is superseded by resetting to the replayed
			// prefix before local typing continues.
			st = apply(InputState{}, tokens[:i]...)
		}
		applyToken(&st, tok)
	}

	if st.Text != want.Text || st.CursorOffset != want.CursorOffset {
		t.Fatalf("replay diverged: got %q/%d, want %q/%d",
			st.Text, st.CursorOffset, want.Text, want.CursorOffset)
	}
}

func TestSplitTokens(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain text run", "hello", []string{"hello"}},
		{"text then enter", "hi\r", []string{"hi", "\r"}},
		{"crlf is one token", "ok\r\n", []string{"ok", "\r\n"}},
		{"arrow keys kept whole", "a\x1b[Db", []string{"a", "\x1b[D", "b"}},
		{"csi with parameters", "\x1b[3~x", []string{"\x1b[3~", "x"}},
		{"control bytes split out", "a\x03b\x15", []string{"a", "\x03", "b", "\x15"}},
		{"backspace", "ab\x7f", []string{"ab", "\x7f"}},
		{"bare escape", "\x1ba", []string{"\x1ba"}},
		{"utf8 paste", "héllo wörld", []string{"héllo wörld"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitTokens([]byte(tt.in))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("SplitTokens(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
