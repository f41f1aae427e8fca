package hub

import (
	"strings"
)

// Raw input tokens the tracker understands. Anything that is not one of
// these editing tokens is treated as printable text (a single keystroke or a
// multi-character paste) inserted at the cursor.
const (
	tokenBackspaceDEL = "\x7f"
	tokenBackspaceBS  = "\b"
	tokenArrowLeft    = "\x1b[D"
	tokenArrowRight   = "\x1b[C"
	tokenEnterCR      = "\r"
	tokenEnterLF      = "\n"
	tokenEnterCRLF    = "\r\n"
	tokenCtrlC        = "\x03"
	tokenCtrlU        = "\x15"
)

// applyToken mutates an input state according to one raw input token:
//
//   - printable text and pastes insert at the cursor and advance it by the
//     inserted length
//   - backspace removes one rune before the cursor (no-op at offset 0)
//   - left/right arrows move the cursor by one within bounds
//   - Enter, Ctrl-C, and Ctrl-U reset the line to empty
//
// Unrecognized escape sequences (other arrows, function keys) leave the
// state untouched; they still get forwarded to the pseudo-terminal by the
// caller, the tracker just cannot model their effect on the line.
func applyToken(st *InputState, token string) {
	switch token {
	case tokenEnterCR, tokenEnterLF, tokenEnterCRLF, tokenCtrlC, tokenCtrlU:
		st.Text = ""
		st.CursorOffset = 0

	case tokenBackspaceDEL, tokenBackspaceBS:
		if st.CursorOffset == 0 {
			return
		}
		runes := []rune(st.Text)
		st.Text = string(runes[:st.CursorOffset-1]) + string(runes[st.CursorOffset:])
		st.CursorOffset--

	case tokenArrowLeft:
		if st.CursorOffset > 0 {
			st.CursorOffset--
		}

	case tokenArrowRight:
		if st.CursorOffset < len([]rune(st.Text)) {
			st.CursorOffset++
		}

	default:
		if strings.HasPrefix(token, "\x1b") || isControlToken(token) {
			return
		}
		runes := []rune(st.Text)
		inserted := []rune(token)
		st.Text = string(runes[:st.CursorOffset]) + token + string(runes[st.CursorOffset:])
		st.CursorOffset += len(inserted)
	}
}

// isControlToken reports whether token is a single C0 control byte other
// than the editing tokens handled explicitly above.
func isControlToken(token string) bool {
	return len(token) == 1 && token[0] < 0x20
}

// SplitTokens splits one raw read from the controlling terminal into the
// tokens applyToken understands. A read may contain a burst of keystrokes or
// a paste; escape sequences are kept whole so arrow keys are not mangled
// into a literal ESC plus text.
//
// Consecutive printable bytes collapse into a single token, which is what
// makes a paste insert as one unit.
func SplitTokens(data []byte) []string {
	var tokens []string
	s := string(data)

	for len(s) > 0 {
		// CSI escape sequence: ESC [ ... final byte in 0x40-0x7e.
		if strings.HasPrefix(s, "\x1b[") {
			end := 2
			for end < len(s) && (s[end] < 0x40 || s[end] > 0x7e) {
				end++
			}
			if end < len(s) {
				end++
			}
			tokens = append(tokens, s[:end])
			s = s[end:]
			continue
		}
		// Bare ESC or a non-CSI sequence: take ESC plus one byte.
		if s[0] == 0x1b {
			end := 1
			if len(s) > 1 {
				end = 2
			}
			tokens = append(tokens, s[:end])
			s = s[end:]
			continue
		}
		// CRLF arrives as one token so Enter is not applied twice.
		if strings.HasPrefix(s, "\r\n") {
			tokens = append(tokens, tokenEnterCRLF)
			s = s[2:]
			continue
		}
		if s[0] < 0x20 || s[0] == 0x7f {
			tokens = append(tokens, s[:1])
			s = s[1:]
			continue
		}
		// Run of printable bytes.
		end := 0
		for end < len(s) && s[end] >= 0x20 && s[end] != 0x7f {
			end++
		}
		tokens = append(tokens, s[:end])
		s = s[end:]
	}
	return tokens
}
