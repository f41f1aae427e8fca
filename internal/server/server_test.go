package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/tandemterm/host/internal/errors"
	"github.com/tandemterm/host/internal/hub"
)

// recordingTerminal captures input and resize calls for assertions.
type recordingTerminal struct {
	mu      sync.Mutex
	inputs  []string
	resizes [][2]int
}

func (t *recordingTerminal) SendInput(sessionID string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputs = append(t.inputs, string(data))
	return nil
}

func (t *recordingTerminal) Resize(sessionID string, rows, cols int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resizes = append(t.resizes, [2]int{rows, cols})
	return nil
}

func (t *recordingTerminal) lastInput() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inputs) == 0 {
		return "", false
	}
	return t.inputs[len(t.inputs)-1], true
}

func (t *recordingTerminal) lastResize() ([2]int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.resizes) == 0 {
		return [2]int{}, false
	}
	return t.resizes[len(t.resizes)-1], true
}

func newTestServer() (*Server, *hub.Hub, *recordingTerminal, *httptest.Server) {
	s := NewServer("unused")
	go s.runBroadcaster()

	term := &recordingTerminal{}
	h := hub.New(hub.NewRegistry(), s, term)
	s.SetHub(h)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	ts := httptest.NewServer(mux)

	return s, h, term, ts
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return msg
}

func payloadMap(t *testing.T, msg Message) map[string]interface{} {
	t.Helper()
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map payload, got %#v", msg.Payload)
	}
	return payload
}

// attach sends a mobile-viewing attach announcement for the session.
func attach(t *testing.T, conn *websocket.Conn, sessionID string, rows, cols int) {
	t.Helper()
	msg := Message{
		Type: MessageTypeViewerGeometry,
		Payload: hub.ViewerGeometryEvent{
			SessionID: sessionID,
			Connected: true,
			Rows:      rows,
			Cols:      cols,
		},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestLiveOutputBroadcast(t *testing.T) {
	s, h, _, ts := newTestServer()
	defer ts.Close()
	defer s.Stop()

	conn := dial(t, ts)
	defer conn.Close()

	attach(t, conn, "main", 40, 120)

	// Nothing was buffered, so the next frame is the live chunk. Publishing
	// immediately could race the attach; wait until the session is live.
	deadline := time.Now().Add(2 * time.Second)
	for !h.Registry().GetOrCreate("main").IsLive() {
		if time.Now().After(deadline) {
			t.Fatal("session never went live after attach")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.PublishOutput("main", []byte("hello\n"))

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeOutput {
		t.Fatalf("expected pty-output, got %s", msg.Type)
	}
	if payloadMap(t, msg)["raw"] != "hello\n" {
		t.Fatalf("unexpected raw payload: %#v", msg.Payload)
	}
}

func TestBufferedOutputReplayedOnFirstAttach(t *testing.T) {
	s, h, _, ts := newTestServer()
	defer ts.Close()
	defer s.Stop()

	// Output produced before any viewer exists is held back.
	h.PublishOutput("main", []byte("early "))
	h.PublishOutput("main", []byte("output"))

	conn := dial(t, ts)
	defer conn.Close()
	attach(t, conn, "main", 40, 120)

	first := readMessage(t, conn)
	second := readMessage(t, conn)
	if first.Type != MessageTypeOutput || second.Type != MessageTypeOutput {
		t.Fatalf("expected two pty-output messages, got %s and %s", first.Type, second.Type)
	}
	got := payloadMap(t, first)["raw"].(string) + payloadMap(t, second)["raw"].(string)
	if got != "early output" {
		t.Fatalf("replayed output = %q, want %q", got, "early output")
	}

	// A second viewer attaches to an already-live session: no replay.
	connB := dial(t, ts)
	defer connB.Close()
	attach(t, connB, "main", 50, 100)

	h.PublishOutput("main", []byte("live"))
	msgB := readMessage(t, connB)
	if msgB.Type != MessageTypeOutput || payloadMap(t, msgB)["raw"] != "live" {
		t.Fatalf("second viewer's first frame = %s %#v, want the live chunk", msgB.Type, msgB.Payload)
	}
}

func TestReplayCompletesBeforeLiveOutput(t *testing.T) {
	s, h, _, ts := newTestServer()
	defer ts.Close()
	defer s.Stop()

	// Enough buffered chunks to keep the replay loop busy while the live
	// publisher races it.
	const buffered = 250
	for i := 0; i < buffered; i++ {
		h.PublishOutput("main", []byte(fmt.Sprintf("buf-%03d ", i)))
	}

	conn := dial(t, ts)
	defer conn.Close()
	attach(t, conn, "main", 40, 120)

	// Publish live output the moment the session goes live. IsLive blocks
	// on the session mutex while the replay is being queued, so these
	// publishes start as close to the live transition as possible.
	go func() {
		for !h.Registry().GetOrCreate("main").IsLive() {
		}
		for i := 0; i < 50; i++ {
			h.PublishOutput("main", []byte("live "))
		}
	}()

	seen := 0
	for seen < buffered {
		msg := readMessage(t, conn)
		if msg.Type != MessageTypeOutput {
			continue
		}
		raw := payloadMap(t, msg)["raw"].(string)
		if strings.HasPrefix(raw, "live") {
			t.Fatalf("live chunk arrived mid-replay (%d/%d buffered chunks seen)", seen, buffered)
		}
		if want := fmt.Sprintf("buf-%03d ", seen); raw != want {
			t.Fatalf("replay out of order: got %q, want %q", raw, want)
		}
		seen++
	}
}

func TestInputStateRebroadcast(t *testing.T) {
	s, _, term, ts := newTestServer()
	defer ts.Close()
	defer s.Stop()

	conn := dial(t, ts)
	defer conn.Close()

	msg := Message{
		Type: MessageTypeInputState,
		Payload: hub.InputStateEvent{
			SessionID:    "main",
			Text:         "draft",
			CursorOffset: 5,
			OriginID:     "viewer-a",
			EditedAt:     time.Now().UnixMilli(),
		},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The accepted state is re-broadcast, reaching the sender too.
	got := readMessage(t, conn)
	if got.Type != MessageTypeInputState {
		t.Fatalf("expected input-state, got %s", got.Type)
	}
	payload := payloadMap(t, got)
	if payload["text"] != "draft" || payload["origin_id"] != "viewer-a" {
		t.Fatalf("unexpected input-state payload: %#v", payload)
	}

	// Draft syncing never reaches the terminal.
	if in, ok := term.lastInput(); ok {
		t.Fatalf("draft leaked to terminal: %q", in)
	}
}

func TestTerminalInputReachesPTY(t *testing.T) {
	s, _, term, ts := newTestServer()
	defer ts.Close()
	defer s.Stop()

	conn := dial(t, ts)
	defer conn.Close()

	msg := Message{
		Type: MessageTypeTerminalInput,
		Payload: TerminalInputPayload{
			SessionID: "main",
			Data:      "run the tests\n",
			Timestamp: time.Now().UnixMilli(),
		},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if in, ok := term.lastInput(); ok {
			if in != "run the tests\n" {
				t.Fatalf("terminal received %q, want %q", in, "run the tests\n")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("submitted input never reached the terminal")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestViewerAttachResizesTerminal(t *testing.T) {
	s, _, term, ts := newTestServer()
	defer ts.Close()
	defer s.Stop()

	conn := dial(t, ts)
	defer conn.Close()
	attach(t, conn, "main", 40, 120)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if r, ok := term.lastResize(); ok {
			if r != [2]int{40, 120} {
				t.Fatalf("resize = %v, want [40 120]", r)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("attach never resized the terminal")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRequestWaitingStateWhenIdle(t *testing.T) {
	s, _, _, ts := newTestServer()
	defer ts.Close()
	defer s.Stop()

	conn := dial(t, ts)
	defer conn.Close()

	msg := Message{
		Type:    MessageTypeRequestWaitingState,
		Payload: hub.RequestEvent{SessionID: "main"},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// No wait pending: the reply is an explicit cleared event, not silence.
	got := readMessage(t, conn)
	if got.Type != MessageTypeWaitingCleared {
		t.Fatalf("expected waiting-cleared, got %s", got.Type)
	}
}

func TestWaitingStateBroadcast(t *testing.T) {
	s, h, _, ts := newTestServer()
	defer ts.Close()
	defer s.Stop()

	conn := dial(t, ts)
	defer conn.Close()

	// Let the client register before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.PromptDetected("main", "Do you want to proceed? (y/n)")

	got := readMessage(t, conn)
	if got.Type != MessageTypeWaitingForInput {
		t.Fatalf("expected waiting-for-input, got %s", got.Type)
	}
	if payloadMap(t, got)["wait_type"] != string(hub.WaitToolApproval) {
		t.Fatalf("unexpected wait type: %#v", got.Payload)
	}
}

func TestInvalidTerminalInputGetsError(t *testing.T) {
	s, _, _, ts := newTestServer()
	defer ts.Close()
	defer s.Stop()

	conn := dial(t, ts)
	defer conn.Close()

	msg := Message{
		Type:    MessageTypeTerminalInput,
		Payload: TerminalInputPayload{Data: "x"},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := readMessage(t, conn)
	if got.Type != MessageTypeError {
		t.Fatalf("expected error, got %s", got.Type)
	}
	if payloadMap(t, got)["code"] != apperrors.CodeServerInvalidMessage {
		t.Fatalf("unexpected error code: %#v", got.Payload)
	}
}

func TestStartAsyncFailsWhenPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	s := NewServer(ln.Addr().String())
	errCh := s.StartAsync()
	if err := <-errCh; err == nil {
		t.Fatal("expected error when port already in use")
	}
}

func TestStopWithActiveClient(t *testing.T) {
	s, _, _, ts := newTestServer()
	defer ts.Close()

	conn := dial(t, ts)
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}

	// Stop is idempotent.
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop returned %v", err)
	}
}
