// Command viewer is a terminal viewer for a tandemterm host.
//
// It attaches to a session, renders its raw output in the current terminal,
// forwards keystrokes as submitted input, and tracks the shared draft and
// waiting state. Disconnects are retried with exponential backoff, so a
// flaky network degrades to a pause instead of an exit.
//
// Usage: tandemterm-viewer [ws://host:7070/ws]
// With no URL, hosts advertised via mDNS on the local network are tried.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/tandemterm/host/internal/hub"
	"github.com/tandemterm/host/internal/mdns"
	"github.com/tandemterm/host/internal/server"
)

// sessionID is the session this viewer attaches to. The host currently runs
// a single session under this id.
const sessionID = "main"

// quitKey ends the viewer (Ctrl-]), since every other byte is forwarded to
// the remote session.
const quitKey = 0x1d

func main() {
	url := ""
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	if url == "" {
		discovered, err := discoverHost()
		if err != nil {
			fmt.Fprintf(os.Stderr, "No host URL given and discovery failed: %v\n", err)
			fmt.Fprintf(os.Stderr, "Usage: tandemterm-viewer ws://host:7070/ws\n")
			os.Exit(1)
		}
		url = discovered
	}

	stdinFd := int(os.Stdin.Fd())
	var oldState *term.State
	if term.IsTerminal(stdinFd) {
		var err error
		oldState, err = term.MakeRaw(stdinFd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to set raw mode: %v\n", err)
			os.Exit(1)
		}
		defer term.Restore(stdinFd, oldState)
	}

	fmt.Fprintf(os.Stderr, "Connecting to %s (Ctrl-] to quit)...\r\n", url)

	quit := make(chan struct{})
	go readStdin(quit)

	// Reconnect forever with exponential backoff; a viewer dropping off
	// WiFi should come back on its own. runSession returns nil only when
	// the user quits, which ends the retry loop.
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0
	policy.MaxInterval = 30 * time.Second

	_ = backoff.Retry(func() error {
		select {
		case <-quit:
			return nil
		default:
		}
		return runSession(url, quit)
	}, policy)
}

// discoverHost browses mDNS for an advertised host and returns its ws URL.
func discoverHost() (string, error) {
	fmt.Fprintln(os.Stderr, "Searching for hosts on the local network...")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hosts, err := mdns.Discover(ctx)
	if err != nil {
		return "", err
	}
	if len(hosts) == 0 {
		return "", fmt.Errorf("no hosts found")
	}
	h := hosts[0]
	fmt.Fprintf(os.Stderr, "Found %s at %s:%d\n", h.Name, h.Host, h.Port)
	return fmt.Sprintf("ws://%s:%d/ws", h.Host, h.Port), nil
}

// pendingInput carries bytes read from stdin to the active connection. The
// channel outlives individual connections so keystrokes typed during a
// reconnect are delivered once the link is back.
var pendingInput = make(chan []byte, 64)

// readStdin forwards stdin bytes to the active connection until the quit key
// is seen.
func readStdin(quit chan struct{}) {
	buf := make([]byte, 1024)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			data := make([]byte, 0, n)
			for _, b := range buf[:n] {
				if b == quitKey {
					close(quit)
					return
				}
				data = append(data, b)
			}
			if len(data) > 0 {
				select {
				case pendingInput <- data:
				default:
					// Input faster than the link; drop rather than block.
				}
			}
		}
		if err != nil {
			close(quit)
			return
		}
	}
}

// runSession runs one connection until it fails or the user quits. A nil
// return means the user quit; an error triggers a backoff retry.
func runSession(url string, quit chan struct{}) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connect failed, retrying: %v\r\n", err)
		return err
	}
	defer conn.Close()

	// Announce ourselves with our terminal size, then ask for the state
	// snapshots a late attacher cannot otherwise learn.
	if err := sendAttach(conn, true); err != nil {
		return err
	}
	for _, topic := range []server.MessageType{
		server.MessageTypeRequestInputState,
		server.MessageTypeRequestWaitingState,
	} {
		msg := server.Message{Type: topic, Payload: hub.RequestEvent{SessionID: sessionID}}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
	}

	// Re-announce on window resize so the session follows our geometry.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	readErr := make(chan error, 1)
	go func() { readErr <- readLoop(conn) }()

	for {
		select {
		case <-quit:
			// Detach politely so the host restores its local geometry.
			sendAttach(conn, false)
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-readErr:
			fmt.Fprintf(os.Stderr, "\r\nConnection lost, reconnecting...\r\n")
			return err
		case <-winch:
			if err := sendAttach(conn, true); err != nil {
				return err
			}
		case data := <-pendingInput:
			msg := server.Message{
				Type: server.MessageTypeTerminalInput,
				Payload: server.TerminalInputPayload{
					SessionID: sessionID,
					Data:      string(data),
					Timestamp: time.Now().UnixMilli(),
				},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
		}
	}
}

// sendAttach announces attach (with current size) or detach.
func sendAttach(conn *websocket.Conn, connected bool) error {
	ev := hub.ViewerGeometryEvent{SessionID: sessionID, Connected: connected}
	if connected {
		if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			ev.Rows, ev.Cols = rows, cols
		}
	}
	return conn.WriteJSON(server.Message{Type: server.MessageTypeViewerGeometry, Payload: ev})
}

// readLoop renders inbound events until the connection fails.
func readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg struct {
			Type    server.MessageType `json:"type"`
			Payload json.RawMessage    `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case server.MessageTypeOutput:
			var ev hub.OutputEvent
			if json.Unmarshal(msg.Payload, &ev) == nil && ev.SessionID == sessionID {
				os.Stdout.WriteString(ev.Raw)
			}
		case server.MessageTypeWaitingForInput:
			var ev hub.WaitingEvent
			if json.Unmarshal(msg.Payload, &ev) == nil && ev.SessionID == sessionID {
				if ev.WaitType == hub.WaitToolApproval {
					fmt.Fprintf(os.Stderr, "\r\n[assistant awaiting tool approval]\r\n")
				} else {
					fmt.Fprintf(os.Stderr, "\r\n[assistant awaiting response]\r\n")
				}
			}
		case server.MessageTypeWaitingCleared:
			// State corrected; nothing to render.
		case server.MessageTypeInputTyping:
			var ev hub.TypingEvent
			if json.Unmarshal(msg.Payload, &ev) == nil && ev.Typing {
				fmt.Fprintf(os.Stderr, "\r[another device is typing]\r\n")
			}
		case server.MessageTypeError:
			var ev server.ErrorPayload
			if json.Unmarshal(msg.Payload, &ev) == nil {
				fmt.Fprintf(os.Stderr, "\r\n[host error %s: %s]\r\n", ev.Code, ev.Message)
			}
		}
	}
}
