package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	// gorilla/websocket is the most popular WebSocket library for Go.
	// It provides a complete implementation of the WebSocket protocol
	// with support for reading/writing messages, ping/pong, and close handling.
	"github.com/gorilla/websocket"

	// Rate limiting for submitted input to prevent message flooding.
	"golang.org/x/time/rate"

	"github.com/tandemterm/host/internal/hub"
)

// channelBufferSize is the buffer size for the broadcast channel and per-client
// send channels. This value balances memory usage against the ability to absorb
// bursts of messages without blocking senders. If the buffer fills up, messages
// may be dropped for slow clients.
const channelBufferSize = 256

// Server manages WebSocket connections and fans hub events out to every
// connected viewer. It also feeds inbound viewer messages into the hub. The
// Server is the concrete event bus: the hub publishes through it without
// knowing WebSockets exist.
type Server struct {
	// addr is the address to listen on (e.g., "127.0.0.1:7070")
	addr string

	// upgrader converts HTTP connections to WebSocket connections.
	// We accept connections from any origin; the server binds to the
	// local network and viewers are trusted devices.
	upgrader websocket.Upgrader

	// clients tracks all connected WebSocket clients.
	// The map key is a pointer to the client, value is always true.
	// Using a map makes add/remove O(1) operations.
	clients map[*Client]bool

	// mu protects the clients map, stopped flag, and hub pointer.
	mu sync.RWMutex

	// stopped indicates whether the server has been stopped.
	// This prevents sending to a closed broadcast channel.
	stopped bool

	// broadcast receives messages to send to all clients.
	// Using a channel decouples message production from delivery.
	broadcast chan Message

	// httpServer is the underlying HTTP server for graceful shutdown.
	httpServer *http.Server

	// hub processes inbound synchronization messages. Set via SetHub
	// before Start; inbound messages are dropped while nil.
	hub *hub.Hub
}

// Client represents a single WebSocket connection.
// Each client has its own goroutine for writing messages,
// which prevents slow clients from blocking the broadcast.
type Client struct {
	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send is a buffered channel for outgoing messages.
	// The write goroutine reads from this and sends to the WebSocket.
	// Buffering prevents blocking when the client is slow.
	send chan Message

	// done is closed to signal the client should shut down.
	// Used to coordinate clean shutdown without racing on send channel.
	done chan struct{}

	// sendOnce ensures done is only closed once. Both Stop() and
	// readPump() may try to close it.
	sendOnce sync.Once

	// server is a reference back to the parent server.
	server *Server

	// inputLimiter rate-limits submitted terminal input to protect the
	// PTY from flooding. Draft syncing is not limited; it never reaches
	// the terminal.
	inputLimiter *rate.Limiter
}

// closeSend safely signals the client to shut down exactly once.
// This is safe to call multiple times from different goroutines.
// We only close the done channel (not send) to avoid racing with
// ongoing send operations. All senders check done before sending.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// NewServer creates a new WebSocket server.
// Call SetHub, then StartAsync() to begin accepting connections.
func NewServer(addr string) *Server {
	return &Server{
		addr:      addr,
		clients:   make(map[*Client]bool),
		broadcast: make(chan Message, channelBufferSize),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// SetHub wires the synchronization hub that inbound messages are dispatched
// to. Must be called before clients connect.
func (s *Server) SetHub(h *hub.Hub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub = h
}

// Hub returns the wired synchronization hub, or nil.
func (s *Server) Hub() *hub.Hub {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hub
}

// Publish queues a hub event for delivery to all connected viewers.
// Implements the hub's Bus interface.
func (s *Server) Publish(topic hub.Topic, payload any) {
	s.Broadcast(Message{Type: MessageType(topic), Payload: payload})
}

// Start begins listening for WebSocket connections.
// This method blocks, so call it in a goroutine if you need to do other work.
// For non-blocking startup with error handling, use StartAsync() instead.
func (s *Server) Start() error {
	mux := s.createMux()

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go s.runBroadcaster()

	log.Printf("WebSocket server listening on %s", s.addr)

	// ListenAndServe blocks until the server is stopped or an error occurs.
	// It returns http.ErrServerClosed on graceful shutdown.
	return s.httpServer.ListenAndServe()
}

// StartAsync starts the server in a goroutine and returns any startup errors.
// This is useful when you need to verify the server started successfully
// before proceeding with other initialization (e.g., starting the PTY).
//
// The returned channel receives nil if startup succeeded, or an error if
// the listener could not be created (e.g., port already in use).
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	mux := s.createMux()

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.httpServer = &http.Server{
		Handler: mux,
	}

	go s.runBroadcaster()

	go func() {
		log.Printf("WebSocket server listening on %s", s.addr)
		errCh <- nil
		close(errCh)

		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("WebSocket server error: %v", err)
		}
	}()

	return errCh
}

// createMux creates the HTTP mux with all endpoints.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket connections at the /ws endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Health check endpoint for monitoring and for the pairing flow to
	// verify reachability before rendering a connect code.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Waiting-state signals from local assistant hook scripts.
	mux.HandleFunc("/notify", s.handleNotify)

	return mux
}

// Stop gracefully shuts down the server.
// It sends close frames to all clients, closes connections, and stops
// accepting new ones. This also closes the broadcast channel to allow
// the runBroadcaster goroutine to exit cleanly.
func (s *Server) Stop() error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	// Signal all clients to stop. writePump sends the close frame and
	// closes the connection when it sees done closed; we don't write
	// directly here to avoid racing with writePump.
	for client := range s.clients {
		client.closeSend()
	}

	s.clients = make(map[*Client]bool)

	// Close the broadcast channel to allow runBroadcaster to exit.
	// This must happen after setting stopped=true to prevent panics
	// from concurrent Broadcast() calls.
	close(s.broadcast)

	s.mu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Broadcast sends a message to all connected clients.
// This method is non-blocking; messages are queued for delivery.
// If the server has been stopped, this method does nothing.
func (s *Server) Broadcast(msg Message) {
	// Hold RLock while checking stopped AND sending to avoid race with
	// Stop(). Stop() takes the write lock, sets stopped=true, then closes
	// the channel. By holding RLock through the send, we ensure the
	// channel can't be closed while we're sending to it.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return
	}

	// Use select with default to make this non-blocking.
	// If the broadcast channel is full, we log and drop the message
	// rather than blocking the caller (the PTY output goroutine).
	select {
	case s.broadcast <- msg:
	default:
		log.Printf("Warning: broadcast channel full, dropping message")
	}
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// handleWebSocket upgrades an HTTP connection to a WebSocket connection.
// This is called by the HTTP server for each new connection to /ws.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// Create a new client with a buffered send channel.
	// The buffer allows the client to fall behind temporarily
	// without blocking the broadcaster.
	client := &Client{
		conn:   conn,
		send:   make(chan Message, channelBufferSize),
		done:   make(chan struct{}),
		server: s,
		// 1000 messages/sec with a burst of 10. Generous for humans,
		// tight enough to stop a runaway client loop.
		inputLimiter: rate.NewLimiter(rate.Limit(1000), 10),
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	log.Printf("Viewer connected (%d total)", s.ClientCount())

	// Start writePump BEFORE any direct sends so buffered history
	// (pre-attach output replayed on mobile-viewing) drains instead of
	// filling the channel.
	go client.writePump()
	go client.readPump()
}

// sendDirect queues a message for this client only, bypassing broadcast.
// Used for buffered-output replay and error replies. Blocks briefly rather
// than dropping, so attach-time history arrives complete for a responsive
// client.
func (c *Client) sendDirect(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	case <-time.After(5 * time.Second):
		log.Printf("Warning: timeout sending to viewer, skipping message")
	}
}

// runBroadcaster reads from the broadcast channel and sends to all clients.
// This runs in its own goroutine started by Start().
func (s *Server) runBroadcaster() {
	for msg := range s.broadcast {
		s.mu.RLock()
		for client := range s.clients {
			// Try to send to each client, but don't block if their
			// buffer is full or if the client is shutting down.
			select {
			case <-client.done:
			case client.send <- msg:
			default:
				log.Printf("Warning: client send buffer full, dropping message")
			}
		}
		s.mu.RUnlock()
	}
}

// writePump continuously sends messages from the send channel to the WebSocket.
// It also sends periodic pings to keep the connection alive.
func (c *Client) writePump() {
	// Pings every 30 seconds detect dead connections and keep
	// NAT/firewalls happy.
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Failed to marshal message: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket and dispatches them to the hub.
func (c *Client) readPump() {
	defer func() {
		// Unregister the client when this goroutine exits.
		c.server.mu.Lock()
		delete(c.server.clients, c)
		c.server.mu.Unlock()

		// Stop() may have already closed done during shutdown; closeSend
		// is idempotent. writePump exits and closes the connection.
		c.closeSend()

		log.Printf("Viewer disconnected (%d remaining)", c.server.ClientCount())
	}()

	c.conn.SetReadLimit(512 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	// A pong in response to our ping proves the client is alive.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				log.Printf("Read error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Failed to parse message: %v", err)
			continue
		}

		c.dispatch(msg.Type, data)
	}
}
