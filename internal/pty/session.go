// Package pty manages the pseudo-terminal process that runs the AI coding
// assistant. The rest of the host treats it as an opaque byte source/sink:
// raw output chunks flow out through a callback, raw input and resize
// requests flow in.
package pty

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	apperrors "github.com/tandemterm/host/internal/errors"
)

// readBufferSize is the chunk size for PTY reads. Reads return as soon as
// data is available, so control sequences (cursor movement, line edits) are
// forwarded immediately instead of waiting for a newline.
const readBufferSize = 4096

// Session runs one command attached to a pseudo-terminal. Output is
// delivered as raw byte chunks, in production order, through the OnOutput
// callback; input and resizes go to the PTY master.
type Session struct {
	// ID is the unique session identifier, assigned by the Manager.
	ID string

	// Command is the command being executed, with its arguments. Stored
	// for reporting.
	Command string
	Args    []string

	// CreatedAt is when the session was started.
	CreatedAt time.Time

	// OnOutput is invoked for every chunk read from the PTY, with the
	// session id and the raw bytes. The chunk buffer is only valid for
	// the duration of the call; implementations that retain it must copy.
	OnOutput func(sessionID string, chunk []byte)

	cmd  *exec.Cmd
	ptmx *os.File

	// done is closed when the command exits.
	done chan struct{}

	mu      sync.Mutex
	running bool
	err     error
}

// NewSession allocates a session. Call Start to spawn the command.
func NewSession(id string) *Session {
	return &Session{
		ID:   id,
		done: make(chan struct{}),
	}
}

// Start spawns command in a new pseudo-terminal and begins forwarding its
// output. It returns a coded error if the session is already running or the
// PTY cannot be created.
func (s *Session) Start(command string, args ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return apperrors.New(apperrors.CodeSessionAlreadyRunning, fmt.Sprintf("session %s already running", s.ID))
	}

	s.Command = command
	s.Args = args
	s.CreatedAt = time.Now()
	s.cmd = exec.Command(command, args...)

	ptmx, err := pty.Start(s.cmd)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSessionSpawnFailed, fmt.Sprintf("start %s", command), err)
	}
	s.ptmx = ptmx
	s.running = true

	go s.readLoop(ptmx)
	go s.waitForExit()

	return nil
}

// readLoop forwards PTY output to the callback until the PTY closes.
func (s *Session) readLoop(ptmx *os.File) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 && s.OnOutput != nil {
			s.OnOutput(s.ID, buf[:n])
		}
		if err != nil {
			// EIO is the normal way a Linux PTY reports the slave
			// side closing; anything else is worth keeping.
			if err != io.EOF {
				s.mu.Lock()
				if s.err == nil {
					s.err = err
				}
				s.mu.Unlock()
			}
			return
		}
	}
}

// waitForExit reaps the command and marks the session stopped.
func (s *Session) waitForExit() {
	s.cmd.Wait()

	s.mu.Lock()
	s.running = false
	if s.ptmx != nil {
		s.ptmx.Close()
		s.ptmx = nil
	}
	s.mu.Unlock()

	close(s.done)
}

// Write sends raw bytes to the PTY, exactly as typed. Returns a coded error
// if the session is not running.
func (s *Session) Write(data []byte) (int, error) {
	s.mu.Lock()
	ptmx := s.ptmx
	running := s.running
	s.mu.Unlock()

	if !running || ptmx == nil {
		return 0, apperrors.SessionNotRunning(s.ID)
	}
	n, err := ptmx.Write(data)
	if err != nil {
		return n, apperrors.Wrap(apperrors.CodeSessionWriteFailed, fmt.Sprintf("write to session %s", s.ID), err)
	}
	return n, nil
}

// Resize changes the PTY geometry, which delivers SIGWINCH to the process
// so full-screen programs re-render at the new size.
func (s *Session) Resize(rows, cols int) error {
	s.mu.Lock()
	ptmx := s.ptmx
	running := s.running
	s.mu.Unlock()

	if !running || ptmx == nil {
		return apperrors.SessionNotRunning(s.ID)
	}
	ws := &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}
	if err := pty.Setsize(ptmx, ws); err != nil {
		return apperrors.Wrap(apperrors.CodeSessionResizeFailed, fmt.Sprintf("resize session %s", s.ID), err)
	}
	return nil
}

// Stop terminates the command. The done channel is closed once the process
// has been reaped.
func (s *Session) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	running := s.running
	s.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// Done returns a channel closed when the session's command has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// IsRunning reports whether the command is currently executing.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Err returns the first read error observed, if any, once the session has
// finished.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
