package pty

import (
	"testing"

	apperrors "github.com/tandemterm/host/internal/errors"
)

func TestManagerCreateAndGet(t *testing.T) {
	m := NewManager()

	s := m.CreateWithID("main")
	if got := m.Get("main"); got != s {
		t.Fatalf("Get returned %v, want the created session", got)
	}
	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}
}

func TestManagerCreateAssignsUUID(t *testing.T) {
	m := NewManager()
	a := m.Create()
	b := m.Create()
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
}

func TestManagerGetUnknown(t *testing.T) {
	m := NewManager()
	if s := m.Get("nope"); s != nil {
		t.Fatalf("expected nil for unknown session, got %v", s)
	}
}

func TestSendInputUnknownSession(t *testing.T) {
	m := NewManager()
	err := m.SendInput("nope", []byte("x"))
	if !apperrors.IsCode(err, apperrors.CodeSessionNotFound) {
		t.Fatalf("expected session.not_found, got %v", err)
	}
}

func TestResizeUnknownSession(t *testing.T) {
	m := NewManager()
	err := m.Resize("nope", 40, 120)
	if !apperrors.IsCode(err, apperrors.CodeSessionNotFound) {
		t.Fatalf("expected session.not_found, got %v", err)
	}
}

func TestSendInputNotRunning(t *testing.T) {
	m := NewManager()
	m.CreateWithID("main")

	// Registered but never started: input degrades to a coded error, not
	// a panic.
	err := m.SendInput("main", []byte("x"))
	if !apperrors.IsCode(err, apperrors.CodeSessionNotRunning) {
		t.Fatalf("expected session.not_running, got %v", err)
	}
}

func TestResizeNotRunning(t *testing.T) {
	m := NewManager()
	m.CreateWithID("main")

	err := m.Resize("main", 40, 120)
	if !apperrors.IsCode(err, apperrors.CodeSessionNotRunning) {
		t.Fatalf("expected session.not_running, got %v", err)
	}
}

func TestManagerRemove(t *testing.T) {
	m := NewManager()
	m.CreateWithID("main")
	m.Remove("main")
	if m.Count() != 0 {
		t.Fatalf("Count = %d after remove, want 0", m.Count())
	}
	// Removing twice is harmless.
	m.Remove("main")
}
