package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tandemterm/host/internal/hub"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTouchSessionCreatesAndUpdates(t *testing.T) {
	store := newTestStore(t)

	first := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	if err := store.TouchSession("main", first); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}

	later := first.Add(5 * time.Minute)
	if err := store.TouchSession("main", later); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}

	got, err := store.GetSession("main")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("session not found after touch")
	}
	if !got.FirstSeen.Equal(first) {
		t.Errorf("FirstSeen = %v, want %v", got.FirstSeen, first)
	}
	if !got.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, later)
	}
}

func TestGetSessionUnknown(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown session, got %+v", got)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	store.TouchSession("old", base)
	store.TouchSession("new", base.Add(time.Hour))

	sessions, err := store.ListSessions(0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != "new" || sessions[1].ID != "old" {
		t.Fatalf("order = [%s %s], want [new old]", sessions[0].ID, sessions[1].ID)
	}
}

func TestWaitingAuditTrail(t *testing.T) {
	store := newTestStore(t)

	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	if err := store.RecordWaiting("main", hub.WaitToolApproval, "Proceed? (y/n)", at, ""); err != nil {
		t.Fatalf("RecordWaiting: %v", err)
	}
	if err := store.RecordWaiting("main", hub.WaitNone, "", at.Add(time.Minute), "prompt-cleared"); err != nil {
		t.Fatalf("RecordWaiting: %v", err)
	}
	// A different session's rows stay out of the trail.
	if err := store.RecordWaiting("other", hub.WaitResponse, "What next?", at, ""); err != nil {
		t.Fatalf("RecordWaiting: %v", err)
	}

	records, err := store.ListWaitingRecords("main", 0)
	if err != nil {
		t.Fatalf("ListWaitingRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].WaitType != hub.WaitToolApproval || records[0].Prompt != "Proceed? (y/n)" {
		t.Errorf("first record = %+v", records[0])
	}
	if records[0].ClearedBy != "" {
		t.Errorf("pending record has cleared_by %q", records[0].ClearedBy)
	}
	if records[1].WaitType != hub.WaitNone || records[1].ClearedBy != "prompt-cleared" {
		t.Errorf("second record = %+v", records[1])
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	if err := store.TouchSession("main", at); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetSession("main")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || !got.LastSeen.Equal(at) {
		t.Fatalf("session did not survive reopen: %+v", got)
	}
}

func TestStoreSatisfiesAuditStore(t *testing.T) {
	var _ hub.AuditStore = newTestStore(t)
}
