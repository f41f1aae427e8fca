package storage

// waiting_audit.go contains SQLiteStore methods for the waiting-state audit
// log. Every transition the hub observes is appended: a row with an empty
// cleared_by marks a wait beginning, a row with "prompt-cleared" or
// "assistant-message" marks how it ended.

import (
	"fmt"
	"time"

	"github.com/tandemterm/host/internal/hub"
)

// WaitingRecord is one row of the waiting_audit table.
type WaitingRecord struct {
	ID         int64
	SessionID  string
	WaitType   hub.WaitType
	Prompt     string
	ClearedBy  string
	RecordedAt time.Time
}

// RecordWaiting appends a waiting-state transition. Implements the hub's
// AuditStore interface.
func (s *SQLiteStore) RecordWaiting(sessionID string, wait hub.WaitType, prompt string, at time.Time, clearedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT INTO waiting_audit (session_id, wait_type, prompt, cleared_by, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, sessionID, string(wait), prompt, clearedBy, at.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record waiting: %w", err)
	}
	return nil
}

// ListWaitingRecords returns the audit trail for a session, oldest first.
func (s *SQLiteStore) ListWaitingRecords(sessionID string, limit int) ([]*WaitingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	const query = `
		SELECT id, session_id, wait_type, prompt, cleared_by, recorded_at
		FROM waiting_audit
		WHERE session_id = ?
		ORDER BY id ASC
		LIMIT ?
	`

	rows, err := s.db.Query(query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list waiting records: %w", err)
	}
	defer rows.Close()

	var out []*WaitingRecord
	for rows.Next() {
		var row WaitingRecord
		var waitType, recordedAt string
		if err := rows.Scan(&row.ID, &row.SessionID, &waitType, &row.Prompt, &row.ClearedBy, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan waiting record: %w", err)
		}
		row.WaitType = hub.WaitType(waitType)
		if row.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		out = append(out, &row)
	}
	return out, rows.Err()
}
