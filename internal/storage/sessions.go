package storage

// sessions.go contains SQLiteStore methods for session activity rows.
// A row exists for every session the hub has seen; last_seen advances on
// every output chunk or input delivery.

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionActivity is one row of the sessions table.
type SessionActivity struct {
	ID        string
	FirstSeen time.Time
	LastSeen  time.Time
}

// TouchSession marks a session as recently active, creating the row on first
// touch. Implements the hub's AuditStore interface. Called at high rate from
// the output path, so it is a single upsert.
func (s *SQLiteStore) TouchSession(sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := at.Format(time.RFC3339Nano)

	const query = `
		INSERT INTO sessions (id, first_seen, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_seen = excluded.last_seen
	`
	if _, err := s.db.Exec(query, sessionID, ts, ts); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// GetSession retrieves a session activity row by id.
// Returns nil, nil if the session has never been seen.
func (s *SQLiteStore) GetSession(id string) (*SessionActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `SELECT id, first_seen, last_seen FROM sessions WHERE id = ?`

	var row SessionActivity
	var firstSeen, lastSeen string
	err := s.db.QueryRow(query, id).Scan(&row.ID, &firstSeen, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if row.FirstSeen, err = time.Parse(time.RFC3339Nano, firstSeen); err != nil {
		return nil, fmt.Errorf("parse first_seen: %w", err)
	}
	if row.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}
	return &row, nil
}

// ListSessions returns sessions ordered by last activity (newest first).
func (s *SQLiteStore) ListSessions(limit int) ([]*SessionActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, first_seen, last_seen
		FROM sessions
		ORDER BY last_seen DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionActivity
	for rows.Next() {
		var row SessionActivity
		var firstSeen, lastSeen string
		if err := rows.Scan(&row.ID, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if row.FirstSeen, err = time.Parse(time.RFC3339Nano, firstSeen); err != nil {
			return nil, fmt.Errorf("parse first_seen: %w", err)
		}
		if row.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
			return nil, fmt.Errorf("parse last_seen: %w", err)
		}
		out = append(out, &row)
	}
	return out, rows.Err()
}
