package storage

import (
	"fmt"
	"log"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 1

// initSchema creates the required tables if they don't exist.
// Uses IF NOT EXISTS to make the operation idempotent.
func (s *SQLiteStore) initSchema() error {
	// Schema version table tracks database migrations, so future schema
	// changes can be applied incrementally.
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateToV1 creates the initial schema: the sessions table and the
// waiting-state audit log.
func (s *SQLiteStore) migrateToV1() error {
	log.Printf("storage: applying migration to schema version 1")

	// Timestamps are stored as RFC3339 strings for readability and
	// portability.
	const sessionsTable = `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL
		);
	`

	const waitingAuditTable = `
		CREATE TABLE IF NOT EXISTS waiting_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			wait_type TEXT NOT NULL,
			prompt TEXT NOT NULL DEFAULT '',
			cleared_by TEXT NOT NULL DEFAULT '',
			recorded_at TEXT NOT NULL
		);
	`

	const waitingAuditIndex = `
		CREATE INDEX IF NOT EXISTS idx_waiting_audit_session
		ON waiting_audit(session_id, recorded_at);
	`

	for _, stmt := range []string{sessionsTable, waitingAuditTable, waitingAuditIndex} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	const markApplied = `INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`
	if _, err := s.db.Exec(markApplied, 1, time.Now().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return nil
}
