package storage

import (
	"fmt"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 2

// initSchema brings the database up to currentSchemaVersion.
func (s *SQLiteStore) initSchema() error {
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
	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	return nil
}

// migrateToV1 creates the pairing_audit table.
// Timestamps are stored as RFC3339 strings for readability and portability.
func (s *SQLiteStore) migrateToV1() error {
	s.log.Info().Msg("applying migration to schema version 1")

	const auditTable = `
		CREATE TABLE IF NOT EXISTS pairing_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			tv_id TEXT NOT NULL,
			mobile_id TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_pairing_audit_session ON pairing_audit(session_id);
	`
	if _, err := s.db.Exec(auditTable); err != nil {
		return fmt.Errorf("create pairing_audit table: %w", err)
	}
	return s.recordVersion(1)
}

// migrateToV2 adds an index for the per-TV history query.
func (s *SQLiteStore) migrateToV2() error {
	s.log.Info().Msg("applying migration to schema version 2")

	const tvIndex = `CREATE INDEX IF NOT EXISTS idx_pairing_audit_tv ON pairing_audit(tv_id, id);`
	if _, err := s.db.Exec(tvIndex); err != nil {
		return fmt.Errorf("create tv index: %w", err)
	}
	return s.recordVersion(2)
}

func (s *SQLiteStore) recordVersion(v int) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, ?)",
		v, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record schema version %d: %w", v, err)
	}
	return nil
}
