package storage

// pairing_audit.go contains SQLiteStore methods for the pairing audit log.
// Every pairing transition (requested, confirmed, rejected, cancelled,
// expired) is appended here when auditing is enabled.

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PairingAuditEntry is one recorded pairing transition.
type PairingAuditEntry struct {
	// ID is assigned by the database on insert.
	ID int64

	SessionID string
	TVID      string

	// MobileID is the relay-assigned transport id of the requester.
	MobileID string

	// Action is one of requested, confirmed, rejected, cancelled, expired.
	Action string

	At time.Time
}

// SavePairingAudit appends an entry and, when maxRows > 0, prunes the
// oldest rows beyond maxRows in the same transaction.
func (s *SQLiteStore) SavePairingAudit(entry *PairingAuditEntry, maxRows int) error {
	if entry == nil {
		return errors.New("pairing audit entry cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insertQuery = `
		INSERT INTO pairing_audit (session_id, tv_id, mobile_id, action, at)
		VALUES (?, ?, ?, ?, ?)
	`
	res, err := tx.Exec(insertQuery,
		entry.SessionID,
		entry.TVID,
		entry.MobileID,
		entry.Action,
		entry.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert pairing audit: %w", err)
	}

	if maxRows > 0 {
		const pruneQuery = `
			DELETE FROM pairing_audit
			WHERE id NOT IN (SELECT id FROM pairing_audit ORDER BY id DESC LIMIT ?)
		`
		if _, err := tx.Exec(pruneQuery, maxRows); err != nil {
			return fmt.Errorf("prune pairing audit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pairing audit: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}

	s.log.Debug().
		Str("session", entry.SessionID).
		Str("tv", entry.TVID).
		Str("action", entry.Action).
		Msg("saved pairing audit entry")
	return nil
}

// ListPairingAudit returns entries newest first. Use limit <= 0 to return
// all entries.
func (s *SQLiteStore) ListPairingAudit(limit int) ([]*PairingAuditEntry, error) {
	return s.queryPairingAudit("", limit)
}

// ListPairingAuditForTV returns entries for one TV, newest first.
func (s *SQLiteStore) ListPairingAuditForTV(tvID string, limit int) ([]*PairingAuditEntry, error) {
	if tvID == "" {
		return nil, errors.New("tv id is required")
	}
	return s.queryPairingAudit(tvID, limit)
}

// CountPairingAudit returns the number of stored entries.
func (s *SQLiteStore) CountPairingAudit() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM pairing_audit").Scan(&n); err != nil {
		return 0, fmt.Errorf("count pairing audit: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) queryPairingAudit(tvID string, limit int) ([]*PairingAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, session_id, tv_id, mobile_id, action, at FROM pairing_audit`
	var args []interface{}
	if tvID != "" {
		query += ` WHERE tv_id = ?`
		args = append(args, tvID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pairing audit: %w", err)
	}
	defer rows.Close()

	var entries []*PairingAuditEntry
	for rows.Next() {
		entry, err := scanPairingAuditRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pairing audit rows: %w", err)
	}
	return entries, nil
}

func scanPairingAuditRow(rows *sql.Rows) (*PairingAuditEntry, error) {
	var (
		entry PairingAuditEntry
		at    string
	)
	if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.TVID, &entry.MobileID, &entry.Action, &at); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("parse at: %w", err)
	}
	entry.At = t
	return &entry, nil
}
