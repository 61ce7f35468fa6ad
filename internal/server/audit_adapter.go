package server

// audit_adapter.go bridges the storage and server packages for pairing
// audit logging. The server defines its own PairingEvent so handlers never
// depend on the database.

import (
	"github.com/tvlink/relay/internal/storage"
)

// DefaultAuditMaxRows bounds the pairing audit table.
const DefaultAuditMaxRows = 10000

// AuditStoreAdapter adapts SQLiteStore to the PairingAuditor interface.
type AuditStoreAdapter struct {
	store   *storage.SQLiteStore
	maxRows int
}

// NewAuditStoreAdapter creates an adapter that keeps at most maxRows
// entries. maxRows <= 0 uses DefaultAuditMaxRows.
func NewAuditStoreAdapter(store *storage.SQLiteStore, maxRows int) *AuditStoreAdapter {
	if maxRows <= 0 {
		maxRows = DefaultAuditMaxRows
	}
	return &AuditStoreAdapter{store: store, maxRows: maxRows}
}

// RecordPairingEvent converts the event and persists it.
func (a *AuditStoreAdapter) RecordPairingEvent(ev PairingEvent) error {
	return a.store.SavePairingAudit(&storage.PairingAuditEntry{
		SessionID: ev.SessionID,
		TVID:      ev.TVID,
		MobileID:  ev.MobileID,
		Action:    ev.Action,
		At:        ev.At,
	}, a.maxRows)
}
