// Package storage persists the relay's pairing audit trail in SQLite.
//
// Live registry and pairing state are deliberately in memory only; this
// package never stores anything the relay needs to route events.
package storage

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	// SQLite driver - imported for side effects (registers the driver).
	// modernc.org/sqlite is pure Go, so the relay builds without CGO.
	_ "modernc.org/sqlite"

	"github.com/tvlink/relay/internal/logx"
)

// SQLiteStore is the audit database. It supports concurrent access
// through internal locking.
type SQLiteStore struct {
	db  *sql.DB      // Database connection handle.
	mu  sync.RWMutex // Guards all database operations.
	log zerolog.Logger
}

// NewSQLiteStore opens or creates a SQLite database at the given path and
// applies any pending migrations. Use ":memory:" for an in-memory database
// (useful for testing).
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	logger = logx.Component(logger, "storage")
	logger.Debug().Str("path", path).Msg("opening database")

	// busy_timeout lets the CLI read the audit log while the relay writes it.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, log: logger}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Debug().Int("schema_version", currentSchemaVersion).Msg("database ready")
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	s.log.Debug().Msg("closing database")
	return s.db.Close()
}
