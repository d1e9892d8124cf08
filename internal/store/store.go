// Package store provides the durable local event store: an append-mostly
// queue of attendance events backed by SQLite, owned by the device and shared
// by the capture pipeline and the synchronization engine.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB with FieldClock-specific configuration.
type DB struct {
	*sql.DB
}

// Open opens the local attendance database. The database is opened with:
// - WAL mode for concurrent reads alongside the single writer
// - foreign key constraints enabled
// - a single connection, since SQLite serializes writers anyway
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "fieldclock.db")

	// modernc.org/sqlite is pure Go, no CGO
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: every insert/markSynced/read serializes against the
	// same transactional log, which is the consistency model the core assumes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &DB{db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
