// Package store provides database schema migration management.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fieldclock/fieldclock/internal/errors"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrationScript is one embedded schema step. Scripts are compiled into the
// binary; the device never ships loose .sql files.
type migrationScript struct {
	version     int
	description string
	sql         string
}

// migrations is the ordered schema history of the local store.
var migrations = []migrationScript{
	{
		version:     1,
		description: "create attendance_events",
		sql: `
		CREATE TABLE IF NOT EXISTS attendance_events (
			local_id INTEGER PRIMARY KEY AUTOINCREMENT,
			identity_id TEXT NOT NULL CHECK(length(identity_id) > 0),
			identity_label TEXT NOT NULL,
			site_id TEXT NOT NULL CHECK(length(site_id) > 0),
			site_label TEXT NOT NULL,
			occurred_at TEXT NOT NULL CHECK(length(occurred_at) > 0),
			kind TEXT NOT NULL CHECK(kind IN ('CLOCK_IN', 'CLOCK_OUT')),
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			face_photo BLOB NOT NULL,
			site_photo BLOB NOT NULL,
			sync_state TEXT NOT NULL DEFAULT 'PENDING' CHECK(sync_state IN ('PENDING', 'SYNCED')),
			remote_id TEXT
		);`,
	},
	{
		version:     2,
		description: "index attendance_events for status, identity, site and time queries",
		sql: `
		CREATE INDEX IF NOT EXISTS idx_attendance_identity ON attendance_events(identity_id);
		CREATE INDEX IF NOT EXISTS idx_attendance_site ON attendance_events(site_id);
		CREATE INDEX IF NOT EXISTS idx_attendance_occurred ON attendance_events(occurred_at);
		CREATE INDEX IF NOT EXISTS idx_attendance_sync_state ON attendance_events(sync_state);`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	if err != nil {
		return errors.Wrap(errors.ErrMigration, "failed to create schema_migrations", err)
	}
	return nil
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, errors.Wrap(errors.ErrMigration, "failed to read schema version", err)
	}
	return version, nil
}

// AppliedMigrations returns all applied migrations in version order.
func (m *Migrator) AppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(errors.ErrMigration, "failed to list applied migrations", err)
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, errors.Wrap(errors.ErrMigration, "failed to scan migration row", err)
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies every pending migration in a transaction per step. A previously
// applied step whose checksum no longer matches the embedded script is an
// error, not a silent re-run.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return err
	}

	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	appliedByVersion := make(map[int]Migration, len(applied))
	for _, a := range applied {
		appliedByVersion[a.Version] = a
	}

	for _, script := range migrations {
		checksum := checksumScript(script.sql)

		if prior, ok := appliedByVersion[script.version]; ok {
			if prior.Checksum != checksum {
				return errors.Newf(errors.ErrMigration,
					"migration %d checksum mismatch: applied %s, embedded %s",
					script.version, prior.Checksum, checksum)
			}
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return errors.Wrap(errors.ErrMigration, "failed to begin migration transaction", err)
		}

		if _, err := tx.Exec(script.sql); err != nil {
			tx.Rollback()
			return errors.Wrap(errors.ErrMigration,
				fmt.Sprintf("migration %d (%s) failed", script.version, script.description), err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			script.version, time.Now().Unix(), script.description, checksum,
		); err != nil {
			tx.Rollback()
			return errors.Wrap(errors.ErrMigration,
				fmt.Sprintf("failed to record migration %d", script.version), err)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrap(errors.ErrMigration,
				fmt.Sprintf("failed to commit migration %d", script.version), err)
		}
	}

	return nil
}

// checksumScript hashes a migration script for drift detection.
func checksumScript(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}
