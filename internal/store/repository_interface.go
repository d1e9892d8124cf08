// Package store provides repository interfaces for the local event store.
package store

import (
	"github.com/fieldclock/fieldclock/internal/models"
)

// EventWriter defines the mutations of the local event store.
type EventWriter interface {
	// Insert persists a new attendance event and returns its local id.
	Insert(event *models.AttendanceEvent) (int64, error)

	// MarkSynced flips one event to SYNCED. Idempotent on SYNCED rows.
	MarkSynced(localID int64, remoteID string) error
}

// EventReader defines the read contracts of the local event store.
type EventReader interface {
	// ListPending returns pending events ascending by local id.
	ListPending() ([]*models.AttendanceEvent, error)

	// LastEvent returns the most recent event of an identity, or nil.
	LastEvent(identityID string) (*models.AttendanceEvent, error)

	// RecentHistory returns up to limit events, most recent first.
	RecentHistory(identityID string, limit int) ([]*models.AttendanceEvent, error)

	// CountPending returns the number of still-PENDING events for an identity.
	CountPending(identityID string) (int, error)
}

// EventStore combines the full contract consumed by the capture pipeline and
// the synchronization engine. The interface allows an in-memory substitute in
// tests; production always injects *Repository.
type EventStore interface {
	EventWriter
	EventReader
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ EventWriter = (*Repository)(nil)
	_ EventReader = (*Repository)(nil)
	_ EventStore  = (*Repository)(nil)
)
