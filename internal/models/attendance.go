// Package models provides data model definitions for the FieldClock core.
package models

import (
	"time"
)

// EventKind distinguishes the two directions of an attendance event.
type EventKind string

const (
	KindClockIn  EventKind = "CLOCK_IN"
	KindClockOut EventKind = "CLOCK_OUT"
)

// Valid reports whether k is one of the two known kinds.
func (k EventKind) Valid() bool {
	return k == KindClockIn || k == KindClockOut
}

// Opposite returns the kind that must follow k in a well-formed history.
func (k EventKind) Opposite() EventKind {
	if k == KindClockIn {
		return KindClockOut
	}
	return KindClockIn
}

// SyncState is the local lifecycle of an event with respect to the remote store.
type SyncState string

const (
	SyncPending SyncState = "PENDING"
	SyncSynced  SyncState = "SYNCED"
)

// AttendanceEvent is the sole persisted entity of the core. Once inserted,
// every field except SyncState and RemoteID is immutable.
type AttendanceEvent struct {
	LocalID       int64     `db:"local_id" json:"local_id"`
	IdentityID    string    `db:"identity_id" json:"identity_id"`
	IdentityLabel string    `db:"identity_label" json:"identity_label"`
	SiteID        string    `db:"site_id" json:"site_id"`
	SiteLabel     string    `db:"site_label" json:"site_label"`
	OccurredAt    string    `db:"occurred_at" json:"occurred_at"` // ISO-8601, device clock
	Kind          EventKind `db:"kind" json:"kind"`
	Latitude      float64   `db:"latitude" json:"latitude"`
	Longitude     float64   `db:"longitude" json:"longitude"`
	FacePhoto     []byte    `db:"face_photo" json:"-"`
	SitePhoto     []byte    `db:"site_photo" json:"-"`
	SyncState     SyncState `db:"sync_state" json:"sync_state"`
	RemoteID      string    `db:"remote_id" json:"remote_id,omitempty"`
}

// TableName returns the table name for AttendanceEvent.
func (AttendanceEvent) TableName() string {
	return "attendance_events"
}

// OccurredAtTime parses the capture timestamp.
func (e *AttendanceEvent) OccurredAtTime() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.OccurredAt)
}

// Pending reports whether the event still awaits reconciliation.
func (e *AttendanceEvent) Pending() bool {
	return e.SyncState == SyncPending
}

// Identity is the subject captured by the device, resolved by an external
// identity provider. Label is a display-name snapshot taken at capture time.
type Identity struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Site is one entry of the read-only work-site lookup.
type Site struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeviceInfo tags every remote record with the software that produced it.
type DeviceInfo struct {
	Source  string `json:"source"`
	Version string `json:"version"`
}

// RemoteRecord is the logical row appended to the authoritative remote store,
// one per synchronized AttendanceEvent. Field names follow the remote schema.
type RemoteRecord struct {
	IdentityID   string     `json:"user_id"`
	SiteID       string     `json:"site_id"`
	SiteLabel    string     `json:"site_name_snapshot"`
	Kind         EventKind  `json:"type"`
	OccurredAt   string     `json:"timestamp"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	FacePhotoURL string     `json:"photo_path"`
	SitePhotoURL string     `json:"site_photo_path"`
	DeviceInfo   DeviceInfo `json:"device_info"`
	SyncStatus   string     `json:"sync_status"`
}
