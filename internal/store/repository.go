// Package store provides the query contracts of the local event store.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/fieldclock/fieldclock/internal/errors"
	"github.com/fieldclock/fieldclock/internal/models"
)

// eventColumns is the full column list of attendance_events, in scan order.
const eventColumns = `local_id, identity_id, identity_label, site_id, site_label,
	occurred_at, kind, latitude, longitude, face_photo, site_photo, sync_state, remote_id`

// metaColumns excludes the photo blobs; history and badge queries never need
// them and the blobs dominate row size.
const metaColumns = `local_id, identity_id, identity_label, site_id, site_label,
	occurred_at, kind, latitude, longitude, sync_state, remote_id`

// Repository provides the attendance event query contracts over one owned
// database handle. All mutations notify registered subscribers.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:   db,
		subs: make(map[int]func()),
	}
}

// prepareStmt gets or creates a prepared statement from cache.
func (r *Repository) prepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// Subscribe registers a callback invoked after every mutation of the store.
// The returned function unsubscribes. Callbacks run synchronously on the
// mutating goroutine; keep them cheap.
func (r *Repository) Subscribe(fn func()) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subs, id)
	}
}

// notify invokes every subscriber once.
func (r *Repository) notify() {
	r.subMu.Lock()
	callbacks := make([]func(), 0, len(r.subs))
	for _, fn := range r.subs {
		callbacks = append(callbacks, fn)
	}
	r.subMu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// =====================================================
// AttendanceEvent Operations
// =====================================================

// Insert persists a new attendance event and returns its local id. The event
// always enters the store as PENDING with no remote id, regardless of what
// the caller set; sync metadata is owned by the synchronization engine.
func (r *Repository) Insert(event *models.AttendanceEvent) (int64, error) {
	query := `
	INSERT INTO attendance_events (identity_id, identity_label, site_id, site_label,
		occurred_at, kind, latitude, longitude, face_photo, site_photo, sync_state, remote_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	res, err := r.db.Exec(query,
		event.IdentityID, event.IdentityLabel, event.SiteID, event.SiteLabel,
		event.OccurredAt, event.Kind, event.Latitude, event.Longitude,
		event.FacePhoto, event.SitePhoto, models.SyncPending)
	if err != nil {
		return 0, errors.Wrap(errors.ErrPersist, "failed to insert attendance event", err)
	}

	localID, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(errors.ErrPersist, "failed to read inserted local id", err)
	}

	event.LocalID = localID
	event.SyncState = models.SyncPending
	event.RemoteID = ""

	r.notify()
	return localID, nil
}

// ListPending returns every still-pending event, ascending by local id
// (oldest first). An empty store yields an empty slice, not an error.
func (r *Repository) ListPending() ([]*models.AttendanceEvent, error) {
	query := `
	SELECT ` + eventColumns + `
	FROM attendance_events WHERE sync_state = ? ORDER BY local_id ASC
	`
	rows, err := r.db.Query(query, models.SyncPending)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list pending events", err)
	}
	defer rows.Close()

	events := make([]*models.AttendanceEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to iterate pending events", err)
	}
	return events, nil
}

// MarkSynced flips one event to SYNCED and records its remote id. Idempotent:
// re-invoking on an already-SYNCED record is a no-op, not an error. The
// transition is one-way; a SYNCED row never returns to PENDING.
func (r *Repository) MarkSynced(localID int64, remoteID string) error {
	query := `
	UPDATE attendance_events SET sync_state = ?, remote_id = ?
	WHERE local_id = ? AND sync_state = ?
	`
	res, err := r.db.Exec(query, models.SyncSynced, remoteID, localID, models.SyncPending)
	if err != nil {
		return errors.Wrap(errors.ErrPersist, "failed to mark event synced", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.ErrPersist, "failed to read affected rows", err)
	}
	if affected > 0 {
		r.notify()
	}
	return nil
}

// LastEvent returns the most recent event of an identity by capture time, or
// nil when the identity has no history.
func (r *Repository) LastEvent(identityID string) (*models.AttendanceEvent, error) {
	query := `
	SELECT ` + eventColumns + `
	FROM attendance_events WHERE identity_id = ?
	ORDER BY occurred_at DESC, local_id DESC LIMIT 1
	`
	stmt, err := r.prepareStmt(query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to prepare last-event query", err)
	}

	event, err := scanEvent(stmt.QueryRow(identityID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// RecentHistory returns up to limit events of an identity, most recent first.
// Photo blobs are not loaded; history consumers only show metadata.
func (r *Repository) RecentHistory(identityID string, limit int) ([]*models.AttendanceEvent, error) {
	if limit <= 0 {
		return []*models.AttendanceEvent{}, nil
	}

	query := `
	SELECT ` + metaColumns + `
	FROM attendance_events WHERE identity_id = ?
	ORDER BY occurred_at DESC, local_id DESC LIMIT ?
	`
	rows, err := r.db.Query(query, identityID, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to query recent history", err)
	}
	defer rows.Close()

	events := make([]*models.AttendanceEvent, 0, limit)
	for rows.Next() {
		event, err := scanEventMeta(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to iterate recent history", err)
	}
	return events, nil
}

// CountPending returns the number of still-PENDING events for an identity.
// Used for UI badges.
func (r *Repository) CountPending(identityID string) (int, error) {
	query := `SELECT COUNT(*) FROM attendance_events WHERE identity_id = ? AND sync_state = ?`
	stmt, err := r.prepareStmt(query)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to prepare pending-count query", err)
	}

	var count int
	if err := stmt.QueryRow(identityID, models.SyncPending).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to count pending events", err)
	}
	return count, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEvent reads a full event row including photo blobs.
func scanEvent(row rowScanner) (*models.AttendanceEvent, error) {
	var event models.AttendanceEvent
	var remoteID sql.NullString
	err := row.Scan(
		&event.LocalID, &event.IdentityID, &event.IdentityLabel,
		&event.SiteID, &event.SiteLabel, &event.OccurredAt, &event.Kind,
		&event.Latitude, &event.Longitude, &event.FacePhoto, &event.SitePhoto,
		&event.SyncState, &remoteID,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to scan attendance event", err)
	}
	if remoteID.Valid {
		event.RemoteID = remoteID.String
	}
	return &event, nil
}

// scanEventMeta reads an event row without photo blobs.
func scanEventMeta(row rowScanner) (*models.AttendanceEvent, error) {
	var event models.AttendanceEvent
	var remoteID sql.NullString
	err := row.Scan(
		&event.LocalID, &event.IdentityID, &event.IdentityLabel,
		&event.SiteID, &event.SiteLabel, &event.OccurredAt, &event.Kind,
		&event.Latitude, &event.Longitude, &event.SyncState, &remoteID,
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to scan attendance event", err)
	}
	if remoteID.Valid {
		event.RemoteID = remoteID.String
	}
	return &event, nil
}
