// Package sync provides the reconciliation engine that drains pending local
// attendance events to the authoritative remote store.
package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/fieldclock/fieldclock/internal/errors"
	"github.com/fieldclock/fieldclock/internal/logging"
	"github.com/fieldclock/fieldclock/internal/models"
	"github.com/fieldclock/fieldclock/internal/store"
)

// ObjectStore is the remote artifact storage the engine uploads photos to.
// Upload has upsert semantics: re-uploading the same key overwrites, which
// makes every step safely re-runnable after a partial failure.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	PublicURL(key string) string
}

// RecordStore is the remote row-insert API. The engine only appends; it
// never mutates or deletes existing remote rows.
type RecordStore interface {
	InsertAttendance(ctx context.Context, record *models.RemoteRecord) (remoteID string, err error)
}

// Result is the aggregate outcome of one reconciliation run. A run always
// completes its per-record loop and reports counts, even when Errors > 0.
type Result struct {
	Synced int `json:"synced"`
	Errors int `json:"errors"`
}

// Engine uploads pending events exactly once per successful attempt, with
// per-record failure isolation. At most one run is in flight at a time.
type Engine struct {
	store   store.EventStore
	objects ObjectStore
	records RecordStore
	device  models.DeviceInfo
	log     *logging.Logger

	mu      sync.Mutex
	running bool
	lastRun *time.Time
	lastErr error
}

// NewEngine creates a reconciliation engine over the shared local store and
// the two remote collaborators.
func NewEngine(eventStore store.EventStore, objects ObjectStore, records RecordStore, device models.DeviceInfo) *Engine {
	return &Engine{
		store:   eventStore,
		objects: objects,
		records: records,
		device:  device,
		log:     logging.Get().WithComponent("sync"),
	}
}

// Running reports whether a run is currently in flight.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// LastRun returns the completion time of the most recent run, or nil.
func (e *Engine) LastRun() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRun
}

// LastError returns the first per-record error of the most recent run, or nil
// when that run was clean.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Run drains the pending queue once. Events are attempted oldest first;
// failure of one never aborts the batch. An empty queue is a no-op returning
// {0, 0}. A second Run while one is in flight is refused.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return Result{}, apperrors.New(apperrors.ErrSyncInFlight, "sync already in progress")
	}
	e.running = true
	e.lastErr = nil
	e.mu.Unlock()

	defer func() {
		now := time.Now()
		e.mu.Lock()
		e.running = false
		e.lastRun = &now
		e.mu.Unlock()
	}()

	pending, err := e.store.ListPending()
	if err != nil {
		return Result{}, err
	}
	if len(pending) == 0 {
		return Result{}, nil
	}

	e.log.Info("sync run started", map[string]interface{}{"pending": len(pending)})

	var result Result
	for _, event := range pending {
		if err := e.syncOne(ctx, event); err != nil {
			result.Errors++
			e.mu.Lock()
			if e.lastErr == nil {
				e.lastErr = err
			}
			e.mu.Unlock()
			// Event stays PENDING for a later run; no retry within this one.
			e.log.Warn("sync failed for event", map[string]interface{}{
				"local_id": event.LocalID,
				"code":     string(apperrors.CodeOf(err)),
				"cause":    err.Error(),
			})
			continue
		}
		result.Synced++
	}

	e.log.Info("sync run finished", map[string]interface{}{
		"synced": result.Synced,
		"errors": result.Errors,
	})
	return result, nil
}

// syncOne reconciles a single event: both photo uploads, one remote row
// insert, then the local status flip. Any failure leaves the event PENDING.
func (e *Engine) syncOne(ctx context.Context, event *models.AttendanceEvent) error {
	facePath := FacePhotoPath(event.IdentityID, event.OccurredAt)
	sitePath := SitePhotoPath(event.IdentityID, event.OccurredAt)

	if err := e.objects.Upload(ctx, facePath, event.FacePhoto); err != nil {
		return apperrors.Wrap(apperrors.ErrUpload, "face photo upload failed", err)
	}
	if err := e.objects.Upload(ctx, sitePath, event.SitePhoto); err != nil {
		return apperrors.Wrap(apperrors.ErrUpload, "site photo upload failed", err)
	}

	record := &models.RemoteRecord{
		IdentityID:   event.IdentityID,
		SiteID:       event.SiteID,
		SiteLabel:    event.SiteLabel,
		Kind:         event.Kind,
		OccurredAt:   event.OccurredAt,
		Latitude:     event.Latitude,
		Longitude:    event.Longitude,
		FacePhotoURL: e.objects.PublicURL(facePath),
		SitePhotoURL: e.objects.PublicURL(sitePath),
		DeviceInfo:   e.device,
		SyncStatus:   "synced",
	}

	remoteID, err := e.records.InsertAttendance(ctx, record)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteInsert, "remote record insert failed", err)
	}

	return e.store.MarkSynced(event.LocalID, remoteID)
}

// SanitizeTimestamp makes an ISO-8601 instant safe for storage paths by
// substituting the characters object stores reject in keys.
func SanitizeTimestamp(ts string) string {
	replacer := strings.NewReplacer(":", "-", ".", "-")
	return replacer.Replace(ts)
}

// FacePhotoPath derives the artifact key of the liveness-verified photo.
func FacePhotoPath(identityID, occurredAt string) string {
	return fmt.Sprintf("%s/face_%s.jpg", identityID, SanitizeTimestamp(occurredAt))
}

// SitePhotoPath derives the artifact key of the confirmatory site photo.
func SitePhotoPath(identityID, occurredAt string) string {
	return fmt.Sprintf("%s/site_%s.jpg", identityID, SanitizeTimestamp(occurredAt))
}
