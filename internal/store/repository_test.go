// Package store tests for the attendance event query contracts.
package store

import (
	"fmt"
	"testing"

	"github.com/fieldclock/fieldclock/internal/models"
)

// testEvent builds a minimal valid pending event.
func testEvent(identityID string, kind models.EventKind, occurredAt string) *models.AttendanceEvent {
	return &models.AttendanceEvent{
		IdentityID:    identityID,
		IdentityLabel: "Test Worker",
		SiteID:        "site-1",
		SiteLabel:     "North Yard",
		OccurredAt:    occurredAt,
		Kind:          kind,
		Latitude:      51.5,
		Longitude:     -0.12,
		FacePhoto:     []byte{0xff, 0xd8, 0x01},
		SitePhoto:     []byte{0xff, 0xd8, 0x02},
		SyncState:     models.SyncPending,
	}
}

// TestInsertAssignsMonotonicLocalIDs verifies local ids increase with insert
// order and are reflected back on the event.
func TestInsertAssignsMonotonicLocalIDs(t *testing.T) {
	repo := newTestRepo(t)

	var lastID int64
	for i := 0; i < 5; i++ {
		event := testEvent("worker-1", models.KindClockIn, fmt.Sprintf("2026-08-28T08:0%d:00.000Z", i))
		id, err := repo.Insert(event)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if id <= lastID {
			t.Errorf("Expected local id > %d, got %d", lastID, id)
		}
		if event.LocalID != id {
			t.Errorf("Expected event.LocalID %d, got %d", id, event.LocalID)
		}
		lastID = id
	}
}

// TestInsertForcesPendingState verifies sync metadata cannot be smuggled in
// through the insert payload.
func TestInsertForcesPendingState(t *testing.T) {
	repo := newTestRepo(t)

	event := testEvent("worker-1", models.KindClockIn, "2026-08-28T08:00:00.000Z")
	event.SyncState = models.SyncSynced
	event.RemoteID = "remote-42"

	if _, err := repo.Insert(event); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	pending, err := repo.ListPending()
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending event, got %d", len(pending))
	}
	if pending[0].SyncState != models.SyncPending {
		t.Errorf("Expected PENDING, got %s", pending[0].SyncState)
	}
	if pending[0].RemoteID != "" {
		t.Errorf("Expected empty remote id, got %q", pending[0].RemoteID)
	}
}

// TestListPendingAscendingOrder verifies pending events come back oldest
// first by local id, with photo blobs intact.
func TestListPendingAscendingOrder(t *testing.T) {
	repo := newTestRepo(t)

	for i := 0; i < 3; i++ {
		event := testEvent("worker-1", models.KindClockIn, fmt.Sprintf("2026-08-28T08:0%d:00.000Z", i))
		if _, err := repo.Insert(event); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	pending, err := repo.ListPending()
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("Expected 3 pending events, got %d", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i].LocalID <= pending[i-1].LocalID {
			t.Error("Pending events not in ascending local id order")
		}
	}
	if len(pending[0].FacePhoto) == 0 || len(pending[0].SitePhoto) == 0 {
		t.Error("Expected photo blobs on pending events")
	}
}

// TestListPendingEmptyStore verifies an empty queue is a result, not an error.
func TestListPendingEmptyStore(t *testing.T) {
	repo := newTestRepo(t)

	pending, err := repo.ListPending()
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected empty slice, got %d events", len(pending))
	}
}

// TestMarkSyncedIdempotent verifies the PENDING to SYNCED flip happens once
// and re-invocation is a no-op, not an error.
func TestMarkSyncedIdempotent(t *testing.T) {
	repo := newTestRepo(t)

	id, err := repo.Insert(testEvent("worker-1", models.KindClockIn, "2026-08-28T08:00:00.000Z"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := repo.MarkSynced(id, "remote-1"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	// Second invocation must not error and must not change the remote id.
	if err := repo.MarkSynced(id, "remote-2"); err != nil {
		t.Fatalf("Repeated MarkSynced failed: %v", err)
	}

	last, err := repo.LastEvent("worker-1")
	if err != nil {
		t.Fatalf("LastEvent failed: %v", err)
	}
	if last.SyncState != models.SyncSynced {
		t.Errorf("Expected SYNCED, got %s", last.SyncState)
	}
	if last.RemoteID != "remote-1" {
		t.Errorf("Expected remote id from first flip, got %q", last.RemoteID)
	}
}

// TestMarkSyncedMonotonic verifies a SYNCED row never returns to PENDING.
func TestMarkSyncedMonotonic(t *testing.T) {
	repo := newTestRepo(t)

	id, err := repo.Insert(testEvent("worker-1", models.KindClockOut, "2026-08-28T17:00:00.000Z"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := repo.MarkSynced(id, "remote-1"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	pending, err := repo.ListPending()
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending events after flip, got %d", len(pending))
	}

	count, err := repo.CountPending("worker-1")
	if err != nil {
		t.Fatalf("CountPending failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected pending count 0, got %d", count)
	}
}

// TestLastEvent verifies the most-recent-by-occurred-at contract and the
// nil result for an unknown identity.
func TestLastEvent(t *testing.T) {
	repo := newTestRepo(t)

	last, err := repo.LastEvent("ghost")
	if err != nil {
		t.Fatalf("LastEvent failed: %v", err)
	}
	if last != nil {
		t.Error("Expected nil for identity with no history")
	}

	// Insert out of timestamp order; LastEvent must follow occurred_at.
	if _, err := repo.Insert(testEvent("worker-1", models.KindClockOut, "2026-08-28T17:00:00.000Z")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := repo.Insert(testEvent("worker-2", models.KindClockIn, "2026-08-28T18:00:00.000Z")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	last, err = repo.LastEvent("worker-1")
	if err != nil {
		t.Fatalf("LastEvent failed: %v", err)
	}
	if last == nil {
		t.Fatal("Expected an event for worker-1")
	}
	if last.Kind != models.KindClockOut {
		t.Errorf("Expected CLOCK_OUT, got %s", last.Kind)
	}
	if last.IdentityID != "worker-1" {
		t.Errorf("Expected worker-1's event, got %s", last.IdentityID)
	}
}

// TestRecentHistory verifies descending order, the limit bound and that
// photo blobs are not loaded.
func TestRecentHistory(t *testing.T) {
	repo := newTestRepo(t)

	kinds := []models.EventKind{models.KindClockIn, models.KindClockOut, models.KindClockIn, models.KindClockOut}
	for i, kind := range kinds {
		event := testEvent("worker-1", kind, fmt.Sprintf("2026-08-28T0%d:00:00.000Z", i+6))
		if _, err := repo.Insert(event); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	history, err := repo.RecentHistory("worker-1", 3)
	if err != nil {
		t.Fatalf("RecentHistory failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(history))
	}
	if history[0].OccurredAt != "2026-08-28T09:00:00.000Z" {
		t.Errorf("Expected most recent event first, got %s", history[0].OccurredAt)
	}
	for i := 1; i < len(history); i++ {
		if history[i].OccurredAt > history[i-1].OccurredAt {
			t.Error("History not in descending occurred_at order")
		}
	}
	if history[0].FacePhoto != nil || history[0].SitePhoto != nil {
		t.Error("History must not carry photo blobs")
	}

	empty, err := repo.RecentHistory("worker-1", 0)
	if err != nil {
		t.Fatalf("RecentHistory with zero limit failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected empty history for zero limit, got %d", len(empty))
	}
}

// TestCountPendingPerIdentity verifies badge counts track only still-PENDING
// rows of the requested identity.
func TestCountPendingPerIdentity(t *testing.T) {
	repo := newTestRepo(t)

	idA, err := repo.Insert(testEvent("worker-a", models.KindClockIn, "2026-08-28T08:00:00.000Z"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := repo.Insert(testEvent("worker-a", models.KindClockOut, "2026-08-28T17:00:00.000Z")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := repo.Insert(testEvent("worker-b", models.KindClockIn, "2026-08-28T08:30:00.000Z")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	count, err := repo.CountPending("worker-a")
	if err != nil {
		t.Fatalf("CountPending failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 pending for worker-a, got %d", count)
	}

	if err := repo.MarkSynced(idA, "remote-1"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	count, err = repo.CountPending("worker-a")
	if err != nil {
		t.Fatalf("CountPending failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 pending for worker-a after sync, got %d", count)
	}
}

// TestSubscribeNotifications verifies mutations notify subscribers and
// unsubscribe stops delivery.
func TestSubscribeNotifications(t *testing.T) {
	repo := newTestRepo(t)

	notified := 0
	unsubscribe := repo.Subscribe(func() { notified++ })

	id, err := repo.Insert(testEvent("worker-1", models.KindClockIn, "2026-08-28T08:00:00.000Z"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if notified != 1 {
		t.Errorf("Expected 1 notification after insert, got %d", notified)
	}

	if err := repo.MarkSynced(id, "remote-1"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if notified != 2 {
		t.Errorf("Expected 2 notifications after sync flip, got %d", notified)
	}

	// An idempotent no-op flip must not notify.
	if err := repo.MarkSynced(id, "remote-1"); err != nil {
		t.Fatalf("Repeated MarkSynced failed: %v", err)
	}
	if notified != 2 {
		t.Errorf("Expected no notification for no-op flip, got %d", notified)
	}

	unsubscribe()
	if _, err := repo.Insert(testEvent("worker-1", models.KindClockOut, "2026-08-28T17:00:00.000Z")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if notified != 2 {
		t.Errorf("Expected no notification after unsubscribe, got %d", notified)
	}
}
