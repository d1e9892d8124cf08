// Package sync tests for the remote attendance record client.
package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldclock/fieldclock/internal/models"
)

func testRecord() *models.RemoteRecord {
	return &models.RemoteRecord{
		IdentityID:   "worker-1",
		SiteID:       "site-1",
		SiteLabel:    "North Yard",
		Kind:         models.KindClockIn,
		OccurredAt:   "2026-08-28T08:00:00.000Z",
		Latitude:     51.5,
		Longitude:    -0.12,
		FacePhotoURL: "https://cdn.example.com/worker-1/face_x.jpg",
		SitePhotoURL: "https://cdn.example.com/worker-1/site_x.jpg",
		DeviceInfo:   models.DeviceInfo{Source: "device-agent", Version: "test"},
		SyncStatus:   "synced",
	}
}

// TestInsertAttendance verifies the request shape and id extraction.
func TestInsertAttendance(t *testing.T) {
	var gotPath, gotAPIKey, gotPrefer string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("apikey")
		gotPrefer = r.Header.Get("Prefer")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id": 4711}]`))
	}))
	defer server.Close()

	client := NewRecordsClient(&RecordsConfig{
		BaseURL: server.URL,
		APIKey:  "service-key",
	})

	remoteID, err := client.InsertAttendance(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("InsertAttendance failed: %v", err)
	}
	if remoteID != "4711" {
		t.Errorf("Expected remote id 4711, got %q", remoteID)
	}

	if gotPath != "/rest/v1/attendance_logs" {
		t.Errorf("Unexpected path: %s", gotPath)
	}
	if gotAPIKey != "service-key" {
		t.Errorf("Expected apikey header, got %q", gotAPIKey)
	}
	if gotPrefer != "return=representation" {
		t.Errorf("Expected representation preference, got %q", gotPrefer)
	}

	// The row must carry the remote field names, not the Go ones.
	if gotBody["user_id"] != "worker-1" {
		t.Errorf("Expected user_id in payload, got %v", gotBody["user_id"])
	}
	if gotBody["type"] != "CLOCK_IN" {
		t.Errorf("Expected type CLOCK_IN, got %v", gotBody["type"])
	}
	if gotBody["site_name_snapshot"] != "North Yard" {
		t.Errorf("Expected site snapshot, got %v", gotBody["site_name_snapshot"])
	}
	device, ok := gotBody["device_info"].(map[string]interface{})
	if !ok || device["source"] != "device-agent" {
		t.Errorf("Expected device_info object, got %v", gotBody["device_info"])
	}
}

// TestInsertAttendanceCustomTable verifies the table name is configurable.
func TestInsertAttendanceCustomTable(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id": "row-1"}]`))
	}))
	defer server.Close()

	client := NewRecordsClient(&RecordsConfig{BaseURL: server.URL, Table: "presence_log"})
	if _, err := client.InsertAttendance(context.Background(), testRecord()); err != nil {
		t.Fatalf("InsertAttendance failed: %v", err)
	}
	if gotPath != "/rest/v1/presence_log" {
		t.Errorf("Unexpected path: %s", gotPath)
	}
}

// TestInsertAttendanceServerError verifies non-2xx responses surface as
// errors carrying the response body.
func TestInsertAttendanceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"row violates policy"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewRecordsClient(&RecordsConfig{BaseURL: server.URL})
	_, err := client.InsertAttendance(context.Background(), testRecord())
	if err == nil {
		t.Fatal("Expected error from 401 response")
	}
}

// TestInsertAttendanceEmptyRepresentation verifies a success status without
// an echoed row is treated as a failure, since the remote id is unknown.
func TestInsertAttendanceEmptyRepresentation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewRecordsClient(&RecordsConfig{BaseURL: server.URL})
	_, err := client.InsertAttendance(context.Background(), testRecord())
	if err == nil {
		t.Fatal("Expected error for empty representation")
	}
}
