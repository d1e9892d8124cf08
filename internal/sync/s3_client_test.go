// Package sync tests for the S3-compatible artifact client.
package sync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func pathStyleClient(endpoint string) *S3Client {
	return NewS3Client(&S3Config{
		Endpoint:       endpoint,
		BucketName:     "attendance-photos",
		AccessKey:      "test-access",
		SecretKey:      "test-secret",
		Region:         "us-east-1",
		ForcePathStyle: true,
	})
}

// TestUploadPutsObject verifies the PUT request shape and payload.
func TestUploadPutsObject(t *testing.T) {
	var gotMethod, gotPath, gotContentType, gotAuth string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := pathStyleClient(server.URL)
	payload := []byte{0xff, 0xd8, 0xff}

	err := client.Upload(context.Background(), "worker-1/face_2026-08-28T08-00-00-000Z.jpg", payload)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("Expected PUT, got %s", gotMethod)
	}
	if gotPath != "/attendance-photos/worker-1/face_2026-08-28T08-00-00-000Z.jpg" {
		t.Errorf("Unexpected path: %s", gotPath)
	}
	if gotContentType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", gotContentType)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=test-access/") {
		t.Errorf("Unexpected authorization header: %s", gotAuth)
	}
	if string(gotBody) != string(payload) {
		t.Error("Uploaded payload does not match")
	}
}

// TestUploadUpsertOverwrites verifies re-uploading the same key succeeds;
// the server-side overwrite is what makes sync re-runs safe.
func TestUploadUpsertOverwrites(t *testing.T) {
	stored := make(map[string][]byte)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		stored[r.URL.Path] = body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := pathStyleClient(server.URL)
	key := "worker-1/site_2026-08-28T08-00-00-000Z.jpg"

	if err := client.Upload(context.Background(), key, []byte("first")); err != nil {
		t.Fatalf("First upload failed: %v", err)
	}
	if err := client.Upload(context.Background(), key, []byte("second")); err != nil {
		t.Fatalf("Second upload failed: %v", err)
	}

	if got := string(stored["/attendance-photos/"+key]); got != "second" {
		t.Errorf("Expected overwrite to win, got %q", got)
	}
}

// TestUploadSurfacesServerError verifies a non-200 response becomes an error.
func TestUploadSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	client := pathStyleClient(server.URL)
	err := client.Upload(context.Background(), "worker-1/face_x.jpg", []byte("data"))
	if err == nil {
		t.Fatal("Expected error from 403 response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("Expected status in error, got %v", err)
	}
}

// TestPublicURL verifies locator derivation for each addressing mode.
func TestPublicURL(t *testing.T) {
	key := "worker-1/face_x.jpg"

	withBase := NewS3Client(&S3Config{
		Endpoint:      "https://storage.example.com",
		BucketName:    "attendance-photos",
		PublicBaseURL: "https://cdn.example.com/attendance-photos/",
	})
	if got := withBase.PublicURL(key); got != "https://cdn.example.com/attendance-photos/"+key {
		t.Errorf("Unexpected public URL with base: %s", got)
	}

	pathStyle := pathStyleClient("https://storage.example.com")
	if got := pathStyle.PublicURL(key); got != "https://storage.example.com/attendance-photos/"+key {
		t.Errorf("Unexpected path-style URL: %s", got)
	}

	virtualHost := NewS3Client(&S3Config{
		Endpoint:   "s3.example.com",
		BucketName: "attendance-photos",
	})
	if got := virtualHost.PublicURL(key); got != "attendance-photos.s3.example.com/"+key {
		t.Errorf("Unexpected virtual-host URL: %s", got)
	}
}
