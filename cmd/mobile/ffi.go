// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libfieldclock.so (Android) / fieldclock.framework (iOS).
// The platform shell drives the capture pipeline through its own camera and
// geolocation plugins; this bridge exposes the store, status derivation and
// the reconciliation engine.

package main

/*
#cgo CFLAGS: -Wall -Wextra
#cgo LDFLAGS: -shared
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fieldclock/fieldclock/internal/config"
	"github.com/fieldclock/fieldclock/internal/device"
	"github.com/fieldclock/fieldclock/internal/logging"
	"github.com/fieldclock/fieldclock/internal/status"
	"github.com/fieldclock/fieldclock/internal/store"
	syncengine "github.com/fieldclock/fieldclock/internal/sync"
)

var (
	once     sync.Once
	database *store.DB
	repo     *store.Repository
	engine   *syncengine.Engine
	lastErr  string
	lastMu   sync.RWMutex
)

//export Init
// Init initializes the FieldClock core: local store, migrations and the
// reconciliation engine. Call once before any other export.
func Init() {
	once.Do(func() {
		logging.Init(os.Stdout, logging.LevelInfo)

		cfg, err := config.Load()
		if err != nil {
			setLastError(fmt.Sprintf("Failed to load configuration: %v", err))
			return
		}

		database, err = store.Open(cfg.DataDir)
		if err != nil {
			setLastError(fmt.Sprintf("Failed to open local store: %v", err))
			return
		}

		if err := store.NewMigrator(database.DB).Up(); err != nil {
			setLastError(fmt.Sprintf("Failed to apply migrations: %v", err))
			return
		}

		repo = store.NewRepository(database.DB)

		objects := syncengine.NewS3Client(&syncengine.S3Config{
			Endpoint:       cfg.StorageEndpoint,
			BucketName:     cfg.StorageBucket,
			AccessKey:      cfg.StorageAccessKey,
			SecretKey:      cfg.StorageSecretKey,
			Region:         cfg.StorageRegion,
			ForcePathStyle: cfg.StoragePathStyle,
			PublicBaseURL:  cfg.StoragePublicURL,
		})
		records := syncengine.NewRecordsClient(&syncengine.RecordsConfig{
			BaseURL: cfg.RemoteBaseURL,
			APIKey:  cfg.RemoteAPIKey,
			Table:   cfg.RemoteTable,
		})
		engine = syncengine.NewEngine(repo, objects, records, device.Info())
	})
}

//export Cleanup
// Cleanup releases the store handle.
func Cleanup() {
	if repo != nil {
		repo.Close()
	}
	if database != nil {
		database.Close()
	}
}

//export GetLastError
// GetLastError returns the last error message.
// Returns a C string that must be freed by the caller.
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return C.CString(lastErr)
}

func setLastError(err string) {
	lastMu.Lock()
	defer lastMu.Unlock()
	lastErr = err
}

// =====================================================
// Status Operations
// =====================================================

//export Status
// Status returns the derived presence state and pending count of an identity
// as JSON. Returns a C string that must be freed by the caller.
func Status(identityID *C.char) *C.char {
	if repo == nil {
		setLastError("Store not initialized")
		return nil
	}

	id := C.GoString(identityID)
	last, err := repo.LastEvent(id)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to read last event: %v", err))
		return nil
	}
	pending, err := repo.CountPending(id)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to count pending events: %v", err))
		return nil
	}

	derived := status.Derive(last)
	payload := map[string]interface{}{
		"currently_in": derived.CurrentlyIn,
		"next_kind":    derived.NextKind,
		"pending":      pending,
	}
	if last != nil {
		payload["last_event_at"] = last.OccurredAt
	}

	data, err := json.Marshal(payload)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize status: %v", err))
		return nil
	}
	return C.CString(string(data))
}

//export History
// History returns up to limit recent events of an identity as JSON.
// Returns a C string that must be freed by the caller.
func History(identityID *C.char, limit C.int) *C.char {
	if repo == nil {
		setLastError("Store not initialized")
		return nil
	}

	events, err := repo.RecentHistory(C.GoString(identityID), int(limit))
	if err != nil {
		setLastError(fmt.Sprintf("Failed to read history: %v", err))
		return nil
	}

	data, err := json.Marshal(events)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize history: %v", err))
		return nil
	}
	return C.CString(string(data))
}

// =====================================================
// Synchronization Operations
// =====================================================

//export RunSync
// RunSync drains the pending queue once and returns {"synced":n,"errors":m}
// as JSON. Returns a C string that must be freed by the caller.
func RunSync() *C.char {
	if engine == nil {
		setLastError("Engine not initialized")
		return nil
	}

	result, err := engine.Run(context.Background())
	if err != nil {
		setLastError(fmt.Sprintf("Sync run failed: %v", err))
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize result: %v", err))
		return nil
	}
	return C.CString(string(data))
}

func main() {}
