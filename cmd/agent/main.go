// Package main provides the FieldClock device agent. It owns the local event
// store, serves the localhost status API and WebSocket feed, and runs the
// reconciliation engine when a sync is triggered.
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/fieldclock/fieldclock/internal/config"
	"github.com/fieldclock/fieldclock/internal/device"
	"github.com/fieldclock/fieldclock/internal/logging"
	"github.com/fieldclock/fieldclock/internal/store"
	syncengine "github.com/fieldclock/fieldclock/internal/sync"
)

func main() {
	logging.Init(os.Stdout, logging.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer db.Close()

	if err := store.NewMigrator(db.DB).Up(); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	repo := store.NewRepository(db.DB)
	defer repo.Close()

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
	engine := syncengine.NewEngine(repo, objects, records, device.Info())

	hub := NewWSHub()
	// Every store mutation fans out to subscribed presentation clients.
	unsubscribe := repo.Subscribe(hub.BroadcastStoreChanged)
	defer unsubscribe()

	deviceID, err := device.ID(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to resolve device id: %v", err)
	}

	server := NewServer(repo, engine, hub)
	logging.Info("agent started", map[string]interface{}{
		"addr":      cfg.ListenAddr,
		"device_id": deviceID,
		"version":   device.Version,
	})

	log.Fatal(http.ListenAndServe(cfg.ListenAddr, server.Routes()))
}
