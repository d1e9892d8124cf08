// Package config loads the device agent configuration from the environment,
// with an optional .env file for development installs.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	apperrors "github.com/fieldclock/fieldclock/internal/errors"
)

// Config holds every tunable of the device agent.
type Config struct {
	// DataDir is where the local SQLite store and device id live.
	DataDir string `validate:"required"`

	// ListenAddr is the localhost address of the status/sync API.
	ListenAddr string `validate:"required"`

	// Artifact storage (S3-compatible).
	StorageEndpoint  string `validate:"required"`
	StorageBucket    string `validate:"required"`
	StorageAccessKey string
	StorageSecretKey string
	StorageRegion    string
	StoragePathStyle bool
	StoragePublicURL string

	// Remote record API (PostgREST-shaped).
	RemoteBaseURL string `validate:"required,url"`
	RemoteAPIKey  string
	RemoteTable   string

	// Capture pipeline tunables.
	SampleInterval  time.Duration `validate:"gt=0"`
	HappyThreshold  float64       `validate:"gt=0,lte=1"`
	LocationTimeout time.Duration `validate:"gt=0"`
	PhotoQuality    int           `validate:"gt=0,lte=100"`
}

// Load reads the configuration from the environment. A .env file in the
// working directory is merged in when present; real environment variables win.
func Load() (*Config, error) {
	// Missing .env is the normal production case, not an error.
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:          envOr("FIELDCLOCK_DATA_DIR", "./data"),
		ListenAddr:       envOr("FIELDCLOCK_LISTEN_ADDR", "localhost:8090"),
		StorageEndpoint:  os.Getenv("FIELDCLOCK_STORAGE_ENDPOINT"),
		StorageBucket:    envOr("FIELDCLOCK_STORAGE_BUCKET", "attendance-photos"),
		StorageAccessKey: os.Getenv("FIELDCLOCK_STORAGE_ACCESS_KEY"),
		StorageSecretKey: os.Getenv("FIELDCLOCK_STORAGE_SECRET_KEY"),
		StorageRegion:    envOr("FIELDCLOCK_STORAGE_REGION", "us-east-1"),
		StoragePathStyle: envBool("FIELDCLOCK_STORAGE_PATH_STYLE", false),
		StoragePublicURL: os.Getenv("FIELDCLOCK_STORAGE_PUBLIC_URL"),
		RemoteBaseURL:    os.Getenv("FIELDCLOCK_REMOTE_URL"),
		RemoteAPIKey:     os.Getenv("FIELDCLOCK_REMOTE_API_KEY"),
		RemoteTable:      envOr("FIELDCLOCK_REMOTE_TABLE", "attendance_logs"),
		SampleInterval:   envDuration("FIELDCLOCK_SAMPLE_INTERVAL", 500*time.Millisecond),
		HappyThreshold:   envFloat("FIELDCLOCK_HAPPY_THRESHOLD", 0.7),
		LocationTimeout:  envDuration("FIELDCLOCK_LOCATION_TIMEOUT", 10*time.Second),
		PhotoQuality:     envInt("FIELDCLOCK_PHOTO_QUALITY", 70),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, "invalid configuration", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
