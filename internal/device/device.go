// Package device identifies the software and installation producing events.
package device

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/fieldclock/fieldclock/internal/models"
)

// Version is the agent version stamped into every remote record. Overridden
// at build time with -ldflags "-X .../internal/device.Version=...".
var Version = "dev"

// Source identifies the capture software family in remote records.
const Source = "device-agent"

// Info returns the device tag carried by every synchronized record.
func Info() models.DeviceInfo {
	return models.DeviceInfo{
		Source:  Source,
		Version: Version,
	}
}

// ID returns the stable installation id, generating and persisting one under
// dataDir on first call. The id survives restarts but not a data wipe, which
// matches its purpose: correlating uploads from one installation.
func ID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "device_id")

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// Corrupt id file: fall through and mint a fresh one.
	} else if !os.IsNotExist(err) {
		return "", err
	}

	id := uuid.New().String()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0644); err != nil {
		return "", err
	}
	return id, nil
}
