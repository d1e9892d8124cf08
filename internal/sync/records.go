// Package sync provides the remote attendance record API client.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fieldclock/fieldclock/internal/models"
)

// RecordsConfig holds the remote row-insert API configuration. The API is
// PostgREST-shaped: one table, POST appends a row, the service key rides in
// both the apikey header and the bearer token.
type RecordsConfig struct {
	BaseURL string
	APIKey  string
	Table   string
}

// RecordsClient implements RecordStore over HTTP.
type RecordsClient struct {
	config     *RecordsConfig
	httpClient *http.Client
}

// Ensure RecordsClient satisfies the engine's RecordStore contract.
var _ RecordStore = (*RecordsClient)(nil)

// NewRecordsClient creates a new RecordsClient.
func NewRecordsClient(config *RecordsConfig) *RecordsClient {
	if config.Table == "" {
		config.Table = "attendance_logs"
	}
	return &RecordsClient{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// insertedRow is the representation the API echoes back after an insert.
type insertedRow struct {
	ID json.Number `json:"id"`
}

// InsertAttendance appends one attendance row and returns its remote id.
func (c *RecordsClient) InsertAttendance(ctx context.Context, record *models.RemoteRecord) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/rest/v1/" + c.config.Table
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	// Ask the API to echo the inserted row so we learn its id.
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("insert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("insert failed with status %d: %s", resp.StatusCode, string(body))
	}

	var rows []insertedRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return "", fmt.Errorf("failed to parse insert response: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("insert response carried no row")
	}

	return rows[0].ID.String(), nil
}
