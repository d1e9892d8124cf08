// Package main provides the localhost REST surface of the device agent.
package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/fieldclock/fieldclock/internal/errors"
	"github.com/fieldclock/fieldclock/internal/status"
	"github.com/fieldclock/fieldclock/internal/store"
	syncengine "github.com/fieldclock/fieldclock/internal/sync"
)

// Server exposes read-only status queries and the sync trigger. Capture runs
// inside the platform shell; this surface only observes its results.
type Server struct {
	repo   *store.Repository
	engine *syncengine.Engine
	hub    *WSHub
}

// NewServer creates the agent API server.
func NewServer(repo *store.Repository, engine *syncengine.Engine, hub *WSHub) *Server {
	return &Server{repo: repo, engine: engine, hub: hub}
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/sync", s.handleSync)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "fieldclock-agent",
	})
}

// handleStatus returns the derived presence state and pending badge count of
// one identity. Display-only; nothing here mutates the store.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identityID := r.URL.Query().Get("identity")
	if identityID == "" {
		http.Error(w, "identity query parameter is required", http.StatusBadRequest)
		return
	}

	last, err := s.repo.LastEvent(identityID)
	if err != nil {
		http.Error(w, "Failed to read last event", http.StatusInternalServerError)
		return
	}

	pending, err := s.repo.CountPending(identityID)
	if err != nil {
		http.Error(w, "Failed to count pending events", http.StatusInternalServerError)
		return
	}

	derived := status.Derive(last)
	response := map[string]interface{}{
		"currently_in": derived.CurrentlyIn,
		"next_kind":    derived.NextKind,
		"pending":      pending,
	}
	if last != nil {
		response["last_event_at"] = last.OccurredAt
		response["last_event_kind"] = last.Kind
	}
	writeJSON(w, http.StatusOK, response)
}

// handleHistory returns recent events of one identity, most recent first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identityID := r.URL.Query().Get("identity")
	if identityID == "" {
		http.Error(w, "identity query parameter is required", http.StatusBadRequest)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			http.Error(w, "limit must be between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events, err := s.repo.RecentHistory(identityID, limit)
	if err != nil {
		http.Error(w, "Failed to read history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

// handleSync triggers one reconciliation run. The connectivity-restored
// signal arrives from outside the core as a POST here.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pending, err := s.repo.ListPending()
	if err != nil {
		http.Error(w, "Failed to read pending queue", http.StatusInternalServerError)
		return
	}
	s.hub.BroadcastSyncStarted(len(pending))

	result, err := s.engine.Run(r.Context())
	if err != nil {
		code := apperrors.CodeOf(err)
		s.hub.BroadcastSyncFailed(string(code))
		if code == apperrors.ErrSyncInFlight {
			http.Error(w, "Sync already in progress", http.StatusConflict)
			return
		}
		http.Error(w, "Sync run failed", http.StatusInternalServerError)
		return
	}

	s.hub.BroadcastSyncCompleted(result.Synced, result.Errors)
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
