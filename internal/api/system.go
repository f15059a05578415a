package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
)

// SystemStatus is the system status response.
type SystemStatus struct {
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Goroutines    int            `json:"goroutines"`
	Devices       map[string]int `json:"devices"`
	Groups        int            `json:"groups"`
	Capabilities  int            `json:"capabilities"`
	WSClients     int            `json:"ws_clients"`
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleSystem returns a status snapshot.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	stats := s.deps.Registry.GetStats()

	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}
	byStatus["total"] = stats.TotalDevices

	writeJSON(w, http.StatusOK, SystemStatus{
		Version:       s.deps.Version,
		UptimeSeconds: int64(time.Since(s.deps.Started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		Devices:       byStatus,
		Groups:        len(s.deps.Groups.List()),
		Capabilities:  len(s.deps.Catalogue.List()),
		WSClients:     s.hub.ClientCount(),
	})
}

// handleListRuns returns recent group runs from the history store.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []any{}})
		return
	}

	runs, err := s.deps.History.ListRuns(r.Context(), 50)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleDeviceFailures returns recent failures for one device.
func (s *Server) handleDeviceFailures(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, map[string]any{"failures": []any{}})
		return
	}

	failures, err := s.deps.History.FailuresForDevice(r.Context(), chi.URLParam(r, "mac"), 50)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failures": failures})
}
