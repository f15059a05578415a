package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/shelly-fleet-core/internal/capability"
	"github.com/nerrad567/shelly-fleet-core/internal/device"
)

// capabilitySummary is the list view of one definition.
type capabilitySummary struct {
	DeviceType string            `json:"device_type"`
	Name       string            `json:"name,omitempty"`
	Generation device.Generation `json:"generation"`
	APIs       int               `json:"apis"`
	Parameters int               `json:"parameters"`
	HandEdited bool              `json:"hand_edited,omitempty"`
}

// handleListCapabilities returns a summary of every loaded definition.
func (s *Server) handleListCapabilities(w http.ResponseWriter, _ *http.Request) {
	defs := s.deps.Catalogue.List()
	summaries := make([]capabilitySummary, 0, len(defs))
	for _, def := range defs {
		summaries = append(summaries, capabilitySummary{
			DeviceType: def.DeviceType,
			Name:       def.Name,
			Generation: def.Generation,
			APIs:       len(def.APIs),
			Parameters: len(def.Parameters),
			HandEdited: def.HandEdited,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": summaries})
}

// handleGetCapability returns one full definition.
func (s *Server) handleGetCapability(w http.ResponseWriter, r *http.Request) {
	def, err := s.deps.Catalogue.Get(chi.URLParam(r, "type"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// refreshRequest is the body of a capability refresh.
type refreshRequest struct {
	Force bool `json:"force"`
}

// handleRefreshCapabilities rebuilds the catalogue from live devices.
// A failed per-type discovery is reported but keeps the existing entry.
func (s *Server) handleRefreshCapabilities(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	err := s.deps.Catalogue.Refresh(r.Context(), s.deps.Registry.List(),
		capability.RefreshOptions{Force: req.Force},
		s.deps.Discoverer.Discover)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"definitions": len(s.deps.Catalogue.List()),
	})
}

// standardizeRequest is the body of a standardise call.
type standardizeRequest struct {
	DryRun bool `json:"dry_run"`
}

// handleStandardize applies (or previews) legacy-name renames.
func (s *Server) handleStandardize(w http.ResponseWriter, r *http.Request) {
	var req standardizeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	diffs, err := s.deps.Catalogue.Standardize(req.DryRun)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dry_run": req.DryRun,
		"renames": diffs,
	})
}

// handleSupporting lists the device types supporting a logical parameter.
func (s *Server) handleSupporting(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	writeJSON(w, http.StatusOK, map[string]any{
		"parameter":    name,
		"device_types": s.deps.Catalogue.DevicesSupporting(name),
	})
}
