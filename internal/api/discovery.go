package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/shelly-fleet-core/internal/discovery"
)

// scanRequest is the body of a discovery scan trigger. Empty fields fall
// back to the configured defaults.
type scanRequest struct {
	Networks []string `json:"networks"`
	IPs      []string `json:"ips"`
	MDNS     *bool    `json:"mdns"`
}

// handleScan runs one discovery pass synchronously and returns the devices
// observed. Progress events stream on the WebSocket in parallel.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	opts := discovery.Options{
		MDNS:         s.deps.Discovery.MDNS,
		HTTPProbe:    s.deps.Discovery.HTTPProbe,
		Networks:     s.deps.Discovery.Networks,
		ChunkSize:    s.deps.Discovery.ChunkSize,
		ProbeTimeout: time.Duration(s.deps.Discovery.ProbeTimeout) * time.Second,
		MDNSWindow:   time.Duration(s.deps.Discovery.MDNSWindow) * time.Second,
	}
	if len(req.Networks) > 0 {
		opts.Networks = req.Networks
	}
	if len(req.IPs) > 0 {
		opts.IPs = req.IPs
		opts.HTTPProbe = true
	}
	if req.MDNS != nil {
		opts.MDNS = *req.MDNS
	}

	found, err := s.deps.Scanner.Scan(r.Context(), opts)
	if err != nil {
		if errors.Is(err, discovery.ErrScanInProgress) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"found":   len(found),
		"devices": found,
	})
}
