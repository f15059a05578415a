package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/parameter"
)

// handleListDevices returns every device in registry order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.deps.Registry.List(),
	})
}

// handleDeviceStats returns registry statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Registry.GetStats())
}

// deviceFromRequest resolves the {mac} route parameter.
func (s *Server) deviceFromRequest(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	mac, err := device.NormalizeMAC(chi.URLParam(r, "mac"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return nil, false
	}
	d, err := s.deps.Registry.Get(mac)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return d, true
}

// handleGetDevice returns one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteDevice removes one device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.deps.Registry.Delete(r.Context(), d.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": d.ID})
}

// handleSupported reports the parameters and operations for one device.
func (s *Server) handleSupported(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Engine.Supported(d))
}

// handleGetParameter reads one logical parameter.
func (s *Server) handleGetParameter(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	value, meta, err := s.deps.Engine.Get(r.Context(), d, name)
	if err != nil {
		kind := parameter.Classify(err)
		status := http.StatusBadGateway
		if kind == parameter.KindUnsupportedParameter {
			status = http.StatusNotFound
		}
		writeError(w, status, string(kind), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": d.ID,
		"parameter": name,
		"value":     value,
		"meta":      meta,
	})
}

// setParameterRequest is the body of a parameter write.
type setParameterRequest struct {
	Value          any  `json:"value"`
	RebootIfNeeded bool `json:"reboot_if_needed"`
}

// handleSetParameter writes one logical parameter.
func (s *Server) handleSetParameter(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	var req setParameterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	result := s.deps.Engine.Set(r.Context(), d, chi.URLParam(r, "name"), req.Value, parameter.SetOptions{
		RebootIfNeeded: req.RebootIfNeeded,
		VerifyReadBack: true,
	})

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
		if result.ErrorKind == parameter.KindTypeMismatch ||
			result.ErrorKind == parameter.KindUnsupportedParameter {
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, status, result)
}

// operateRequest is the body of a single-device operation.
type operateRequest struct {
	Verb string         `json:"verb"`
	Args map[string]any `json:"args"`
}

// handleOperateDevice runs one control verb against one device.
func (s *Server) handleOperateDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	var req operateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if !s.deps.Engine.Verbs().Known(req.Verb) {
		writeBadRequest(w, "unknown verb: "+req.Verb)
		return
	}

	result := s.deps.Engine.Operate(r.Context(), d, req.Verb, req.Args)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}
