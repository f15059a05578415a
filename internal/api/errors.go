package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/shelly-fleet-core/internal/capability"
	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/group"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest           = "bad_request"
	ErrCodeNotFound             = "not_found"
	ErrCodeConflict             = "conflict"
	ErrCodeConfirmationRequired = "confirmation_required"
	ErrCodeInternal             = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeDomainError maps core errors onto HTTP responses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, group.ErrConfirmationRequired):
		writeError(w, http.StatusConflict, ErrCodeConfirmationRequired, err.Error())
	case errors.Is(err, group.ErrGroupNotFound),
		errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, capability.ErrDefinitionNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, group.ErrGroupExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, group.ErrUnknownVerb),
		errors.Is(err, group.ErrReservedName),
		errors.Is(err, group.ErrInvalidName),
		errors.Is(err, device.ErrInvalidMAC):
		writeBadRequest(w, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
